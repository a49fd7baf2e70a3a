package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Aliraza-monster/crosspost-automation/internal/authz"
	"github.com/Aliraza-monster/crosspost-automation/internal/models"
	"github.com/Aliraza-monster/crosspost-automation/internal/repository"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type PaymentHandler struct {
	payments repository.PaymentRepository
	ledger   repository.LedgerRepository
	logger   zerolog.Logger
}

func NewPaymentHandler(payments repository.PaymentRepository, ledger repository.LedgerRepository, logger zerolog.Logger) *PaymentHandler {
	return &PaymentHandler{payments: payments, ledger: ledger, logger: logger}
}

type submitPaymentRequest struct {
	AmountUSD float64 `json:"amount_usd"`
	Tokens    int64   `json:"tokens"`
	Reference string  `json:"reference"`
}

func (h *PaymentHandler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req submitPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Reference = strings.TrimSpace(req.Reference)
	if req.Tokens <= 0 || req.AmountUSD <= 0 || req.Reference == "" {
		http.Error(w, "Amount, tokens and payment reference are required", http.StatusBadRequest)
		return
	}

	created, err := h.payments.Create(r.Context(), models.PaymentRequest{
		UserID:    userID,
		AmountUSD: req.AmountUSD,
		Tokens:    req.Tokens,
		Reference: req.Reference,
	})
	if err != nil {
		http.Error(w, "Failed to submit payment request: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(created)
}

func (h *PaymentHandler) ListMyRequests(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	limit, _ := paginationParams(r, 25)
	requests, err := h.payments.ListByUser(r.Context(), userID, limit)
	if err != nil {
		http.Error(w, "Failed to list payment requests: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(requests)
}

func (h *PaymentHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	requests, err := h.payments.ListPending(r.Context())
	if err != nil {
		http.Error(w, "Failed to list pending requests: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(requests)
}

// ApproveRequest settles a pending request and credits the purchased tokens
// through the ledger, tagged with the request and the reviewing admin. The
// status flip and the credit commit together, so a request can never be
// credited twice and a failed credit leaves it pending for a retry.
func (h *PaymentHandler) ApproveRequest(w http.ResponseWriter, r *http.Request) {
	adminID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	requestID := mux.Vars(r)["requestID"]

	// Advisory pre-check so an absent request reads as 404 rather than
	// the settle gate's conflict.
	req, err := h.payments.Get(r.Context(), requestID)
	if errors.Is(err, repository.ErrPaymentRequestNotFound) {
		http.Error(w, "Payment request not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load payment request: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if req.Status != models.PaymentStatusPending {
		http.Error(w, "Payment request has already been reviewed", http.StatusConflict)
		return
	}

	approved, newBalance, err := h.ledger.ApprovePaymentRequest(r.Context(), requestID, adminID)
	if errors.Is(err, repository.ErrPaymentRequestNotFound) {
		// Another reviewer won the settle gate; nothing was credited here.
		http.Error(w, "Payment request has already been reviewed", http.StatusConflict)
		return
	}
	if err != nil {
		http.Error(w, "Failed to approve payment request: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.logger.Info().
		Str("request_id", approved.ID).
		Str("user_id", approved.UserID).
		Int64("tokens", approved.Tokens).
		Int64("balance", newBalance).
		Msg("payment request approved")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(approved)
}

func (h *PaymentHandler) RejectRequest(w http.ResponseWriter, r *http.Request) {
	adminID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	requestID := mux.Vars(r)["requestID"]

	reviewed, err := h.payments.SetReviewed(r.Context(), requestID, models.PaymentStatusRejected, adminID)
	if errors.Is(err, repository.ErrPaymentRequestNotFound) {
		http.Error(w, "Payment request not found or already reviewed", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to reject payment request: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(reviewed)
}
