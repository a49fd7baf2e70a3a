package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/Aliraza-monster/crosspost-automation/internal/authz"
	"github.com/Aliraza-monster/crosspost-automation/internal/repository"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type TokenHandler struct {
	ledger repository.LedgerRepository
	logger zerolog.Logger
}

func NewTokenHandler(ledger repository.LedgerRepository, logger zerolog.Logger) *TokenHandler {
	return &TokenHandler{ledger: ledger, logger: logger}
}

func (h *TokenHandler) GetMyBalance(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	h.writeBalance(w, r, userID)
}

func (h *TokenHandler) ListMyLedger(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	h.writeLedger(w, r, userID)
}

// GetUserBalance is the admin view of any user's balance.
func (h *TokenHandler) GetUserBalance(w http.ResponseWriter, r *http.Request) {
	h.writeBalance(w, r, mux.Vars(r)["userID"])
}

func (h *TokenHandler) ListUserLedger(w http.ResponseWriter, r *http.Request) {
	h.writeLedger(w, r, mux.Vars(r)["userID"])
}

type adjustRequest struct {
	DeltaTokens int64  `json:"delta_tokens"`
	Reason      string `json:"reason"`
}

// AdjustUserBalance applies an ad hoc admin credit or debit through the
// ledger, recording the acting admin on the entry.
func (h *TokenHandler) AdjustUserBalance(w http.ResponseWriter, r *http.Request) {
	adminID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	targetID := mux.Vars(r)["userID"]

	var req adjustRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	newBalance, err := h.ledger.Adjust(r.Context(), repository.AdjustParams{
		UserID:      targetID,
		DeltaTokens: req.DeltaTokens,
		Reason:      strings.TrimSpace(req.Reason),
		AdminUserID: &adminID,
	})
	switch {
	case errors.Is(err, repository.ErrInvalidArgument):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, repository.ErrInsufficientBalance):
		http.Error(w, "Adjustment would leave the balance negative", http.StatusConflict)
		return
	case errors.Is(err, repository.ErrUserNotFound):
		http.Error(w, "User not found", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, "Failed to adjust balance: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.logger.Info().
		Str("admin_id", adminID).
		Str("user_id", targetID).
		Int64("delta", req.DeltaTokens).
		Msg("admin balance adjustment")

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"balance": newBalance})
}

func (h *TokenHandler) writeBalance(w http.ResponseWriter, r *http.Request, userID string) {
	balance, err := h.ledger.GetBalance(r.Context(), userID)
	if err != nil {
		http.Error(w, "Failed to read balance: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]int64{"balance": balance})
}

func (h *TokenHandler) writeLedger(w http.ResponseWriter, r *http.Request, userID string) {
	limit, offset := paginationParams(r, 20)
	entries, err := h.ledger.ListByUser(r.Context(), userID, limit, offset)
	if err != nil {
		http.Error(w, "Failed to list ledger: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
