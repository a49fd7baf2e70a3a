package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/Aliraza-monster/crosspost-automation/internal/authz"
	"github.com/Aliraza-monster/crosspost-automation/internal/repository"
	"github.com/rs/zerolog"
)

type BillingHandler struct {
	subscriptions repository.SubscriptionRepository
	logger        zerolog.Logger
}

func NewBillingHandler(subscriptions repository.SubscriptionRepository, logger zerolog.Logger) *BillingHandler {
	return &BillingHandler{subscriptions: subscriptions, logger: logger}
}

func (h *BillingHandler) ListPlans(w http.ResponseWriter, r *http.Request) {
	plans, err := h.subscriptions.ListPlans(r.Context())
	if err != nil {
		http.Error(w, "Failed to list plans: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(plans)
}

func (h *BillingHandler) GetMySubscription(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	sub, found, err := h.subscriptions.GetActiveForUser(r.Context(), userID, time.Now().UTC())
	if err != nil {
		http.Error(w, "Failed to load subscription: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if !found {
		json.NewEncoder(w).Encode(map[string]interface{}{"subscription": nil})
		return
	}
	json.NewEncoder(w).Encode(sub)
}
