package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Aliraza-monster/crosspost-automation/internal/repository"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

// UserHandler exposes the admin views over accounts.
type UserHandler struct {
	users  repository.UserRepository
	logger zerolog.Logger
}

func NewUserHandler(users repository.UserRepository, logger zerolog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		http.Error(w, "Failed to list users: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(users)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetUserByID(r.Context(), mux.Vars(r)["userID"])
	if errors.Is(err, repository.ErrUserNotFound) {
		http.Error(w, "User not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Failed to load user: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}
