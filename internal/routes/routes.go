package routes

import (
	"net/http"

	"github.com/Aliraza-monster/crosspost-automation/internal/authz"
	"github.com/Aliraza-monster/crosspost-automation/internal/handlers"
	"github.com/Aliraza-monster/crosspost-automation/internal/models"
	"github.com/gorilla/mux"
)

// NewRouter sets up the API routes
func NewRouter(
	auth *handlers.AuthHandler,
	jobs *handlers.JobHandler,
	tokens *handlers.TokenHandler,
	payments *handlers.PaymentHandler,
	billing *handlers.BillingHandler,
	users *handlers.UserHandler,
) *mux.Router {
	router := mux.NewRouter()

	// Health check route
	router.HandleFunc("/health", handlers.HealthCheck).Methods(http.MethodGet)

	// Public auth endpoints
	router.HandleFunc("/api/signup", auth.SignUp).Methods(http.MethodPost)
	router.HandleFunc("/api/login", auth.Login).Methods(http.MethodPost)

	// Authenticated endpoints
	api := router.PathPrefix("/api").Subrouter()
	api.Use(auth.JWTMiddleware)

	api.HandleFunc("/jobs", jobs.CreateJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs", jobs.ListJobs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{jobID}", jobs.GetJob).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{jobID}/toggle", jobs.ToggleJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{jobID}/run", jobs.RunJob).Methods(http.MethodPost)
	api.HandleFunc("/jobs/{jobID}/logs", jobs.ListJobLogs).Methods(http.MethodGet)
	api.HandleFunc("/jobs/{jobID}", jobs.ArchiveJob).Methods(http.MethodDelete)
	api.HandleFunc("/facebook/pages", jobs.ListPages).Methods(http.MethodPost)

	api.HandleFunc("/tokens/balance", tokens.GetMyBalance).Methods(http.MethodGet)
	api.HandleFunc("/tokens/ledger", tokens.ListMyLedger).Methods(http.MethodGet)

	api.HandleFunc("/payments", payments.SubmitRequest).Methods(http.MethodPost)
	api.HandleFunc("/payments", payments.ListMyRequests).Methods(http.MethodGet)

	api.HandleFunc("/plans", billing.ListPlans).Methods(http.MethodGet)
	api.HandleFunc("/subscription", billing.GetMySubscription).Methods(http.MethodGet)

	// Admin endpoints
	admin := api.PathPrefix("/admin").Subrouter()
	admin.Use(authz.RequireRole(models.RoleAdmin))

	admin.HandleFunc("/users", users.ListUsers).Methods(http.MethodGet)
	admin.HandleFunc("/users/{userID}", users.GetUser).Methods(http.MethodGet)
	admin.HandleFunc("/users/{userID}/balance", tokens.GetUserBalance).Methods(http.MethodGet)
	admin.HandleFunc("/users/{userID}/ledger", tokens.ListUserLedger).Methods(http.MethodGet)
	admin.HandleFunc("/users/{userID}/tokens", tokens.AdjustUserBalance).Methods(http.MethodPost)

	admin.HandleFunc("/payments/pending", payments.ListPending).Methods(http.MethodGet)
	admin.HandleFunc("/payments/{requestID}/approve", payments.ApproveRequest).Methods(http.MethodPost)
	admin.HandleFunc("/payments/{requestID}/reject", payments.RejectRequest).Methods(http.MethodPost)

	return router
}
