package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Aliraza-monster/crosspost-automation/internal/authz"
	"github.com/Aliraza-monster/crosspost-automation/internal/automation"
	"github.com/Aliraza-monster/crosspost-automation/internal/models"
	"github.com/Aliraza-monster/crosspost-automation/internal/publisher"
	"github.com/Aliraza-monster/crosspost-automation/internal/repository"
	"github.com/Aliraza-monster/crosspost-automation/internal/utils"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

type JobHandler struct {
	jobs          repository.JobRepository
	logs          repository.LogRepository
	ledger        repository.LedgerRepository
	subscriptions repository.SubscriptionRepository
	executor      *automation.Executor
	facebook      *publisher.Facebook
	logger        zerolog.Logger
}

func NewJobHandler(
	jobs repository.JobRepository,
	logs repository.LogRepository,
	ledger repository.LedgerRepository,
	subscriptions repository.SubscriptionRepository,
	executor *automation.Executor,
	facebook *publisher.Facebook,
	logger zerolog.Logger,
) *JobHandler {
	return &JobHandler{
		jobs:          jobs,
		logs:          logs,
		ledger:        ledger,
		subscriptions: subscriptions,
		executor:      executor,
		facebook:      facebook,
		logger:        logger,
	}
}

type createJobRequest struct {
	Name              string `json:"name"`
	SourcePlatform    string `json:"source_platform"`
	SourceURL         string `json:"source_url"`
	FacebookUserToken string `json:"facebook_user_token"`
	FacebookPageID    string `json:"facebook_page_id"`
}

func (h *JobHandler) CreateJob(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req createJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request payload", http.StatusBadRequest)
		return
	}

	req.Name = strings.TrimSpace(req.Name)
	req.SourceURL = strings.TrimSpace(req.SourceURL)
	platform := models.SourcePlatform(strings.ToLower(strings.TrimSpace(req.SourcePlatform)))

	if req.Name == "" || req.SourceURL == "" {
		http.Error(w, "Name and source URL are required", http.StatusBadRequest)
		return
	}
	if !models.IsValidPlatform(platform) {
		http.Error(w, "Unsupported source platform", http.StatusBadRequest)
		return
	}
	if req.FacebookUserToken == "" || req.FacebookPageID == "" {
		http.Error(w, "Facebook user token and page id are required", http.StatusBadRequest)
		return
	}

	sub, hasSub, err := h.subscriptions.GetActiveForUser(r.Context(), userID, time.Now())
	if err != nil {
		http.Error(w, "Failed to check subscription: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if !hasSub {
		http.Error(w, "An active subscription is required to create jobs", http.StatusForbidden)
		return
	}
	activeJobs, err := h.jobs.CountActiveByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, "Failed to count jobs: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if activeJobs >= sub.MaxJobs {
		http.Error(w, "Job limit for the current plan reached", http.StatusForbidden)
		return
	}

	page, err := h.resolvePage(r.Context(), req.FacebookUserToken, req.FacebookPageID)
	if err != nil {
		http.Error(w, "Failed to resolve destination page: "+err.Error(), http.StatusBadRequest)
		return
	}

	userToken, err := utils.EncryptCredential(req.FacebookUserToken)
	if err != nil {
		http.Error(w, "Failed to store credentials: "+err.Error(), http.StatusInternalServerError)
		return
	}
	pageToken, err := utils.EncryptCredential(page.AccessToken)
	if err != nil {
		http.Error(w, "Failed to store credentials: "+err.Error(), http.StatusInternalServerError)
		return
	}

	now := time.Now()
	job, err := h.jobs.Create(r.Context(), models.AutomationJob{
		UserID:            userID,
		Name:              req.Name,
		SourcePlatform:    platform,
		SourceURL:         req.SourceURL,
		FacebookUserToken: userToken,
		FacebookPageID:    page.ID,
		FacebookPageName:  page.Name,
		FacebookPageToken: pageToken,
		NextRunAt:         &now,
		Status:            models.JobStatusActive,
	})
	if err != nil {
		http.Error(w, "Failed to create job: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// Best-effort first run, detached from the request. Failures land in
	// the job's log, not in this response.
	go func(jobID string) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
		defer cancel()
		if err := h.executor.Run(ctx, jobID); err != nil && !errors.Is(err, automation.ErrAlreadyRunning) {
			h.logger.Warn().Err(err).Str("job_id", jobID).Msg("post-creation run failed")
		}
	}(job.ID)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(job)
}

func (h *JobHandler) resolvePage(ctx context.Context, userToken, pageID string) (publisher.ManagedPage, error) {
	pages, err := h.facebook.ListManagedPages(ctx, userToken)
	if err != nil {
		return publisher.ManagedPage{}, err
	}
	for _, page := range pages {
		if page.ID == pageID {
			return page, nil
		}
	}
	return publisher.ManagedPage{}, errors.New("page is not managed by the provided token")
}

func (h *JobHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FacebookUserToken string `json:"facebook_user_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FacebookUserToken == "" {
		http.Error(w, "Facebook user token is required", http.StatusBadRequest)
		return
	}

	pages, err := h.facebook.ListManagedPages(r.Context(), req.FacebookUserToken)
	if err != nil {
		http.Error(w, "Failed to list pages: "+err.Error(), http.StatusBadGateway)
		return
	}

	// Never echo page tokens back to the client.
	type pageView struct {
		ID       string `json:"id"`
		Name     string `json:"name"`
		Category string `json:"category"`
	}
	views := make([]pageView, 0, len(pages))
	for _, page := range pages {
		views = append(views, pageView{ID: page.ID, Name: page.Name, Category: page.Category})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(views)
}

func (h *JobHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	jobs, err := h.jobs.ListByUser(r.Context(), userID)
	if err != nil {
		http.Error(w, "Failed to list jobs: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(jobs)
}

func (h *JobHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

// ToggleJob flips a job between active and paused. Resuming is refused while
// the balance is empty so a resumed job does not immediately re-pause.
func (h *JobHandler) ToggleJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}

	switch job.Status {
	case models.JobStatusArchived:
		http.Error(w, "Archived jobs cannot be toggled", http.StatusConflict)
		return
	case models.JobStatusActive:
		if err := h.jobs.SetStatus(r.Context(), job.ID, models.JobStatusPaused); err != nil {
			http.Error(w, "Failed to pause job: "+err.Error(), http.StatusInternalServerError)
			return
		}
		job.Status = models.JobStatusPaused
	case models.JobStatusPaused:
		balance, err := h.ledger.GetBalance(r.Context(), job.UserID)
		if err != nil {
			http.Error(w, "Failed to read balance: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if balance <= 0 {
			http.Error(w, "Cannot resume: token balance is empty", http.StatusBadRequest)
			return
		}
		if err := h.jobs.SetStatus(r.Context(), job.ID, models.JobStatusActive); err != nil {
			http.Error(w, "Failed to resume job: "+err.Error(), http.StatusInternalServerError)
			return
		}
		job.Status = models.JobStatusActive
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

// ArchiveJob retires a job permanently. There is no un-archive.
func (h *JobHandler) ArchiveJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}

	if err := h.jobs.SetStatus(r.Context(), job.ID, models.JobStatusArchived); err != nil {
		http.Error(w, "Failed to archive job: "+err.Error(), http.StatusInternalServerError)
		return
	}
	job.Status = models.JobStatusArchived
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(job)
}

// RunJob executes the pipeline synchronously, bypassing the due-time filter
// but sharing the in-flight guard with the scheduler.
func (h *JobHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}

	err := h.executor.Run(r.Context(), job.ID)
	switch {
	case errors.Is(err, automation.ErrAlreadyRunning):
		http.Error(w, "Job is already running", http.StatusConflict)
		return
	case errors.Is(err, repository.ErrJobNotFound):
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	case err != nil:
		http.Error(w, "Run failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	updated, err := h.jobs.GetByID(r.Context(), job.ID)
	if err != nil {
		http.Error(w, "Failed to reload job: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(updated)
}

func (h *JobHandler) ListJobLogs(w http.ResponseWriter, r *http.Request) {
	job, ok := h.ownedJob(w, r)
	if !ok {
		return
	}

	limit, offset := paginationParams(r, 25)
	entries, err := h.logs.ListByJob(r.Context(), job.ID, limit, offset)
	if err != nil {
		http.Error(w, "Failed to list logs: "+err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// ownedJob loads the requested job and enforces ownership. Admins may
// address any job.
func (h *JobHandler) ownedJob(w http.ResponseWriter, r *http.Request) (models.AutomationJob, bool) {
	userID, ok := authz.UserIDFromRequest(r)
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return models.AutomationJob{}, false
	}
	jobID := mux.Vars(r)["jobID"]

	var (
		job models.AutomationJob
		err error
	)
	if role, _ := authz.RoleFromRequest(r); role == models.RoleAdmin {
		job, err = h.jobs.GetByID(r.Context(), jobID)
	} else {
		job, err = h.jobs.GetForUser(r.Context(), userID, jobID)
	}
	if errors.Is(err, repository.ErrJobNotFound) {
		http.Error(w, "Job not found", http.StatusNotFound)
		return models.AutomationJob{}, false
	}
	if err != nil {
		http.Error(w, "Failed to load job: "+err.Error(), http.StatusInternalServerError)
		return models.AutomationJob{}, false
	}
	return job, true
}

func paginationParams(r *http.Request, defaultLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if l := r.URL.Query().Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil {
			limit = v
		}
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		if v, err := strconv.Atoi(o); err == nil {
			offset = v
		}
	}
	return limit, offset
}
