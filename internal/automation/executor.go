package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Aliraza-monster/crosspost-automation/internal/joblog"
	"github.com/Aliraza-monster/crosspost-automation/internal/models"
	"github.com/Aliraza-monster/crosspost-automation/internal/publisher"
	"github.com/Aliraza-monster/crosspost-automation/internal/repository"
	"github.com/Aliraza-monster/crosspost-automation/internal/source"
	"github.com/Aliraza-monster/crosspost-automation/internal/utils"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ErrAlreadyRunning is returned when a run is requested for a job that is
// currently in flight. The later request is skipped, never queued.
var ErrAlreadyRunning = errors.New("job is already running")

const (
	// idleBackoff is the long poll interval used when there is nothing new
	// to publish; the steady state.
	idleBackoff = 24 * time.Hour
	// retryBackoff is the short interval after a transient failure so
	// upstream hiccups self-heal without operator intervention.
	retryBackoff = time.Hour

	tokensPerPost = 1
)

// Executor runs one job's publishing pipeline: balance gate, listing,
// selection, download, publish, debit, schedule advance.
type Executor struct {
	jobs      repository.JobRepository
	ledger    repository.LedgerRepository
	recorder  joblog.Recorder
	source    source.Source
	publisher publisher.Publisher
	inflight  *InFlight
	logger    zerolog.Logger
}

func NewExecutor(
	jobs repository.JobRepository,
	ledger repository.LedgerRepository,
	recorder joblog.Recorder,
	src source.Source,
	pub publisher.Publisher,
	inflight *InFlight,
	logger zerolog.Logger,
) *Executor {
	return &Executor{
		jobs:      jobs,
		ledger:    ledger,
		recorder:  recorder,
		source:    src,
		publisher: pub,
		inflight:  inflight,
		logger:    logger.With().Str("component", "executor").Logger(),
	}
}

// Run executes the pipeline for one job under the in-flight guard. It
// returns ErrAlreadyRunning when the job is in flight,
// repository.ErrJobNotFound when the job is gone, and the underlying error
// for unexpected failures (which have already been logged and rescheduled).
// Handled outcomes, including a balance-exhaustion pause, return nil.
func (e *Executor) Run(ctx context.Context, jobID string) error {
	if !e.inflight.TryAcquire(jobID) {
		return ErrAlreadyRunning
	}
	defer e.inflight.Release(jobID)

	job, err := e.jobs.GetByID(ctx, jobID)
	if err != nil {
		return err
	}
	return e.execute(ctx, job)
}

func (e *Executor) execute(ctx context.Context, job models.AutomationJob) (err error) {
	var downloadedPath string
	defer func() {
		// Temp files are removed on every exit path, including panics
		// unwinding through here.
		source.Cleanup(downloadedPath)
	}()

	balance, err := e.ledger.GetBalance(ctx, job.UserID)
	if err != nil {
		return e.fail(ctx, job, "Could not read token balance.", err)
	}
	if balance <= 0 {
		e.pauseExhausted(ctx, job, "Job paused because account token balance is 0.")
		return nil
	}

	items, err := e.source.List(ctx, job.SourceURL)
	if err != nil {
		return e.fail(ctx, job, "Listing source media failed.", err)
	}
	if len(items) == 0 {
		e.recorder.Warn(ctx, job.ID, "No media was found on the source account.", nil)
		e.reschedule(ctx, job.ID, idleBackoff)
		return nil
	}

	if job.NextMediaIndex >= len(items) {
		e.recorder.Info(ctx, job.ID, "No new source media to publish yet.", nil)
		e.reschedule(ctx, job.ID, idleBackoff)
		return nil
	}

	selected := items[job.NextMediaIndex]
	baseName := fmt.Sprintf("job_%s_%d_%s", job.ID, job.NextMediaIndex, uuid.NewString())
	downloadedPath, err = e.source.Download(ctx, selected.URL, baseName)
	if err != nil {
		return e.fail(ctx, job, "Downloading the source media failed.", err)
	}

	pageToken, err := utils.DecryptCredential(job.FacebookPageToken)
	if err != nil {
		// Retrying cannot fix a credential that no longer decrypts; the
		// job needs to be recreated or rekeyed.
		return e.pauseBroken(ctx, job, "Could not decrypt page credentials.", err)
	}

	videoID, err := e.publisher.UploadVideo(ctx, publisher.UploadParams{
		PageID:      job.FacebookPageID,
		PageToken:   pageToken,
		VideoPath:   downloadedPath,
		Title:       selected.Title,
		Description: selected.Description,
	})
	if err != nil {
		return e.fail(ctx, job, "Publishing to the page failed.", err)
	}

	newBalance, err := e.ledger.Adjust(ctx, repository.AdjustParams{
		UserID:      job.UserID,
		DeltaTokens: -tokensPerPost,
		Reason:      fmt.Sprintf("Token used for job %q", job.Name),
		Metadata: map[string]interface{}{
			"job_id":       job.ID,
			"source_video": selected.URL,
		},
	})
	if err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			// Lost a race against concurrent consumption. The item is
			// already published and stays published; the cursor does not
			// advance, and the job stops until tokens return.
			e.pauseExhausted(ctx, job, "Job paused because tokens were exhausted during the run.")
			return nil
		}
		return e.fail(ctx, job, "Debiting the token balance failed.", err)
	}

	now := time.Now()
	if err := e.jobs.MarkPosted(ctx, job.ID, selected.URL, now, now.Add(idleBackoff)); err != nil {
		return e.fail(ctx, job, "Recording the published post failed.", err)
	}

	e.recorder.Info(ctx, job.ID, "Media published to the page successfully.", map[string]interface{}{
		"source_video":      selected.URL,
		"facebook_video_id": videoID,
		"title":             selected.Title,
		"tokens_remaining":  newBalance,
	})
	return nil
}

func (e *Executor) pauseExhausted(ctx context.Context, job models.AutomationJob, message string) {
	if err := e.jobs.SetStatus(ctx, job.ID, models.JobStatusPaused); err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to pause job")
	}
	e.recorder.Error(ctx, job.ID, message, nil)
}

// pauseBroken stops a job whose configuration cannot succeed until an
// operator intervenes. Unlike fail, no retry is scheduled.
func (e *Executor) pauseBroken(ctx context.Context, job models.AutomationJob, message string, cause error) error {
	e.recorder.Error(ctx, job.ID, message, map[string]interface{}{
		"error": cause.Error(),
	})
	if err := e.jobs.SetStatus(ctx, job.ID, models.JobStatusPaused); err != nil {
		e.logger.Error().Err(err).Str("job_id", job.ID).Msg("failed to pause job")
	}
	return cause
}

// fail handles any unexpected pipeline error: record it, back off for an
// hour, leave the job active so the next tick retries.
func (e *Executor) fail(ctx context.Context, job models.AutomationJob, message string, cause error) error {
	e.recorder.Error(ctx, job.ID, message, map[string]interface{}{
		"error": cause.Error(),
	})
	e.reschedule(ctx, job.ID, retryBackoff)
	return cause
}

func (e *Executor) reschedule(ctx context.Context, jobID string, backoff time.Duration) {
	if err := e.jobs.UpdateNextRun(ctx, jobID, time.Now().Add(backoff)); err != nil {
		e.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to reschedule job")
	}
}
