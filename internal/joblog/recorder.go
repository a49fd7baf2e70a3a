package joblog

import (
	"context"

	"github.com/Aliraza-monster/crosspost-automation/internal/models"
	"github.com/Aliraza-monster/crosspost-automation/internal/repository"
	"github.com/rs/zerolog"
)

// Recorder appends AutomationLogEntry rows for a job and mirrors them to the
// process log. Persistence failures are logged and swallowed: a broken audit
// write must never abort a pipeline run.
type Recorder interface {
	Info(ctx context.Context, jobID, message string, metadata map[string]interface{})
	Warn(ctx context.Context, jobID, message string, metadata map[string]interface{})
	Error(ctx context.Context, jobID, message string, metadata map[string]interface{})
}

type recorder struct {
	repo   repository.LogRepository
	logger zerolog.Logger
}

func NewRecorder(repo repository.LogRepository, logger zerolog.Logger) Recorder {
	return &recorder{
		repo:   repo,
		logger: logger.With().Str("component", "joblog").Logger(),
	}
}

func (r *recorder) Info(ctx context.Context, jobID, message string, metadata map[string]interface{}) {
	r.record(ctx, jobID, models.LogLevelInfo, message, metadata)
}

func (r *recorder) Warn(ctx context.Context, jobID, message string, metadata map[string]interface{}) {
	r.record(ctx, jobID, models.LogLevelWarn, message, metadata)
}

func (r *recorder) Error(ctx context.Context, jobID, message string, metadata map[string]interface{}) {
	r.record(ctx, jobID, models.LogLevelError, message, metadata)
}

func (r *recorder) record(ctx context.Context, jobID string, level models.LogLevel, message string, metadata map[string]interface{}) {
	mirror := r.mirrorEvent(level).Str("job_id", jobID)
	if len(metadata) > 0 {
		mirror = mirror.Interface("metadata", metadata)
	}
	mirror.Msg(message)

	if _, err := r.repo.Append(ctx, jobID, level, message, metadata); err != nil {
		r.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to persist automation log entry")
	}
}

func (r *recorder) mirrorEvent(level models.LogLevel) *zerolog.Event {
	switch level {
	case models.LogLevelError:
		return r.logger.Error()
	case models.LogLevelWarn:
		return r.logger.Warn()
	default:
		return r.logger.Info()
	}
}
