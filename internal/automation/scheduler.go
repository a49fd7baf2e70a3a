package automation

import (
	"context"
	"errors"
	"time"

	"github.com/Aliraza-monster/crosspost-automation/internal/repository"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Scheduler drives batch ticks on a cron schedule. Jobs within a tick run
// strictly one at a time; a single job's failure never stops the batch or
// the timer.
type Scheduler struct {
	jobs      repository.JobRepository
	executor  *Executor
	cron      *cron.Cron
	spec      string
	warmup    time.Duration
	batchSize int
	logger    zerolog.Logger
}

func NewScheduler(jobs repository.JobRepository, executor *Executor, spec string, warmup time.Duration, batchSize int, logger zerolog.Logger) *Scheduler {
	if batchSize <= 0 {
		batchSize = 20
	}
	return &Scheduler{
		jobs:      jobs,
		executor:  executor,
		cron:      cron.New(),
		spec:      spec,
		warmup:    warmup,
		batchSize: batchSize,
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}
}

// Start registers the recurring tick and fires one warm-up tick after a
// fixed delay, so the first pass does not race datastore initialization.
func (s *Scheduler) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.spec, func() {
		s.Tick(ctx)
	})
	if err != nil {
		return err
	}

	time.AfterFunc(s.warmup, func() {
		select {
		case <-ctx.Done():
		default:
			s.Tick(ctx)
		}
	})

	s.cron.Start()
	s.logger.Info().Str("cron", s.spec).Dur("warmup", s.warmup).Msg("scheduler started")
	return nil
}

// Stop halts the timer. In-flight executions are not interrupted.
func (s *Scheduler) Stop() {
	s.cron.Stop()
	s.logger.Info().Msg("scheduler stopped")
}

// Tick selects due jobs, most overdue first, and dispatches each through the
// executor's in-flight guard.
func (s *Scheduler) Tick(ctx context.Context) {
	due, err := s.jobs.ListDue(ctx, time.Now(), s.batchSize)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to query due jobs")
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.Debug().Int("count", len(due)).Msg("processing due jobs")
	for _, job := range due {
		err := s.executor.Run(ctx, job.ID)
		switch {
		case err == nil:
		case errors.Is(err, ErrAlreadyRunning):
			// A manual run holds the guard; skip.
		case errors.Is(err, repository.ErrJobNotFound):
			// Job vanished between selection and dispatch; skip.
		default:
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("job run failed")
		}
	}
}
