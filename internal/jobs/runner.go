package jobs

import (
	"context"
	"log/slog"
	"time"

	"examgen/internal/config"
	"examgen/internal/store"
)

// ExamJobExecutor executes a single claimed exam generation job.
type ExamJobExecutor interface {
	ExecuteExamJob(ctx context.Context, job store.ExamJob)
}

// Runner polls the exam_jobs table for unclaimed work and dispatches
// it to the executor under a bounded concurrency limit. The
// submission endpoint only inserts the record; everything slow runs
// here, detached from any request.
type Runner struct {
	cfg      *config.Config
	store    *store.Store
	executor ExamJobExecutor
	logger   *slog.Logger
}

// NewRunner constructs a Runner with the given configuration, store,
// and exam executor.
func NewRunner(cfg *config.Config, st *store.Store, executor ExamJobExecutor, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		store:    st,
		executor: executor,
		logger:   logger,
	}
}

// Start launches the worker loop in the current goroutine. Callers
// typically run this in its own goroutine and keep the process alive.
func (r *Runner) Start(ctx context.Context) {
	pollInterval := time.Duration(r.cfg.Worker.PollIntervalMs) * time.Millisecond
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	maxJobs := r.cfg.Worker.MaxConcurrentJobs
	if maxJobs <= 0 {
		maxJobs = 4
	}

	sem := make(chan struct{}, maxJobs)
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Determine how many new jobs we can start based on current concurrency.
		capacity := maxJobs - len(sem)
		if capacity <= 0 {
			continue
		}

		pending, err := r.store.ListUnclaimedJobs(ctx, int32(capacity))
		if err != nil {
			if r.logger != nil {
				r.logger.Warn("list_unclaimed_jobs_failed", "error", err.Error())
			}
			continue
		}

		for _, job := range pending {
			job := job

			// Claim before dispatch so a second runner instance skips
			// jobs this one already owns.
			claimed, err := r.store.ClaimExamJob(ctx, job.ID)
			if err != nil {
				if r.logger != nil {
					r.logger.Warn("claim_exam_job_failed",
						"exam_id", job.ID.String(),
						"error", err.Error(),
					)
				}
				continue
			}
			if !claimed {
				continue
			}

			sem <- struct{}{}
			go func() {
				defer func() { <-sem }()
				r.executor.ExecuteExamJob(ctx, job)
			}()
		}
	}
}
