// Package jobs polls the scrape_jobs table and dispatches claimed jobs
// to the discovery and ingest executors.
package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"quarry/internal/config"
	"quarry/internal/model"
	"quarry/internal/store"
)

// DiscoveryExecutor runs discovery for one claimed DISCOVERING job.
type DiscoveryExecutor interface {
	ExecuteDiscovery(ctx context.Context, job *model.ScrapeJob)
}

// IngestExecutor ingests one claimed IN_PROGRESS job.
type IngestExecutor interface {
	ExecuteIngest(ctx context.Context, job *model.ScrapeJob)
}

// Executors groups the concrete executors per job phase.
type Executors struct {
	Discovery DiscoveryExecutor
	Ingest    IngestExecutor
}

// Queue is the slice of the store the runner needs. *store.Store
// satisfies it.
type Queue interface {
	ClaimJob(ctx context.Context, status model.JobStatus) (*model.ScrapeJob, error)
	DeleteExpiredJobs(ctx context.Context, cutoff time.Time) (int64, error)
}

// Runner polls for claimable work. It encapsulates concurrency limits,
// polling intervals, and periodic retention cleanup.
type Runner struct {
	cfg       *config.Config
	queue     Queue
	executors Executors
	log       *slog.Logger
}

func NewRunner(cfg *config.Config, q Queue, execs Executors, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{cfg: cfg, queue: q, executors: execs, log: log}
}

// Start runs the worker loop in the current goroutine until ctx is
// cancelled. Callers typically run it in its own goroutine.
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

	var lastCleanup time.Time
	cleanupInterval := time.Duration(r.cfg.Worker.CleanupIntervalMinutes) * time.Minute
	if cleanupInterval <= 0 {
		cleanupInterval = time.Hour
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if r.cfg.Worker.RetentionDays > 0 {
			if now := time.Now().UTC(); lastCleanup.IsZero() || now.Sub(lastCleanup) >= cleanupInterval {
				r.cleanup(ctx)
				lastCleanup = now
			}
		}

		// Fill available capacity, discovery before ingest so new jobs
		// become selectable quickly.
		for len(sem) < maxJobs {
			job, phase := r.claimNext(ctx)
			if job == nil {
				break
			}
			sem <- struct{}{}
			go func(job *model.ScrapeJob, phase model.JobStatus) {
				defer func() { <-sem }()
				r.dispatch(ctx, job, phase)
			}(job, phase)
		}
	}
}

func (r *Runner) claimNext(ctx context.Context) (*model.ScrapeJob, model.JobStatus) {
	for _, status := range []model.JobStatus{model.JobDiscovering, model.JobInProgress} {
		job, err := r.queue.ClaimJob(ctx, status)
		if err == nil {
			return job, status
		}
		if !errors.Is(err, store.ErrNotFound) {
			r.log.Warn("job claim failed", "status", status, "error", err)
		}
	}
	return nil, ""
}

func (r *Runner) dispatch(ctx context.Context, job *model.ScrapeJob, phase model.JobStatus) {
	switch phase {
	case model.JobDiscovering:
		if r.executors.Discovery != nil {
			r.executors.Discovery.ExecuteDiscovery(ctx, job)
			return
		}
	case model.JobInProgress:
		if r.executors.Ingest != nil {
			r.executors.Ingest.ExecuteIngest(ctx, job)
			return
		}
	}
	r.log.Error("no executor for claimed job", "job", job.ID, "phase", phase)
}

func (r *Runner) cleanup(ctx context.Context) {
	cutoff := time.Now().UTC().AddDate(0, 0, -r.cfg.Worker.RetentionDays)
	n, err := r.queue.DeleteExpiredJobs(ctx, cutoff)
	if err != nil {
		r.log.Warn("retention cleanup failed", "error", err)
		return
	}
	if n > 0 {
		r.log.Info("retention cleanup removed jobs", "count", n)
	}
}
