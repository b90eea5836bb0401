package jobs

import (
	"context"
	"errors"
	"log/slog"

	"github.com/google/uuid"

	"quarry/internal/browser"
	"quarry/internal/crawler"
	"quarry/internal/metrics"
	"quarry/internal/model"
	"quarry/internal/scraper"
)

// DiscoveryStore is the slice of the store discovery needs.
type DiscoveryStore interface {
	UpdateJobDiscovered(ctx context.Context, id uuid.UUID, discovered []string) error
	UpdateJobStatus(ctx context.Context, id uuid.UUID, to model.JobStatus, errMsg string) error
}

// Discoverer executes the DISCOVERING phase of a job.
type Discoverer struct {
	store   DiscoveryStore
	scraper scraper.PageScraper
	opts    crawler.Options
	log     *slog.Logger
}

func NewDiscoverer(st DiscoveryStore, sc scraper.PageScraper, opts crawler.Options, log *slog.Logger) *Discoverer {
	if log == nil {
		log = slog.Default()
	}
	return &Discoverer{store: st, scraper: sc, opts: opts, log: log}
}

// ExecuteDiscovery crawls the job's site and moves the job to PENDING.
// A dead browser pool still yields a usable PENDING job whose
// discovered set is just the base URL, so selection is never stuck.
// Only an invalid base URL fails the job outright.
func (d *Discoverer) ExecuteDiscovery(ctx context.Context, job *model.ScrapeJob) {
	opts := d.opts
	if job.MaxPages > 0 {
		opts.MaxPages = job.MaxPages
	}
	opts.Logger = d.log

	report := func(ctx context.Context, discovered []string) error {
		return d.store.UpdateJobDiscovered(ctx, job.ID, discovered)
	}

	discovered, err := crawler.Discover(ctx, countingScraper{d.scraper}, job.BaseURL, opts, report)

	if werr := d.store.UpdateJobDiscovered(ctx, job.ID, discovered); werr != nil {
		d.log.Warn("final discovery write failed", "job", job.ID, "error", werr)
	}

	switch {
	case err == nil:
	case errors.Is(err, browser.ErrUnavailable):
		d.log.Error("browser unavailable during discovery, falling back to base url",
			"job", job.ID, "error", err)
	default:
		d.log.Error("discovery failed", "job", job.ID, "error", err)
		if serr := d.store.UpdateJobStatus(ctx, job.ID, model.JobFailed, err.Error()); serr != nil {
			d.log.Error("job status update failed", "job", job.ID, "error", serr)
		}
		metrics.RecordJobTransition(string(model.JobFailed))
		return
	}

	if serr := d.store.UpdateJobStatus(ctx, job.ID, model.JobPending, ""); serr != nil {
		d.log.Error("job status update failed", "job", job.ID, "error", serr)
		return
	}
	metrics.RecordJobTransition(string(model.JobPending))
	d.log.Info("discovery finished", "job", job.ID, "urls", len(discovered))
}

// countingScraper counts fetched pages without the crawler knowing
// about metrics.
type countingScraper struct {
	inner scraper.PageScraper
}

func (c countingScraper) Scrape(ctx context.Context, rawURL string, mode scraper.Mode) (*scraper.Result, error) {
	metrics.RecordPageCrawled()
	return c.inner.Scrape(ctx, rawURL, mode)
}
