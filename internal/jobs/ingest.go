package jobs

import (
	"context"
	"log/slog"

	"quarry/internal/ingest"
	"quarry/internal/model"
)

// Ingester adapts the ingest pipeline to the runner's executor shape.
type Ingester struct {
	pipeline *ingest.Pipeline
	log      *slog.Logger
}

func NewIngester(p *ingest.Pipeline, log *slog.Logger) *Ingester {
	if log == nil {
		log = slog.Default()
	}
	return &Ingester{pipeline: p, log: log}
}

func (i *Ingester) ExecuteIngest(ctx context.Context, job *model.ScrapeJob) {
	if err := i.pipeline.Run(ctx, job); err != nil {
		i.log.Error("ingest run failed", "job", job.ID, "error", err)
	}
}
