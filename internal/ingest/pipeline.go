// Package ingest turns a job's selected URLs into embedded, searchable
// documents: scrape, extract, chunk, embed, persist.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"quarry/internal/chunker"
	"quarry/internal/embedding"
	"quarry/internal/extract"
	"quarry/internal/metrics"
	"quarry/internal/model"
	"quarry/internal/scraper"
)

// Store is the slice of the persistence layer the pipeline needs.
// *store.Store satisfies it.
type Store interface {
	FindJob(ctx context.Context, id uuid.UUID) (*model.ScrapeJob, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, to model.JobStatus, errMsg string) error
	ReleaseJob(ctx context.Context, id uuid.UUID) error
	UpdateJobProgress(ctx context.Context, id uuid.UUID, scrapedURLs []string, scrapedCount int) error
	FindKnowledgeBase(ctx context.Context, id uuid.UUID) (*model.KnowledgeBase, error)
	CreateDocument(ctx context.Context, doc *model.Document) (*model.Document, error)
	UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status model.DocumentStatus, chunkCount int, errMsg string) error
	FindDocumentBySourceURL(ctx context.Context, kbID uuid.UUID, sourceURL string) (*model.Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
	InsertChunk(ctx context.Context, chunk *model.Chunk) error
}

// Options tunes the pipeline.
type Options struct {
	// Retries is the number of scrape retries after the initial
	// attempt.
	Retries int
	// MinDocumentChars is the minimum extracted content length for a
	// page to become a document. Shorter pages are skipped.
	MinDocumentChars int
	// MaxConcurrentEmbeds bounds parallel embedding calls per document.
	MaxConcurrentEmbeds int
	// EmbedBatchSize is how many chunks go into one embedding call.
	EmbedBatchSize int
	Extract        extract.Options
	Logger         *slog.Logger
}

// Pipeline ingests the selected URLs of IN_PROGRESS jobs.
type Pipeline struct {
	store    Store
	scraper  scraper.PageScraper
	embedder embedding.Embedder
	opts     Options
	log      *slog.Logger
}

func New(st Store, sc scraper.PageScraper, em embedding.Embedder, opts Options) *Pipeline {
	if opts.Retries < 0 {
		opts.Retries = 0
	}
	if opts.MinDocumentChars <= 0 {
		opts.MinDocumentChars = 20
	}
	if opts.MaxConcurrentEmbeds <= 0 {
		opts.MaxConcurrentEmbeds = 4
	}
	if opts.EmbedBatchSize <= 0 {
		opts.EmbedBatchSize = 16
	}
	if opts.Extract == (extract.Options{}) {
		opts.Extract = extract.DefaultOptions()
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{store: st, scraper: sc, embedder: em, opts: opts, log: log}
}

// Run ingests one job. Per-URL failures are isolated: a page that
// cannot be scraped or embedded does not stop its siblings. The job
// fails only when no selected URL produced a document. Cancellation is
// observed between pages by re-reading the job status.
func (p *Pipeline) Run(ctx context.Context, job *model.ScrapeJob) error {
	// However Run exits, a job still IN_PROGRESS must become claimable
	// again or it would be stuck forever.
	defer func() {
		if err := p.store.ReleaseJob(context.WithoutCancel(ctx), job.ID); err != nil {
			p.log.Warn("job claim release failed", "job", job.ID, "error", err)
		}
	}()

	kb, err := p.store.FindKnowledgeBase(ctx, job.KnowledgeBaseID)
	if err != nil {
		msg := fmt.Sprintf("load knowledge base: %v", err)
		_ = p.store.UpdateJobStatus(ctx, job.ID, model.JobFailed, msg)
		return err
	}

	scraped := append([]string(nil), job.ScrapedURLs...)
	done := make(map[string]struct{}, len(scraped))
	for _, u := range scraped {
		done[u] = struct{}{}
	}
	successes := len(scraped)

	for _, u := range job.SelectedURLs {
		if _, ok := done[u]; ok {
			continue
		}

		// Observe external cancellation between pages. A transient
		// storage error here must not abandon the job, so the page is
		// ingested as if the job were still in progress.
		current, err := p.store.FindJob(ctx, job.ID)
		if err != nil {
			p.log.Warn("job status poll failed, continuing", "job", job.ID, "error", err)
		} else if current.Status != model.JobInProgress {
			p.log.Info("job no longer in progress, stopping ingest",
				"job", job.ID, "status", current.Status)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		ok, err := p.ingestURL(ctx, kb, u)
		if err != nil {
			p.log.Warn("page ingest failed", "job", job.ID, "url", u, "error", err)
		}
		if ok {
			scraped = append(scraped, u)
			successes++
			if err := p.store.UpdateJobProgress(ctx, job.ID, scraped, successes); err != nil {
				p.log.Warn("progress update failed", "job", job.ID, "error", err)
			}
		}
		done[u] = struct{}{}
	}

	if successes == 0 && len(job.SelectedURLs) > 0 {
		err := p.store.UpdateJobStatus(ctx, job.ID, model.JobFailed, "no pages successfully ingested")
		metrics.RecordJobTransition(string(model.JobFailed))
		return err
	}
	if err := p.store.UpdateJobStatus(ctx, job.ID, model.JobCompleted, ""); err != nil {
		return err
	}
	metrics.RecordJobTransition(string(model.JobCompleted))
	return nil
}

// ingestURL processes one page. The bool reports whether a COMPLETED
// document was produced; pages with too little content are skipped
// without error and without a document.
func (p *Pipeline) ingestURL(ctx context.Context, kb *model.KnowledgeBase, pageURL string) (bool, error) {
	res, err := p.scrapeWithRetry(ctx, pageURL)
	if err != nil {
		return false, err
	}

	extracted, err := extract.Extract(res.HTML, p.opts.Extract)
	if err != nil {
		return false, err
	}
	if len(extracted.Content) < p.opts.MinDocumentChars {
		p.log.Info("page has too little content, skipping", "url", pageURL, "chars", len(extracted.Content))
		return false, nil
	}

	// At most one document per (knowledge base, source URL): replace
	// any previous ingest of this page.
	if prev, err := p.store.FindDocumentBySourceURL(ctx, kb.ID, pageURL); err == nil {
		if err := p.store.DeleteDocument(ctx, prev.ID); err != nil {
			return false, fmt.Errorf("replace previous document: %w", err)
		}
	}

	doc, err := p.store.CreateDocument(ctx, &model.Document{
		KnowledgeBaseID: kb.ID,
		Title:           extracted.Title,
		Content:         extracted.Content,
		Markdown:        res.Markdown,
		SourceURL:       &pageURL,
		Metadata: map[string]any{
			"description": extracted.Description,
			"contentType": res.ContentType,
		},
	})
	if err != nil {
		return false, err
	}

	chunks := chunker.Split(extracted.Content, kb.ChunkSize, kb.ChunkOverlap)
	if err := p.embedAndPersist(ctx, kb, doc.ID, chunks); err != nil {
		_ = p.store.UpdateDocumentStatus(ctx, doc.ID, model.DocFailed, 0, err.Error())
		metrics.RecordDocumentIngested(string(model.DocFailed))
		return false, err
	}

	if err := p.store.UpdateDocumentStatus(ctx, doc.ID, model.DocCompleted, len(chunks), ""); err != nil {
		return false, err
	}
	metrics.RecordDocumentIngested(string(model.DocCompleted))
	return true, nil
}

func (p *Pipeline) scrapeWithRetry(ctx context.Context, pageURL string) (*scraper.Result, error) {
	var lastErr error
	for attempt := 0; attempt <= p.opts.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := p.scraper.Scrape(ctx, pageURL, scraper.ModeIngest)
		if err == nil {
			return res, nil
		}
		lastErr = err
		p.log.Warn("scrape attempt failed", "url", pageURL, "attempt", attempt+1, "error", err)
	}
	return nil, lastErr
}

// embedAndPersist embeds the chunks in batches with bounded
// parallelism and persists them in chunk-index order once every
// vector is in hand.
func (p *Pipeline) embedAndPersist(ctx context.Context, kb *model.KnowledgeBase, docID uuid.UUID, chunks []chunker.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	vectors := make([][]float32, len(chunks))
	sem := make(chan struct{}, p.opts.MaxConcurrentEmbeds)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for start := 0; start < len(chunks); start += p.opts.EmbedBatchSize {
		end := start + p.opts.EmbedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(start, end int) {
			defer wg.Done()
			defer func() { <-sem }()

			texts := make([]string, end-start)
			for i := start; i < end; i++ {
				texts[i-start] = chunks[i].Text
			}
			batch, err := p.embedder.Embed(ctx, kb.EmbeddingModel, texts)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			copy(vectors[start:end], batch)
		}(start, end)
	}
	wg.Wait()

	if firstErr != nil {
		metrics.RecordEmbeddings(kb.EmbeddingModel, false, len(chunks))
		return firstErr
	}
	metrics.RecordEmbeddings(kb.EmbeddingModel, true, len(chunks))

	for i, c := range chunks {
		chunk := &model.Chunk{
			DocumentID: docID,
			ChunkIndex: i,
			Content:    c.Text,
			StartChar:  c.StartChar,
			EndChar:    c.EndChar,
			Embedding:  vectors[i],
			Metadata:   map[string]any{"chunkLength": len(c.Text)},
		}
		if err := p.store.InsertChunk(ctx, chunk); err != nil {
			return fmt.Errorf("persist chunk %d: %w", i, err)
		}
	}
	return nil
}
