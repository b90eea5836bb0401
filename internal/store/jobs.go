package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"quarry/internal/model"
)

const jobColumns = `id, knowledge_base_id, user_id, base_url, status, max_pages,
	discovered_urls, selected_urls, scraped_urls, total_urls, scraped_count,
	error_message, claimed, created_at, completed_at`

// CreateJob inserts a scrape job in DISCOVERING. The base URL is part
// of the discovered set from the start.
func (s *Store) CreateJob(ctx context.Context, kbID uuid.UUID, userID *uuid.UUID, baseURL string, maxPages int) (*model.ScrapeJob, error) {
	discovered, err := jsonbStrings([]string{baseURL})
	if err != nil {
		return nil, err
	}
	empty, err := jsonbStrings(nil)
	if err != nil {
		return nil, err
	}

	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO scrape_jobs (id, knowledge_base_id, user_id, base_url, status, max_pages,
		                         discovered_urls, selected_urls, scraped_urls, total_urls)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, 1)
		RETURNING `+jobColumns,
		uuid.New(), kbID, userID, baseURL, model.JobDiscovering, maxPages, discovered, empty)
	return scanJob(row)
}

// FindJob returns the job or ErrNotFound.
func (s *Store) FindJob(ctx context.Context, id uuid.UUID) (*model.ScrapeJob, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM scrape_jobs WHERE id = $1`, id)
	return scanJob(row)
}

// ListJobs returns the jobs of a knowledge base, newest first.
func (s *Store) ListJobs(ctx context.Context, kbID uuid.UUID) ([]model.ScrapeJob, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+jobColumns+` FROM scrape_jobs
		WHERE knowledge_base_id = $1
		ORDER BY created_at DESC`, kbID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ScrapeJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

// ClaimJob atomically claims the oldest unclaimed job in the given
// status for this worker. ErrNotFound means nothing to do.
func (s *Store) ClaimJob(ctx context.Context, status model.JobStatus) (*model.ScrapeJob, error) {
	row := s.DB.QueryRowContext(ctx, `
		UPDATE scrape_jobs SET claimed = true
		WHERE id = (
			SELECT id FROM scrape_jobs
			WHERE status = $1 AND NOT claimed
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING `+jobColumns, status)
	return scanJob(row)
}

// UpdateJobStatus moves the job to the given status, enforcing the
// state machine in the database so concurrent writers cannot race a
// job backward. Illegal transitions return ErrConflict. Moving to
// IN_PROGRESS releases the claim so the ingest worker can pick the job
// up.
func (s *Store) UpdateJobStatus(ctx context.Context, id uuid.UUID, to model.JobStatus, errMsg string) error {
	preds := model.PredecessorsOf(to)
	if len(preds) == 0 {
		return fmt.Errorf("%w: no transition leads to %s", ErrConflict, to)
	}
	from := make([]string, len(preds))
	for i, p := range preds {
		from[i] = string(p)
	}

	res, err := s.DB.ExecContext(ctx, `
		UPDATE scrape_jobs
		SET status = $2,
		    error_message = COALESCE(NULLIF($3, ''), error_message),
		    claimed = CASE WHEN $2 = 'IN_PROGRESS' THEN false ELSE claimed END,
		    completed_at = CASE WHEN $2 IN ('COMPLETED', 'FAILED') THEN now() ELSE completed_at END
		WHERE id = $1 AND status = ANY(string_to_array($4, ','))`,
		id, to, errMsg, strings.Join(from, ","))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	// Distinguish a missing job from an illegal transition.
	job, err := s.FindJob(ctx, id)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: cannot move job from %s to %s", ErrConflict, job.Status, to)
}

// UpdateJobDiscovered writes discovery progress. total_urls never
// regresses even when reports arrive out of order.
func (s *Store) UpdateJobDiscovered(ctx context.Context, id uuid.UUID, discovered []string) error {
	raw, err := jsonbStrings(discovered)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE scrape_jobs
		SET discovered_urls = $2,
		    total_urls = GREATEST(total_urls, $3)
		WHERE id = $1 AND status = 'DISCOVERING'`,
		id, raw, len(discovered))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetSelectedURLs records the operator's selection and moves the job
// from PENDING to IN_PROGRESS. Selections outside the discovered set
// return ErrConflict.
func (s *Store) SetSelectedURLs(ctx context.Context, id uuid.UUID, selected []string) (*model.ScrapeJob, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	job, err := scanJob(tx.QueryRowContext(ctx,
		`SELECT `+jobColumns+` FROM scrape_jobs WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}
	if job.Status != model.JobPending {
		return nil, fmt.Errorf("%w: cannot select urls while job is %s", ErrConflict, job.Status)
	}

	discovered := make(map[string]struct{}, len(job.DiscoveredURLs))
	for _, u := range job.DiscoveredURLs {
		discovered[u] = struct{}{}
	}
	for _, u := range selected {
		if _, ok := discovered[u]; !ok {
			return nil, fmt.Errorf("%w: %s was not discovered by this job", ErrConflict, u)
		}
	}

	raw, err := jsonbStrings(selected)
	if err != nil {
		return nil, err
	}
	updated, err := scanJob(tx.QueryRowContext(ctx, `
		UPDATE scrape_jobs
		SET selected_urls = $2, status = $3, claimed = false
		WHERE id = $1
		RETURNING `+jobColumns,
		id, raw, model.JobInProgress))
	if err != nil {
		return nil, err
	}
	return updated, tx.Commit()
}

// UpdateJobProgress writes ingestion progress. scraped_count never
// regresses.
func (s *Store) UpdateJobProgress(ctx context.Context, id uuid.UUID, scrapedURLs []string, scrapedCount int) error {
	raw, err := jsonbStrings(scrapedURLs)
	if err != nil {
		return err
	}
	res, err := s.DB.ExecContext(ctx, `
		UPDATE scrape_jobs
		SET scraped_urls = $2,
		    scraped_count = GREATEST(scraped_count, $3)
		WHERE id = $1`,
		id, raw, scrapedCount)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ReleaseJob clears the claim on a job that is still IN_PROGRESS so a
// worker can pick it up again. Jobs in any other state are left alone.
func (s *Store) ReleaseJob(ctx context.Context, id uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx, `
		UPDATE scrape_jobs
		SET claimed = false
		WHERE id = $1 AND status = $2`,
		id, model.JobInProgress)
	return err
}

// DeleteExpiredJobs removes terminal jobs that completed before the
// cutoff, returning the number deleted. Documents are untouched; only
// the job bookkeeping expires.
func (s *Store) DeleteExpiredJobs(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
		DELETE FROM scrape_jobs
		WHERE status IN ('COMPLETED', 'FAILED') AND completed_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanJob(row rowScanner) (*model.ScrapeJob, error) {
	var job model.ScrapeJob
	var userID uuid.NullUUID
	var discovered, selected, scraped []byte
	var errMsg sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(&job.ID, &job.KnowledgeBaseID, &userID, &job.BaseURL, &job.Status,
		&job.MaxPages, &discovered, &selected, &scraped, &job.TotalURLs, &job.ScrapedCount,
		&errMsg, &job.Claimed, &job.CreatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if userID.Valid {
		id := userID.UUID
		job.UserID = &id
	}
	if job.DiscoveredURLs, err = scanStrings(discovered); err != nil {
		return nil, err
	}
	if job.SelectedURLs, err = scanStrings(selected); err != nil {
		return nil, err
	}
	if job.ScrapedURLs, err = scanStrings(scraped); err != nil {
		return nil, err
	}
	job.ErrorMessage = fromNullString(errMsg)
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		job.CompletedAt = &t
	}
	return &job, nil
}
