package store

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"quarry/internal/model"
)

const documentColumns = `id, knowledge_base_id, title, content, markdown, source_url,
	status, chunk_count, error_message, metadata, tags, created_at, updated_at`

// CreateDocument inserts a document in PROCESSING.
func (s *Store) CreateDocument(ctx context.Context, doc *model.Document) (*model.Document, error) {
	metadata, err := jsonbMap(doc.Metadata)
	if err != nil {
		return nil, err
	}
	tags, err := jsonbStrings(doc.Tags)
	if err != nil {
		return nil, err
	}

	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO documents (id, knowledge_base_id, title, content, markdown, source_url,
		                       status, metadata, tags)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+documentColumns,
		uuid.New(), doc.KnowledgeBaseID, doc.Title, doc.Content, doc.Markdown,
		doc.SourceURL, model.DocProcessing, metadata, tags)
	return scanDocument(row)
}

// UpdateDocumentStatus finishes a document: COMPLETED with its chunk
// count, or FAILED with the underlying cause.
func (s *Store) UpdateDocumentStatus(ctx context.Context, id uuid.UUID, status model.DocumentStatus, chunkCount int, errMsg string) error {
	res, err := s.DB.ExecContext(ctx, `
		UPDATE documents
		SET status = $2, chunk_count = $3,
		    error_message = NULLIF($4, ''),
		    updated_at = now()
		WHERE id = $1`,
		id, status, chunkCount, errMsg)
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

// FindDocument returns the document or ErrNotFound.
func (s *Store) FindDocument(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	row := s.DB.QueryRowContext(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`, id)
	return scanDocument(row)
}

// FindDocumentBySourceURL returns the knowledge base's document for a
// source URL, or ErrNotFound.
func (s *Store) FindDocumentBySourceURL(ctx context.Context, kbID uuid.UUID, sourceURL string) (*model.Document, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE knowledge_base_id = $1 AND source_url = $2`, kbID, sourceURL)
	return scanDocument(row)
}

// ListDocuments returns the documents of a knowledge base, newest
// first. Content is included; callers that only need listings should
// trim it themselves.
func (s *Store) ListDocuments(ctx context.Context, kbID uuid.UUID) ([]model.Document, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+documentColumns+` FROM documents
		WHERE knowledge_base_id = $1
		ORDER BY created_at DESC`, kbID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *doc)
	}
	return out, rows.Err()
}

// DeleteDocument removes the document and its chunks in one
// transaction, chunks first.
func (s *Store) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE document_id = $1`, id); err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
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
	return tx.Commit()
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var doc model.Document
	var sourceURL, errMsg sql.NullString
	var metadata pqtype.NullRawMessage
	var tags []byte

	err := row.Scan(&doc.ID, &doc.KnowledgeBaseID, &doc.Title, &doc.Content, &doc.Markdown,
		&sourceURL, &doc.Status, &doc.ChunkCount, &errMsg, &metadata, &tags,
		&doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	if sourceURL.Valid {
		u := sourceURL.String
		doc.SourceURL = &u
	}
	doc.ErrorMessage = fromNullString(errMsg)
	if doc.Metadata, err = scanMap(metadata); err != nil {
		return nil, err
	}
	if doc.Tags, err = scanStrings(tags); err != nil {
		return nil, err
	}
	return &doc, nil
}
