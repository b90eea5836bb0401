package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"quarry/internal/model"
)

const kbColumns = `id, workspace_id, name, description, embedding_model,
	chunk_size, chunk_overlap, created_at, updated_at, deleted_at`

// CreateKnowledgeBase inserts a knowledge base and returns it with its
// generated id and timestamps.
func (s *Store) CreateKnowledgeBase(ctx context.Context, workspaceID uuid.UUID, name, description, embeddingModel string, chunkSize, chunkOverlap int) (*model.KnowledgeBase, error) {
	if chunkSize <= 0 || chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap must satisfy 0 <= overlap < size", ErrConflict)
	}

	id := uuid.New()
	row := s.DB.QueryRowContext(ctx, `
		INSERT INTO knowledge_bases (id, workspace_id, name, description, embedding_model, chunk_size, chunk_overlap)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+kbColumns,
		id, workspaceID, name, description, embeddingModel, chunkSize, chunkOverlap)
	return scanKnowledgeBase(row)
}

// FindKnowledgeBase returns the knowledge base or ErrNotFound.
// Soft-deleted rows are invisible.
func (s *Store) FindKnowledgeBase(ctx context.Context, id uuid.UUID) (*model.KnowledgeBase, error) {
	row := s.DB.QueryRowContext(ctx, `
		SELECT `+kbColumns+` FROM knowledge_bases
		WHERE id = $1 AND deleted_at IS NULL`, id)
	return scanKnowledgeBase(row)
}

// ListKnowledgeBases returns the live knowledge bases of a workspace,
// newest first.
func (s *Store) ListKnowledgeBases(ctx context.Context, workspaceID uuid.UUID) ([]model.KnowledgeBase, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT `+kbColumns+` FROM knowledge_bases
		WHERE workspace_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC`, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.KnowledgeBase
	for rows.Next() {
		kb, err := scanKnowledgeBase(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *kb)
	}
	return out, rows.Err()
}

// UpdateKnowledgeBase changes name, description, and embedding
// configuration. The embedding model and chunking cannot change once
// the knowledge base holds documents; that returns ErrConflict.
func (s *Store) UpdateKnowledgeBase(ctx context.Context, id uuid.UUID, name, description, embeddingModel string, chunkSize, chunkOverlap int) (*model.KnowledgeBase, error) {
	if chunkSize <= 0 || chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: chunk overlap must satisfy 0 <= overlap < size", ErrConflict)
	}

	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	current, err := scanKnowledgeBase(tx.QueryRowContext(ctx, `
		SELECT `+kbColumns+` FROM knowledge_bases
		WHERE id = $1 AND deleted_at IS NULL
		FOR UPDATE`, id))
	if err != nil {
		return nil, err
	}

	embeddingChanged := current.EmbeddingModel != embeddingModel ||
		current.ChunkSize != chunkSize || current.ChunkOverlap != chunkOverlap
	if embeddingChanged {
		var docs int
		if err := tx.QueryRowContext(ctx,
			`SELECT count(*) FROM documents WHERE knowledge_base_id = $1`, id).Scan(&docs); err != nil {
			return nil, err
		}
		if docs > 0 {
			return nil, fmt.Errorf("%w: embedding configuration is immutable once documents exist", ErrConflict)
		}
	}

	updated, err := scanKnowledgeBase(tx.QueryRowContext(ctx, `
		UPDATE knowledge_bases
		SET name = $2, description = $3, embedding_model = $4,
		    chunk_size = $5, chunk_overlap = $6, updated_at = now()
		WHERE id = $1
		RETURNING `+kbColumns,
		id, name, description, embeddingModel, chunkSize, chunkOverlap))
	if err != nil {
		return nil, err
	}
	return updated, tx.Commit()
}

// SoftDeleteKnowledgeBase marks the knowledge base deleted. It refuses
// with ErrConflict while agents are attached.
func (s *Store) SoftDeleteKnowledgeBase(ctx context.Context, id uuid.UUID) error {
	agents, err := s.CountAgentsUsing(ctx, id)
	if err != nil {
		return err
	}
	if agents > 0 {
		return fmt.Errorf("%w: %d agent(s) still use this knowledge base", ErrConflict, agents)
	}

	res, err := s.DB.ExecContext(ctx, `
		UPDATE knowledge_bases SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND deleted_at IS NULL`, id)
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

// CountAgentsUsing returns the number of agents attached to the
// knowledge base.
func (s *Store) CountAgentsUsing(ctx context.Context, kbID uuid.UUID) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM agent_knowledge_bases WHERE knowledge_base_id = $1`, kbID).Scan(&n)
	return n, err
}

// CountDocuments returns the number of documents in the knowledge base.
func (s *Store) CountDocuments(ctx context.Context, kbID uuid.UUID) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM documents WHERE knowledge_base_id = $1`, kbID).Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanKnowledgeBase(row rowScanner) (*model.KnowledgeBase, error) {
	var kb model.KnowledgeBase
	var description sql.NullString
	var deletedAt sql.NullTime
	err := row.Scan(&kb.ID, &kb.WorkspaceID, &kb.Name, &description, &kb.EmbeddingModel,
		&kb.ChunkSize, &kb.ChunkOverlap, &kb.CreatedAt, &kb.UpdatedAt, &deletedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	kb.Description = fromNullString(description)
	if deletedAt.Valid {
		t := deletedAt.Time.UTC()
		kb.DeletedAt = &t
	}
	return &kb, nil
}
