package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"quarry/internal/model"
)

// InsertChunk persists one embedded chunk.
func (s *Store) InsertChunk(ctx context.Context, chunk *model.Chunk) error {
	metadata, err := jsonbMap(chunk.Metadata)
	if err != nil {
		return err
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT INTO document_chunks (id, document_id, chunk_index, content,
		                             start_char, end_char, embedding, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.New(), chunk.DocumentID, chunk.ChunkIndex, chunk.Content,
		chunk.StartChar, chunk.EndChar, pgvector.NewVector(chunk.Embedding), metadata)
	return err
}

// DeleteChunksByDocument removes every chunk of a document. Used when
// re-ingesting a source URL and when cleaning up a failed document.
func (s *Store) DeleteChunksByDocument(ctx context.Context, documentID uuid.UUID) error {
	_, err := s.DB.ExecContext(ctx,
		`DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	return err
}

// CountChunksByDocument returns the number of live chunks.
func (s *Store) CountChunksByDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	var n int
	err := s.DB.QueryRowContext(ctx,
		`SELECT count(*) FROM document_chunks WHERE document_id = $1`, documentID).Scan(&n)
	return n, err
}

// NearestByCosine returns the limit chunks closest to the query vector
// among COMPLETED documents of the knowledge base. Score is cosine
// similarity (1 - distance). Ties break on chunk_index then
// document_id so results are deterministic.
func (s *Store) NearestByCosine(ctx context.Context, kbID uuid.UUID, query []float32, limit int) ([]model.SearchResult, error) {
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.DB.QueryContext(ctx, `
		SELECT c.id, c.document_id, c.content,
		       c.embedding <=> $2 AS distance,
		       d.title, d.source_url
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.knowledge_base_id = $1 AND d.status = 'COMPLETED'
		ORDER BY c.embedding <=> $2, c.chunk_index, c.document_id
		LIMIT $3`,
		kbID, pgvector.NewVector(query), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.SearchResult
	for rows.Next() {
		var r model.SearchResult
		var distance float64
		var sourceURL *string
		if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.Content, &distance, &r.DocumentTitle, &sourceURL); err != nil {
			return nil, err
		}
		r.Score = 1 - distance
		r.SourceURL = sourceURL
		out = append(out, r)
	}
	return out, rows.Err()
}
