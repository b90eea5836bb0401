// Package search answers natural-language queries against a knowledge
// base by embedding the query and running a cosine nearest-neighbor
// scan over the chunk index.
package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"quarry/internal/embedding"
	"quarry/internal/metrics"
	"quarry/internal/model"
)

// ErrEmptyQuery is returned for blank queries.
var ErrEmptyQuery = errors.New("query must not be empty")

// Store is the slice of the persistence layer search needs.
// *store.Store satisfies it.
type Store interface {
	FindKnowledgeBase(ctx context.Context, id uuid.UUID) (*model.KnowledgeBase, error)
	NearestByCosine(ctx context.Context, kbID uuid.UUID, query []float32, limit int) ([]model.SearchResult, error)
}

// Service performs vector search.
type Service struct {
	store    Store
	embedder embedding.Embedder
}

func New(st Store, em embedding.Embedder) *Service {
	return &Service{store: st, embedder: em}
}

// Search embeds the query with the knowledge base's own model and
// returns the limit closest chunks of COMPLETED documents, best first.
func (s *Service) Search(ctx context.Context, kbID uuid.UUID, query string, limit int) ([]model.SearchResult, error) {
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if limit <= 0 {
		limit = 10
	}

	kb, err := s.store.FindKnowledgeBase(ctx, kbID)
	if err != nil {
		return nil, err
	}

	vectors, err := s.embedder.Embed(ctx, kb.EmbeddingModel, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := s.store.NearestByCosine(ctx, kb.ID, vectors[0], limit)
	if err != nil {
		return nil, err
	}
	metrics.RecordSearch(len(results))
	return results, nil
}
