package search

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"quarry/internal/embedding"
	"quarry/internal/model"
)

type fakeStore struct {
	kb      *model.KnowledgeBase
	results []model.SearchResult

	gotQuery []float32
	gotLimit int
}

func (f *fakeStore) FindKnowledgeBase(ctx context.Context, id uuid.UUID) (*model.KnowledgeBase, error) {
	if f.kb == nil || f.kb.ID != id {
		return nil, errors.New("not found")
	}
	return f.kb, nil
}

func (f *fakeStore) NearestByCosine(ctx context.Context, kbID uuid.UUID, query []float32, limit int) ([]model.SearchResult, error) {
	f.gotQuery = query
	f.gotLimit = limit
	return f.results, nil
}

type fakeEmbedder struct {
	gotModel string
	err      error
}

func (f *fakeEmbedder) Embed(ctx context.Context, model string, inputs []string) ([][]float32, error) {
	f.gotModel = model
	if f.err != nil {
		return nil, f.err
	}
	return [][]float32{{0.1, 0.2, 0.3}}, nil
}

func TestSearchUsesKnowledgeBaseModel(t *testing.T) {
	kb := &model.KnowledgeBase{ID: uuid.New(), EmbeddingModel: "custom-model"}
	st := &fakeStore{kb: kb, results: []model.SearchResult{
		{Content: "hit one", Score: 0.91},
		{Content: "hit two", Score: 0.84},
	}}
	em := &fakeEmbedder{}

	results, err := New(st, em).Search(context.Background(), kb.ID, "how do crawlers work", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if em.gotModel != "custom-model" {
		t.Fatalf("embedded with model %q, want the knowledge base's model", em.gotModel)
	}
	if st.gotLimit != 5 {
		t.Fatalf("limit = %d, want 5", st.gotLimit)
	}
	if len(st.gotQuery) != 3 {
		t.Fatalf("query vector dim = %d", len(st.gotQuery))
	}
	if len(results) != 2 || results[0].Score < results[1].Score {
		t.Fatalf("results = %+v", results)
	}
}

func TestSearchEmptyQuery(t *testing.T) {
	_, err := New(&fakeStore{}, &fakeEmbedder{}).Search(context.Background(), uuid.New(), "", 5)
	if !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestSearchEmbeddingFailure(t *testing.T) {
	kb := &model.KnowledgeBase{ID: uuid.New(), EmbeddingModel: "m"}
	st := &fakeStore{kb: kb}
	em := &fakeEmbedder{err: embedding.ErrEmbeddingFailed}

	_, err := New(st, em).Search(context.Background(), kb.ID, "query", 5)
	if !errors.Is(err, embedding.ErrEmbeddingFailed) {
		t.Fatalf("err = %v, want ErrEmbeddingFailed", err)
	}
}

func TestSearchDefaultLimit(t *testing.T) {
	kb := &model.KnowledgeBase{ID: uuid.New(), EmbeddingModel: "m"}
	st := &fakeStore{kb: kb}

	if _, err := New(st, &fakeEmbedder{}).Search(context.Background(), kb.ID, "query", 0); err != nil {
		t.Fatalf("Search: %v", err)
	}
	if st.gotLimit != 10 {
		t.Fatalf("limit = %d, want default 10", st.gotLimit)
	}
}
