package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"

	"quarry/internal/config"
	"quarry/internal/model"
	"quarry/internal/store"
)

type fakeStore struct {
	kbs  map[uuid.UUID]*model.KnowledgeBase
	jobs map[uuid.UUID]*model.ScrapeJob
	docs map[uuid.UUID]*model.Document
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		kbs:  make(map[uuid.UUID]*model.KnowledgeBase),
		jobs: make(map[uuid.UUID]*model.ScrapeJob),
		docs: make(map[uuid.UUID]*model.Document),
	}
}

func (f *fakeStore) CreateKnowledgeBase(ctx context.Context, workspaceID uuid.UUID, name, description, embeddingModel string, chunkSize, chunkOverlap int) (*model.KnowledgeBase, error) {
	if chunkSize <= 0 || chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("%w: bad chunking", store.ErrConflict)
	}
	kb := &model.KnowledgeBase{
		ID: uuid.New(), WorkspaceID: workspaceID, Name: name, Description: description,
		EmbeddingModel: embeddingModel, ChunkSize: chunkSize, ChunkOverlap: chunkOverlap,
	}
	f.kbs[kb.ID] = kb
	return kb, nil
}

func (f *fakeStore) FindKnowledgeBase(ctx context.Context, id uuid.UUID) (*model.KnowledgeBase, error) {
	kb, ok := f.kbs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return kb, nil
}

func (f *fakeStore) ListKnowledgeBases(ctx context.Context, workspaceID uuid.UUID) ([]model.KnowledgeBase, error) {
	var out []model.KnowledgeBase
	for _, kb := range f.kbs {
		out = append(out, *kb)
	}
	return out, nil
}

func (f *fakeStore) UpdateKnowledgeBase(ctx context.Context, id uuid.UUID, name, description, embeddingModel string, chunkSize, chunkOverlap int) (*model.KnowledgeBase, error) {
	kb, ok := f.kbs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	kb.Name, kb.Description, kb.EmbeddingModel = name, description, embeddingModel
	kb.ChunkSize, kb.ChunkOverlap = chunkSize, chunkOverlap
	return kb, nil
}

func (f *fakeStore) SoftDeleteKnowledgeBase(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.kbs[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.kbs, id)
	return nil
}

func (f *fakeStore) CreateJob(ctx context.Context, kbID uuid.UUID, userID *uuid.UUID, baseURL string, maxPages int) (*model.ScrapeJob, error) {
	job := &model.ScrapeJob{
		ID: uuid.New(), KnowledgeBaseID: kbID, UserID: userID, BaseURL: baseURL,
		Status: model.JobDiscovering, MaxPages: maxPages,
		DiscoveredURLs: []string{baseURL}, TotalURLs: 1,
	}
	f.jobs[job.ID] = job
	return job, nil
}

func (f *fakeStore) FindJob(ctx context.Context, id uuid.UUID) (*model.ScrapeJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return job, nil
}

func (f *fakeStore) ListJobs(ctx context.Context, kbID uuid.UUID) ([]model.ScrapeJob, error) {
	var out []model.ScrapeJob
	for _, j := range f.jobs {
		if j.KnowledgeBaseID == kbID {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (f *fakeStore) SetSelectedURLs(ctx context.Context, id uuid.UUID, selected []string) (*model.ScrapeJob, error) {
	job, ok := f.jobs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if job.Status != model.JobPending {
		return nil, fmt.Errorf("%w: cannot select urls while job is %s", store.ErrConflict, job.Status)
	}
	discovered := make(map[string]struct{})
	for _, u := range job.DiscoveredURLs {
		discovered[u] = struct{}{}
	}
	for _, u := range selected {
		if _, ok := discovered[u]; !ok {
			return nil, fmt.Errorf("%w: %s was not discovered by this job", store.ErrConflict, u)
		}
	}
	job.SelectedURLs = selected
	job.Status = model.JobInProgress
	return job, nil
}

func (f *fakeStore) UpdateJobStatus(ctx context.Context, id uuid.UUID, to model.JobStatus, errMsg string) error {
	job, ok := f.jobs[id]
	if !ok {
		return store.ErrNotFound
	}
	if !job.Status.CanTransitionTo(to) {
		return fmt.Errorf("%w: cannot move job from %s to %s", store.ErrConflict, job.Status, to)
	}
	job.Status = to
	job.ErrorMessage = errMsg
	return nil
}

func (f *fakeStore) FindDocument(ctx context.Context, id uuid.UUID) (*model.Document, error) {
	doc, ok := f.docs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return doc, nil
}

func (f *fakeStore) ListDocuments(ctx context.Context, kbID uuid.UUID) ([]model.Document, error) {
	var out []model.Document
	for _, d := range f.docs {
		if d.KnowledgeBaseID == kbID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeStore) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	if _, ok := f.docs[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.docs, id)
	return nil
}

type fakeSearcher struct {
	results []model.SearchResult
	err     error
}

func (f *fakeSearcher) Search(ctx context.Context, kbID uuid.UUID, query string, limit int) ([]model.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

func testServer(st *fakeStore, se *fakeSearcher) *Server {
	cfg := &config.Config{}
	cfg.ApplyDefaults()
	return NewServer(Deps{Config: cfg, Store: st, Search: se})
}

func doJSON(t *testing.T, s *Server, method, path string, body any) (int, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App().Test(req, -1)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, raw
}

func TestCreateKnowledgeBaseValidation(t *testing.T) {
	s := testServer(newFakeStore(), &fakeSearcher{})

	status, _ := doJSON(t, s, "POST", "/v1/knowledge-bases", map[string]any{})
	if status != 400 {
		t.Fatalf("missing name: status = %d, want 400", status)
	}

	status, raw := doJSON(t, s, "POST", "/v1/knowledge-bases", map[string]any{"name": "docs"})
	if status != 201 {
		t.Fatalf("create: status = %d, body %s", status, raw)
	}
	var kb model.KnowledgeBase
	if err := json.Unmarshal(raw, &kb); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if kb.EmbeddingModel == "" || kb.ChunkSize == 0 {
		t.Fatalf("defaults not applied: %+v", kb)
	}
}

func TestGetKnowledgeBaseErrors(t *testing.T) {
	s := testServer(newFakeStore(), &fakeSearcher{})

	status, _ := doJSON(t, s, "GET", "/v1/knowledge-bases/not-a-uuid", nil)
	if status != 400 {
		t.Fatalf("invalid id: status = %d, want 400", status)
	}
	status, _ = doJSON(t, s, "GET", "/v1/knowledge-bases/"+uuid.NewString(), nil)
	if status != 404 {
		t.Fatalf("unknown id: status = %d, want 404", status)
	}
}

func TestCreateJobFlow(t *testing.T) {
	st := newFakeStore()
	s := testServer(st, &fakeSearcher{})

	kb, _ := st.CreateKnowledgeBase(context.Background(), uuid.Nil, "docs", "", "m", 500, 100)

	status, _ := doJSON(t, s, "POST", "/v1/jobs", map[string]any{
		"knowledgeBaseId": kb.ID.String(), "baseUrl": "not a url",
	})
	if status != 400 {
		t.Fatalf("bad baseUrl: status = %d, want 400", status)
	}

	status, _ = doJSON(t, s, "POST", "/v1/jobs", map[string]any{
		"knowledgeBaseId": uuid.NewString(), "baseUrl": "https://site.test/",
	})
	if status != 404 {
		t.Fatalf("unknown kb: status = %d, want 404", status)
	}

	status, raw := doJSON(t, s, "POST", "/v1/jobs", map[string]any{
		"knowledgeBaseId": kb.ID.String(), "baseUrl": "https://site.test/",
	})
	if status != 201 {
		t.Fatalf("create job: status = %d, body %s", status, raw)
	}
	var job model.ScrapeJob
	if err := json.Unmarshal(raw, &job); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if job.Status != model.JobDiscovering {
		t.Fatalf("new job status = %s, want DISCOVERING", job.Status)
	}
}

func TestSelectURLsSubsetEnforced(t *testing.T) {
	st := newFakeStore()
	s := testServer(st, &fakeSearcher{})

	kb, _ := st.CreateKnowledgeBase(context.Background(), uuid.Nil, "docs", "", "m", 500, 100)
	job, _ := st.CreateJob(context.Background(), kb.ID, nil, "https://site.test/", 0)
	job.Status = model.JobPending
	job.DiscoveredURLs = []string{"https://site.test/", "https://site.test/a"}

	status, _ := doJSON(t, s, "POST", "/v1/jobs/"+job.ID.String()+"/select", map[string]any{
		"urls": []string{"https://site.test/not-discovered"},
	})
	if status != 409 {
		t.Fatalf("out-of-set selection: status = %d, want 409", status)
	}

	status, raw := doJSON(t, s, "POST", "/v1/jobs/"+job.ID.String()+"/select", map[string]any{
		"urls": []string{"https://site.test/a"},
	})
	if status != 200 {
		t.Fatalf("valid selection: status = %d, body %s", status, raw)
	}
	var updated model.ScrapeJob
	_ = json.Unmarshal(raw, &updated)
	if updated.Status != model.JobInProgress {
		t.Fatalf("status after select = %s, want IN_PROGRESS", updated.Status)
	}

	// Selecting again while IN_PROGRESS is a conflict.
	status, _ = doJSON(t, s, "POST", "/v1/jobs/"+job.ID.String()+"/select", map[string]any{
		"urls": []string{"https://site.test/a"},
	})
	if status != 409 {
		t.Fatalf("double selection: status = %d, want 409", status)
	}
}

func TestCancelJob(t *testing.T) {
	st := newFakeStore()
	s := testServer(st, &fakeSearcher{})

	kb, _ := st.CreateKnowledgeBase(context.Background(), uuid.Nil, "docs", "", "m", 500, 100)
	job, _ := st.CreateJob(context.Background(), kb.ID, nil, "https://site.test/", 0)

	status, raw := doJSON(t, s, "POST", "/v1/jobs/"+job.ID.String()+"/cancel", nil)
	if status != 200 {
		t.Fatalf("cancel: status = %d, body %s", status, raw)
	}
	var cancelled model.ScrapeJob
	_ = json.Unmarshal(raw, &cancelled)
	if cancelled.Status != model.JobFailed {
		t.Fatalf("status after cancel = %s, want FAILED", cancelled.Status)
	}

	// A terminal job cannot be cancelled twice.
	status, _ = doJSON(t, s, "POST", "/v1/jobs/"+job.ID.String()+"/cancel", nil)
	if status != 409 {
		t.Fatalf("double cancel: status = %d, want 409", status)
	}
}

func TestSearchEndpoint(t *testing.T) {
	st := newFakeStore()
	se := &fakeSearcher{results: []model.SearchResult{{Content: "hit", Score: 0.9, DocumentTitle: "t"}}}
	s := testServer(st, se)

	kbID := uuid.NewString()

	status, _ := doJSON(t, s, "POST", "/v1/knowledge-bases/"+kbID+"/search", map[string]any{})
	if status != 400 {
		t.Fatalf("empty query: status = %d, want 400", status)
	}

	status, raw := doJSON(t, s, "POST", "/v1/knowledge-bases/"+kbID+"/search", map[string]any{
		"query": "how does discovery work",
	})
	if status != 200 {
		t.Fatalf("search: status = %d, body %s", status, raw)
	}
	var resp SearchResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || len(resp.Results) != 1 {
		t.Fatalf("resp = %+v", resp)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	s := testServer(newFakeStore(), &fakeSearcher{})

	status, _ := doJSON(t, s, "GET", "/healthz", nil)
	if status != 200 {
		t.Fatalf("healthz: status = %d", status)
	}
	status, raw := doJSON(t, s, "GET", "/metrics", nil)
	if status != 200 || !bytes.Contains(raw, []byte("quarry_http_requests_total")) {
		t.Fatalf("metrics: status = %d, body %s", status, raw)
	}
}
