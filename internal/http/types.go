package http

import "quarry/internal/model"

// ErrorResponse is the error envelope for every endpoint.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Code    string `json:"code,omitempty"`
	Error   string `json:"error"`
}

// CreateKnowledgeBaseRequest is the input for POST /v1/knowledge-bases.
type CreateKnowledgeBaseRequest struct {
	WorkspaceID    string `json:"workspaceId"`
	Name           string `json:"name"`
	Description    string `json:"description,omitempty"`
	EmbeddingModel string `json:"embeddingModel,omitempty"`
	ChunkSize      int    `json:"chunkSize,omitempty"`
	ChunkOverlap   int    `json:"chunkOverlap,omitempty"`
}

// UpdateKnowledgeBaseRequest is the input for PATCH
// /v1/knowledge-bases/:id. Omitted fields keep their current value.
type UpdateKnowledgeBaseRequest struct {
	Name           *string `json:"name,omitempty"`
	Description    *string `json:"description,omitempty"`
	EmbeddingModel *string `json:"embeddingModel,omitempty"`
	ChunkSize      *int    `json:"chunkSize,omitempty"`
	ChunkOverlap   *int    `json:"chunkOverlap,omitempty"`
}

// CreateJobRequest is the input for POST /v1/jobs.
type CreateJobRequest struct {
	KnowledgeBaseID string `json:"knowledgeBaseId"`
	BaseURL         string `json:"baseUrl"`
	MaxPages        int    `json:"maxPages,omitempty"`
	UserID          string `json:"userId,omitempty"`
}

// SelectURLsRequest is the input for POST /v1/jobs/:id/select.
type SelectURLsRequest struct {
	URLs []string `json:"urls"`
}

// SearchRequest is the input for POST /v1/knowledge-bases/:id/search.
type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// SearchResponse wraps vector-search results.
type SearchResponse struct {
	Success bool                 `json:"success"`
	Results []model.SearchResult `json:"results"`
}

// DocumentSummary is the listing projection of a document: everything
// but the full content.
type DocumentSummary struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	SourceURL    *string `json:"sourceUrl,omitempty"`
	Status       string  `json:"status"`
	ChunkCount   int     `json:"chunkCount"`
	ErrorMessage string  `json:"errorMessage,omitempty"`
	CreatedAt    string  `json:"createdAt"`
}
