// Package model holds the shared domain types: knowledge bases, scrape
// jobs, documents, chunks, and the job/document state machines.
package model

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of a scrape job.
type JobStatus string

const (
	JobDiscovering JobStatus = "DISCOVERING"
	JobPending     JobStatus = "PENDING"
	JobInProgress  JobStatus = "IN_PROGRESS"
	JobCompleted   JobStatus = "COMPLETED"
	JobFailed      JobStatus = "FAILED"
)

// jobTransitions is the forward edge set. FAILED is reachable from any
// non-terminal state; nothing transitions backward.
var jobTransitions = map[JobStatus][]JobStatus{
	JobDiscovering: {JobPending, JobFailed},
	JobPending:     {JobInProgress, JobFailed},
	JobInProgress:  {JobCompleted, JobFailed},
}

// Terminal reports whether no further transitions exist.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// CanTransitionTo reports whether s -> next is a legal move.
func (s JobStatus) CanTransitionTo(next JobStatus) bool {
	for _, t := range jobTransitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// PredecessorsOf returns every status that may legally move to next.
func PredecessorsOf(next JobStatus) []JobStatus {
	var from []JobStatus
	for s, targets := range jobTransitions {
		for _, t := range targets {
			if t == next {
				from = append(from, s)
			}
		}
	}
	return from
}

// DocumentStatus is the lifecycle state of an ingested document.
type DocumentStatus string

const (
	DocProcessing DocumentStatus = "PROCESSING"
	DocCompleted  DocumentStatus = "COMPLETED"
	DocFailed     DocumentStatus = "FAILED"
)

// KnowledgeBase is a corpus of documents sharing one embedding model
// and one chunking configuration.
type KnowledgeBase struct {
	ID             uuid.UUID  `json:"id"`
	WorkspaceID    uuid.UUID  `json:"workspaceId"`
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	EmbeddingModel string     `json:"embeddingModel"`
	ChunkSize      int        `json:"chunkSize"`
	ChunkOverlap   int        `json:"chunkOverlap"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
	DeletedAt      *time.Time `json:"deletedAt,omitempty"`
}

// ScrapeJob tracks one site ingestion from discovery through
// completion.
type ScrapeJob struct {
	ID              uuid.UUID  `json:"id"`
	KnowledgeBaseID uuid.UUID  `json:"knowledgeBaseId"`
	UserID          *uuid.UUID `json:"userId,omitempty"`
	BaseURL         string     `json:"baseUrl"`
	Status          JobStatus  `json:"status"`
	MaxPages        int        `json:"maxPages"`
	DiscoveredURLs  []string   `json:"discoveredUrls"`
	SelectedURLs    []string   `json:"selectedUrls"`
	ScrapedURLs     []string   `json:"scrapedUrls"`
	TotalURLs       int        `json:"totalUrls"`
	ScrapedCount    int        `json:"scrapedCount"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	Claimed         bool       `json:"-"`
	CreatedAt       time.Time  `json:"createdAt"`
	CompletedAt     *time.Time `json:"completedAt,omitempty"`
}

// Document is one ingested page (or uploaded text) in a knowledge base.
type Document struct {
	ID              uuid.UUID      `json:"id"`
	KnowledgeBaseID uuid.UUID      `json:"knowledgeBaseId"`
	Title           string         `json:"title"`
	Content         string         `json:"content"`
	Markdown        string         `json:"markdown,omitempty"`
	SourceURL       *string        `json:"sourceUrl,omitempty"`
	Status          DocumentStatus `json:"status"`
	ChunkCount      int            `json:"chunkCount"`
	ErrorMessage    string         `json:"errorMessage,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	Tags            []string       `json:"tags,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// Chunk is an embedded slice of a document's content.
type Chunk struct {
	ID         uuid.UUID      `json:"id"`
	DocumentID uuid.UUID      `json:"documentId"`
	ChunkIndex int            `json:"chunkIndex"`
	Content    string         `json:"content"`
	StartChar  int            `json:"startChar"`
	EndChar    int            `json:"endChar"`
	Embedding  []float32      `json:"-"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// SearchResult is one vector-search hit.
type SearchResult struct {
	ChunkID       uuid.UUID `json:"chunkId"`
	DocumentID    uuid.UUID `json:"documentId"`
	Content       string    `json:"content"`
	Score         float64   `json:"score"`
	DocumentTitle string    `json:"documentTitle"`
	SourceURL     *string   `json:"sourceUrl,omitempty"`
}

// User is an operator account. Authentication itself lives elsewhere;
// the admin CLI manages these rows.
type User struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	Name          string    `json:"name,omitempty"`
	IsAdmin       bool      `json:"isAdmin"`
	EmailVerified bool      `json:"emailVerified"`
	CreatedAt     time.Time `json:"createdAt"`
}

// Agent is a downstream consumer attached to one or more knowledge
// bases. Knowledge bases with attached agents refuse deletion.
type Agent struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}
