// Package http is the API surface: knowledge bases, scrape jobs,
// documents, and vector search over fiber.
package http

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"quarry/internal/config"
	"quarry/internal/embedding"
	"quarry/internal/metrics"
	"quarry/internal/model"
	"quarry/internal/search"
	"quarry/internal/store"
)

// StoreAPI is the slice of the store the handlers use. *store.Store
// satisfies it; tests swap in fakes.
type StoreAPI interface {
	CreateKnowledgeBase(ctx context.Context, workspaceID uuid.UUID, name, description, embeddingModel string, chunkSize, chunkOverlap int) (*model.KnowledgeBase, error)
	FindKnowledgeBase(ctx context.Context, id uuid.UUID) (*model.KnowledgeBase, error)
	ListKnowledgeBases(ctx context.Context, workspaceID uuid.UUID) ([]model.KnowledgeBase, error)
	UpdateKnowledgeBase(ctx context.Context, id uuid.UUID, name, description, embeddingModel string, chunkSize, chunkOverlap int) (*model.KnowledgeBase, error)
	SoftDeleteKnowledgeBase(ctx context.Context, id uuid.UUID) error

	CreateJob(ctx context.Context, kbID uuid.UUID, userID *uuid.UUID, baseURL string, maxPages int) (*model.ScrapeJob, error)
	FindJob(ctx context.Context, id uuid.UUID) (*model.ScrapeJob, error)
	ListJobs(ctx context.Context, kbID uuid.UUID) ([]model.ScrapeJob, error)
	SetSelectedURLs(ctx context.Context, id uuid.UUID, selected []string) (*model.ScrapeJob, error)
	UpdateJobStatus(ctx context.Context, id uuid.UUID, to model.JobStatus, errMsg string) error

	FindDocument(ctx context.Context, id uuid.UUID) (*model.Document, error)
	ListDocuments(ctx context.Context, kbID uuid.UUID) ([]model.Document, error)
	DeleteDocument(ctx context.Context, id uuid.UUID) error
}

// Searcher answers vector-search queries. *search.Service satisfies it.
type Searcher interface {
	Search(ctx context.Context, kbID uuid.UUID, query string, limit int) ([]model.SearchResult, error)
}

// Deps carries everything the handlers need.
type Deps struct {
	Config *config.Config
	Store  StoreAPI
	Search Searcher
	Logger *slog.Logger
	// Redis enables per-client rate limiting when set.
	Redis *redis.Client
	// Ping checks database reachability for /readyz.
	Ping func(ctx context.Context) error
}

type Server struct {
	app  *fiber.App
	deps Deps
}

func NewServer(deps Deps) *Server {
	app := fiber.New()

	// Request logging + metrics middleware
	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()

		reqID := c.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)

		err := c.Next()

		latency := time.Since(start)
		status := c.Response().StatusCode()
		metrics.RecordRequest(c.Method(), c.Route().Path, status, latency.Milliseconds())

		if deps.Logger != nil {
			deps.Logger.Info("request",
				"request_id", reqID,
				"method", c.Method(),
				"path", c.Path(),
				"status", status,
				"latency_ms", latency.Milliseconds(),
			)
		}
		return err
	})

	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Get("/readyz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.Context(), 2*time.Second)
		defer cancel()

		dbStatus := "ok"
		if deps.Ping != nil {
			if err := deps.Ping(ctx); err != nil {
				dbStatus = "error"
			}
		}
		redisStatus := "disabled"
		if deps.Redis != nil {
			if err := deps.Redis.Ping(ctx).Err(); err != nil {
				redisStatus = "error"
			} else {
				redisStatus = "ok"
			}
		}

		status := fiber.StatusOK
		if dbStatus != "ok" || redisStatus == "error" {
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{"db": dbStatus, "redis": redisStatus})
	})

	app.Get("/metrics", func(c *fiber.Ctx) error {
		c.Type("text/plain")
		return c.SendString(metrics.Export())
	})

	var rateMw fiber.Handler
	if deps.Redis != nil {
		rateMw = rateLimitMiddleware(deps.Config, deps.Redis)
	} else {
		rateMw = func(c *fiber.Ctx) error { return c.Next() }
	}

	h := &handlers{deps: deps}
	v1 := app.Group("/v1", rateMw)

	v1.Post("/knowledge-bases", h.createKnowledgeBase)
	v1.Get("/knowledge-bases", h.listKnowledgeBases)
	v1.Get("/knowledge-bases/:id", h.getKnowledgeBase)
	v1.Patch("/knowledge-bases/:id", h.updateKnowledgeBase)
	v1.Delete("/knowledge-bases/:id", h.deleteKnowledgeBase)
	v1.Get("/knowledge-bases/:id/jobs", h.listJobs)
	v1.Get("/knowledge-bases/:id/documents", h.listDocuments)
	v1.Post("/knowledge-bases/:id/search", h.searchKnowledgeBase)

	v1.Post("/jobs", h.createJob)
	v1.Get("/jobs/:id", h.getJob)
	v1.Post("/jobs/:id/select", h.selectJobURLs)
	v1.Post("/jobs/:id/cancel", h.cancelJob)

	v1.Get("/documents/:id", h.getDocument)
	v1.Delete("/documents/:id", h.deleteDocument)

	return &Server{app: app, deps: deps}
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) Listen() error {
	addr := fmt.Sprintf("%s:%d", s.deps.Config.Server.Host, s.deps.Config.Server.Port)
	return s.app.Listen(addr)
}

func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}

type handlers struct {
	deps Deps
}

// respondError maps domain errors onto status codes with the shared
// envelope.
func respondError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(ErrorResponse{
			Success: false, Code: "NOT_FOUND", Error: err.Error(),
		})
	case errors.Is(err, store.ErrConflict):
		return c.Status(fiber.StatusConflict).JSON(ErrorResponse{
			Success: false, Code: "CONFLICT", Error: err.Error(),
		})
	case errors.Is(err, search.ErrEmptyQuery):
		return badRequest(c, err.Error())
	case errors.Is(err, embedding.ErrEmbeddingFailed):
		return c.Status(fiber.StatusBadGateway).JSON(ErrorResponse{
			Success: false, Code: "EMBEDDING_FAILED", Error: err.Error(),
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
			Success: false, Code: "INTERNAL_ERROR", Error: err.Error(),
		})
	}
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Success: false, Code: "BAD_REQUEST", Error: msg,
	})
}

func parseID(c *fiber.Ctx, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(param))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid %s: %q", param, c.Params(param))
	}
	return id, nil
}
