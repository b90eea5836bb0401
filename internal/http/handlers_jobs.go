package http

import (
	"net/url"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"quarry/internal/metrics"
	"quarry/internal/model"
)

func (h *handlers) createJob(c *fiber.Ctx) error {
	var req CreateJobRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if req.BaseURL == "" {
		return badRequest(c, "baseUrl is required")
	}
	if u, err := url.Parse(req.BaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return badRequest(c, "baseUrl must be an absolute http(s) URL")
	}
	kbID, err := uuid.Parse(req.KnowledgeBaseID)
	if err != nil {
		return badRequest(c, "invalid knowledgeBaseId")
	}
	if req.MaxPages < 0 {
		return badRequest(c, "maxPages must not be negative")
	}

	var userID *uuid.UUID
	if req.UserID != "" {
		id, err := uuid.Parse(req.UserID)
		if err != nil {
			return badRequest(c, "invalid userId")
		}
		userID = &id
	}

	// The knowledge base must exist and be live before a job can point
	// at it.
	if _, err := h.deps.Store.FindKnowledgeBase(c.Context(), kbID); err != nil {
		return respondError(c, err)
	}

	job, err := h.deps.Store.CreateJob(c.Context(), kbID, userID, req.BaseURL, req.MaxPages)
	if err != nil {
		return respondError(c, err)
	}
	metrics.RecordJobTransition(string(model.JobDiscovering))
	return c.Status(fiber.StatusCreated).JSON(job)
}

func (h *handlers) getJob(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	job, err := h.deps.Store.FindJob(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(job)
}

func (h *handlers) listJobs(c *fiber.Ctx) error {
	kbID, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	jobs, err := h.deps.Store.ListJobs(c.Context(), kbID)
	if err != nil {
		return respondError(c, err)
	}
	if jobs == nil {
		jobs = []model.ScrapeJob{}
	}
	return c.JSON(jobs)
}

func (h *handlers) selectJobURLs(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req SelectURLsRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if len(req.URLs) == 0 {
		return badRequest(c, "urls must not be empty")
	}

	job, err := h.deps.Store.SetSelectedURLs(c.Context(), id, req.URLs)
	if err != nil {
		return respondError(c, err)
	}
	metrics.RecordJobTransition(string(model.JobInProgress))
	return c.JSON(job)
}

func (h *handlers) cancelJob(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.deps.Store.UpdateJobStatus(c.Context(), id, model.JobFailed, "cancelled by user"); err != nil {
		return respondError(c, err)
	}
	metrics.RecordJobTransition(string(model.JobFailed))
	job, err := h.deps.Store.FindJob(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(job)
}
