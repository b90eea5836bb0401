package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"quarry/internal/model"
)

func (h *handlers) createKnowledgeBase(c *fiber.Ctx) error {
	var req CreateKnowledgeBaseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if req.Name == "" {
		return badRequest(c, "name is required")
	}

	workspaceID := uuid.Nil
	if req.WorkspaceID != "" {
		id, err := uuid.Parse(req.WorkspaceID)
		if err != nil {
			return badRequest(c, "invalid workspaceId")
		}
		workspaceID = id
	}

	cfg := h.deps.Config
	embeddingModel := req.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = cfg.Embedding.DefaultModel
	}
	chunkSize := req.ChunkSize
	if chunkSize == 0 {
		chunkSize = cfg.Chunker.DefaultChunkSize
	}
	chunkOverlap := req.ChunkOverlap
	if chunkOverlap == 0 {
		chunkOverlap = cfg.Chunker.DefaultChunkOverlap
	}

	kb, err := h.deps.Store.CreateKnowledgeBase(c.Context(), workspaceID,
		req.Name, req.Description, embeddingModel, chunkSize, chunkOverlap)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(kb)
}

func (h *handlers) listKnowledgeBases(c *fiber.Ctx) error {
	workspaceID := uuid.Nil
	if q := c.Query("workspaceId"); q != "" {
		id, err := uuid.Parse(q)
		if err != nil {
			return badRequest(c, "invalid workspaceId")
		}
		workspaceID = id
	}

	kbs, err := h.deps.Store.ListKnowledgeBases(c.Context(), workspaceID)
	if err != nil {
		return respondError(c, err)
	}
	if kbs == nil {
		kbs = []model.KnowledgeBase{}
	}
	return c.JSON(kbs)
}

func (h *handlers) getKnowledgeBase(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	kb, err := h.deps.Store.FindKnowledgeBase(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(kb)
}

func (h *handlers) updateKnowledgeBase(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req UpdateKnowledgeBaseRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}

	current, err := h.deps.Store.FindKnowledgeBase(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}

	name := current.Name
	if req.Name != nil {
		name = *req.Name
	}
	description := current.Description
	if req.Description != nil {
		description = *req.Description
	}
	embeddingModel := current.EmbeddingModel
	if req.EmbeddingModel != nil {
		embeddingModel = *req.EmbeddingModel
	}
	chunkSize := current.ChunkSize
	if req.ChunkSize != nil {
		chunkSize = *req.ChunkSize
	}
	chunkOverlap := current.ChunkOverlap
	if req.ChunkOverlap != nil {
		chunkOverlap = *req.ChunkOverlap
	}
	if name == "" {
		return badRequest(c, "name must not be empty")
	}

	kb, err := h.deps.Store.UpdateKnowledgeBase(c.Context(), id,
		name, description, embeddingModel, chunkSize, chunkOverlap)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(kb)
}

func (h *handlers) deleteKnowledgeBase(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.deps.Store.SoftDeleteKnowledgeBase(c.Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
