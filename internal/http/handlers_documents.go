package http

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

func (h *handlers) listDocuments(c *fiber.Ctx) error {
	kbID, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	docs, err := h.deps.Store.ListDocuments(c.Context(), kbID)
	if err != nil {
		return respondError(c, err)
	}

	out := make([]DocumentSummary, 0, len(docs))
	for _, d := range docs {
		out = append(out, DocumentSummary{
			ID:           d.ID.String(),
			Title:        d.Title,
			SourceURL:    d.SourceURL,
			Status:       string(d.Status),
			ChunkCount:   d.ChunkCount,
			ErrorMessage: d.ErrorMessage,
			CreatedAt:    d.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return c.JSON(out)
}

func (h *handlers) getDocument(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	doc, err := h.deps.Store.FindDocument(c.Context(), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(doc)
}

func (h *handlers) deleteDocument(c *fiber.Ctx) error {
	id, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	if err := h.deps.Store.DeleteDocument(c.Context(), id); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
