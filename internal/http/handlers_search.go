package http

import (
	"github.com/gofiber/fiber/v2"

	"quarry/internal/model"
)

func (h *handlers) searchKnowledgeBase(c *fiber.Ctx) error {
	kbID, err := parseID(c, "id")
	if err != nil {
		return badRequest(c, err.Error())
	}
	var req SearchRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid JSON body")
	}
	if req.Query == "" {
		return badRequest(c, "query is required")
	}
	if req.Limit < 0 || req.Limit > 100 {
		return badRequest(c, "limit must be between 0 and 100")
	}

	results, err := h.deps.Search.Search(c.Context(), kbID, req.Query, req.Limit)
	if err != nil {
		return respondError(c, err)
	}
	if results == nil {
		results = []model.SearchResult{}
	}
	return c.JSON(SearchResponse{Success: true, Results: results})
}
