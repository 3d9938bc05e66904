package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/url-guardian/client/internal/batch"
	"github.com/url-guardian/client/pkg/logger"
)

type BatchHandler struct {
	analyzer  *batch.Analyzer
	normalize bool
}

func NewBatchHandler(analyzer *batch.Analyzer, normalize bool) *BatchHandler {
	return &BatchHandler{
		analyzer:  analyzer,
		normalize: normalize,
	}
}

func (h *BatchHandler) Analyze(c *fiber.Ctx) error {
	var req struct {
		URLs      []string `json:"urls"`
		Normalize *bool    `json:"normalize"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}

	normalize := h.normalize
	if req.Normalize != nil {
		normalize = *req.Normalize
	}

	summary, err := h.analyzer.Analyze(c.Context(), req.URLs, normalize)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(summary)
}

func (h *BatchHandler) CacheStats(c *fiber.Ctx) error {
	stats, err := h.analyzer.Stats(c.Context())
	if err != nil {
		logger.Error("Failed to read cache stats", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to read cache stats",
		})
	}
	return c.JSON(stats)
}

func (h *BatchHandler) ClearCache(c *fiber.Ctx) error {
	if err := h.analyzer.Clear(c.Context()); err != nil {
		logger.Error("Failed to clear cache", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to clear cache",
		})
	}
	return c.JSON(fiber.Map{
		"message": "Cache cleared successfully",
	})
}
