package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/url-guardian/client/internal/history"
	"github.com/url-guardian/client/internal/metrics"
	"github.com/url-guardian/client/internal/models"
	"github.com/url-guardian/client/internal/orchestrator"
	"github.com/url-guardian/client/internal/risk"
	"github.com/url-guardian/client/pkg/logger"
)

type HistoryHandler struct {
	log *history.Log
	url *orchestrator.Orchestrator
}

func NewHistoryHandler(log *history.Log, url *orchestrator.Orchestrator) *HistoryHandler {
	return &HistoryHandler{
		log: log,
		url: url,
	}
}

func historyItem(e models.HistoryEntry) fiber.Map {
	return fiber.Map{
		"id":        e.ID,
		"url":       e.Subject,
		"result":    e.Response,
		"timestamp": e.CapturedAt.UnixMilli(),
		"verdict":   risk.Annotate(e.Response.Ensemble),
	}
}

// List returns entries most recent first; ?limit=10 backs the recent-checks panel.
func (h *HistoryHandler) List(c *fiber.Ctx) error {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return badRequest(c, "limit must be a non-negative integer")
		}
		limit = n
	}

	entries := h.log.Recent(limit)
	items := make([]fiber.Map, 0, len(entries))
	for _, e := range entries {
		items = append(items, historyItem(e))
	}

	return c.JSON(fiber.Map{
		"entries":     items,
		"total":       h.log.Len(),
		"max_entries": h.log.MaxEntries(),
	})
}

func (h *HistoryHandler) Get(c *fiber.Ctx) error {
	entry, ok := h.log.Find(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "History entry not found",
		})
	}
	return c.JSON(historyItem(entry))
}

// Recheck runs a stored URL through the analysis flow again.
func (h *HistoryHandler) Recheck(c *fiber.Ctx) error {
	entry, ok := h.log.Find(c.Params("id"))
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "History entry not found",
		})
	}
	if strings.HasPrefix(entry.Subject, "file:") {
		return badRequest(c, "Uploaded documents cannot be re-checked")
	}

	snap, err := h.url.Run(c.Context(), entry.Subject)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(analysisBody(snap.Response, snap.Subject, snap.EntryID))
}

func (h *HistoryHandler) Clear(c *fiber.Ctx) error {
	if err := h.log.Clear(c.Context()); err != nil {
		logger.Error("Failed to clear history", zap.Error(err))
		return respondError(c, err)
	}
	metrics.HistoryEntries.Set(0)
	return c.JSON(fiber.Map{
		"message": "History cleared successfully",
	})
}

func (h *HistoryHandler) Export(c *fiber.Ctx) error {
	data, err := h.log.ExportJSON()
	if err != nil {
		logger.Error("Failed to export history", zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to export history",
		})
	}
	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	c.Attachment("phishing_history.json")
	return c.Send(data)
}
