package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/url-guardian/client/internal/models"
	"github.com/url-guardian/client/internal/orchestrator"
	"github.com/url-guardian/client/internal/risk"
	"github.com/url-guardian/client/pkg/logger"
)

type AnalysisHandler struct {
	url  *orchestrator.Orchestrator
	html *orchestrator.Orchestrator
}

func NewAnalysisHandler(url, html *orchestrator.Orchestrator) *AnalysisHandler {
	return &AnalysisHandler{
		url:  url,
		html: html,
	}
}

func (h *AnalysisHandler) orchestrator(mode string) *orchestrator.Orchestrator {
	switch orchestrator.Mode(mode) {
	case orchestrator.ModeURL:
		return h.url
	case orchestrator.ModeHTML:
		return h.html
	default:
		return nil
	}
}

func (h *AnalysisHandler) AnalyzeURL(c *fiber.Ctx) error {
	var req struct {
		URL string `json:"url"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}

	return h.submit(c, h.url, req.URL)
}

// AnalyzeHTML accepts the document as either "html" or "html_content".
func (h *AnalysisHandler) AnalyzeHTML(c *fiber.Ctx) error {
	var req struct {
		HTML        string `json:"html"`
		HTMLContent string `json:"html_content"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}

	html := req.HTML
	if html == "" {
		html = req.HTMLContent
	}
	return h.submit(c, h.html, html)
}

func (h *AnalysisHandler) submit(c *fiber.Ctx, orch *orchestrator.Orchestrator, input string) error {
	snap, err := orch.Run(c.Context(), input)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(analysisBody(snap.Response, snap.Subject, snap.EntryID))
}

func analysisBody(resp *models.EnsembleResponse, subject, entryID string) fiber.Map {
	verdict := risk.Annotate(resp.Ensemble)
	body := fiber.Map{
		"subject":  subject,
		"result":   resp,
		"verdict":  verdict,
		"headline": verdict.Headline(),
		"color":    verdict.Color(),
		"models":   risk.Report(*resp),
	}
	if entryID != "" {
		body["history_id"] = entryID
	}
	return body
}

func (h *AnalysisHandler) State(c *fiber.Ctx) error {
	orch := h.orchestrator(c.Params("mode"))
	if orch == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Unknown analysis mode",
		})
	}
	return c.JSON(orch.Snapshot())
}

func (h *AnalysisHandler) Reset(c *fiber.Ctx) error {
	orch := h.orchestrator(c.Params("mode"))
	if orch == nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Unknown analysis mode",
		})
	}
	if !orch.Reset() {
		return respondError(c, orchestrator.ErrBusy)
	}
	return c.JSON(orch.Snapshot())
}
