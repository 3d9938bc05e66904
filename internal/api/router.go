package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/url-guardian/client/internal/api/handlers"
)

type Handlers struct {
	Analysis    *handlers.AnalysisHandler
	History     *handlers.HistoryHandler
	Batch       *handlers.BatchHandler
	Preferences *handlers.PreferencesHandler
	Preview     *handlers.PreviewHandler
	Health      *handlers.HealthHandler
}

func RegisterRoutes(app *fiber.App, h Handlers) {
	api := app.Group("/api/v1")

	api.Post("/analyze/url", h.Analysis.AnalyzeURL)
	api.Post("/analyze/html", h.Analysis.AnalyzeHTML)
	api.Get("/analyze/:mode/state", h.Analysis.State)
	api.Delete("/analyze/:mode", h.Analysis.Reset)

	api.Get("/history", h.History.List)
	api.Delete("/history", h.History.Clear)
	api.Get("/history/export", h.History.Export)
	api.Get("/history/:id", h.History.Get)
	api.Post("/history/:id/recheck", h.History.Recheck)

	api.Post("/batch", h.Batch.Analyze)
	api.Get("/batch/cache", h.Batch.CacheStats)
	api.Delete("/batch/cache", h.Batch.ClearCache)

	api.Get("/preferences", h.Preferences.Get)
	api.Put("/preferences", h.Preferences.Put)

	api.Post("/preview/capture", h.Preview.Capture)
	app.Use("/ws/preview", h.Preview.Upgrade)
	app.Get("/ws/preview", websocket.New(h.Preview.HandleConnection))

	api.Get("/health", h.Health.Health)
}
