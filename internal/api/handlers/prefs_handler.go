package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/url-guardian/client/internal/prefs"
	"github.com/url-guardian/client/pkg/logger"
)

type PreferencesHandler struct {
	store *prefs.Store
}

func NewPreferencesHandler(store *prefs.Store) *PreferencesHandler {
	return &PreferencesHandler{
		store: store,
	}
}

func (h *PreferencesHandler) Get(c *fiber.Ctx) error {
	return c.JSON(h.store.Load(c.Context()))
}

func (h *PreferencesHandler) Put(c *fiber.Ctx) error {
	var req struct {
		DarkMode *bool `json:"darkMode"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}
	if req.DarkMode == nil {
		return badRequest(c, "darkMode is required")
	}

	if err := h.store.SetDarkMode(c.Context(), *req.DarkMode); err != nil {
		logger.Error("Failed to save preferences", zap.Error(err))
		return respondError(c, err)
	}
	return c.JSON(prefs.Preferences{DarkMode: *req.DarkMode})
}
