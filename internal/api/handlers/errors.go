package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/url-guardian/client/internal/models"
	"github.com/url-guardian/client/internal/orchestrator"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, orchestrator.ErrBusy), errors.Is(err, orchestrator.ErrSuperseded):
		return fiber.StatusConflict
	}
	switch models.KindOf(err) {
	case models.KindValidation:
		return fiber.StatusBadRequest
	case models.KindService, models.KindDecode:
		return fiber.StatusBadGateway
	case models.KindTransport:
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, err error) error {
	body := fiber.Map{"error": models.UserMessage(err)}
	if kind := models.KindOf(err); kind != "" {
		body["kind"] = kind
	}
	return c.Status(statusFor(err)).JSON(body)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": msg,
	})
}
