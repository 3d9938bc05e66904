package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/url-guardian/client/internal/history"
	"github.com/url-guardian/client/internal/models"
	"github.com/url-guardian/client/pkg/circuitbreaker"
	"github.com/url-guardian/client/pkg/logger"
)

type HealthChecker interface {
	Health(ctx context.Context) (*models.HealthStatus, error)
	BreakerState() circuitbreaker.State
}

type HealthHandler struct {
	service HealthChecker
	log     *history.Log
	timeout time.Duration
}

func NewHealthHandler(service HealthChecker, log *history.Log) *HealthHandler {
	return &HealthHandler{
		service: service,
		log:     log,
		timeout: 5 * time.Second,
	}
}

// Health reports the gateway as healthy even when the classification service
// is down; the service section says why analyses would fail.
func (h *HealthHandler) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.Context(), h.timeout)
	defer cancel()

	body := fiber.Map{
		"status":          "healthy",
		"time":            time.Now().Unix(),
		"breaker":         h.service.BreakerState().String(),
		"history_entries": h.log.Len(),
	}

	status, err := h.service.Health(ctx)
	if err != nil {
		logger.Warn("Classification service health check failed",
			zap.String("kind", string(models.KindOf(err))),
			zap.Error(err),
		)
		body["status"] = "degraded"
		body["service"] = fiber.Map{"error": models.UserMessage(err)}
		return c.JSON(body)
	}

	body["service"] = status
	return c.JSON(body)
}
