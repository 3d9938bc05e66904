package handlers

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/url-guardian/client/internal/metrics"
	"github.com/url-guardian/client/internal/preview"
	"github.com/url-guardian/client/pkg/logger"
)

type PreviewHandler struct {
	capturer preview.Capturer
	cfg      preview.Config
	flow     *preview.Flow
}

// NewPreviewHandler serves one-shot captures through flow and gives every
// websocket connection its own debounced flow built from capturer and cfg.
func NewPreviewHandler(flow *preview.Flow, capturer preview.Capturer, cfg preview.Config) *PreviewHandler {
	return &PreviewHandler{
		capturer: capturer,
		cfg:      cfg,
		flow:     flow,
	}
}

func (h *PreviewHandler) Capture(c *fiber.Ctx) error {
	var req struct {
		URL string `json:"url"`
	}

	if err := c.BodyParser(&req); err != nil {
		logger.Error("Failed to parse request body", zap.Error(err))
		return badRequest(c, "Invalid request body")
	}

	frame, err := h.flow.CaptureNow(c.Context(), req.URL)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(frame)
}

// Upgrade rejects plain HTTP requests to the websocket route.
func (h *PreviewHandler) Upgrade(c *fiber.Ctx) error {
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	c.Locals("connection_id", uuid.New().String())
	return c.Next()
}

type previewMessage struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// HandleConnection reads {type:"url"} messages as keystrokes in the URL field
// and {type:"capture"} as the manual capture button; frames are pushed back
// as they are produced.
func (h *PreviewHandler) HandleConnection(c *websocket.Conn) {
	connID, _ := c.Locals("connection_id").(string)
	logger.Info("Preview connection established", zap.String("connection_id", connID))
	metrics.WebsocketConnections.Inc()

	var writeMu sync.Mutex
	send := func(v interface{}) error {
		writeMu.Lock()
		defer writeMu.Unlock()
		return c.WriteJSON(v)
	}

	cfg := h.cfg
	cfg.OnFrame = func(frame preview.Frame) {
		if err := send(fiber.Map{"type": "frame", "frame": frame}); err != nil {
			logger.Debug("Failed to push preview frame", zap.String("connection_id", connID), zap.Error(err))
		}
	}
	flow := preview.NewFlow("preview-"+connID, h.capturer, cfg)

	defer func() {
		flow.Close()
		c.Close()
		metrics.WebsocketConnections.Dec()
		logger.Info("Preview connection closed", zap.String("connection_id", connID))
	}()

	for {
		var msg previewMessage
		if err := c.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("Failed to read preview message", zap.String("connection_id", connID), zap.Error(err))
			}
			return
		}

		switch msg.Type {
		case "url":
			flow.URLChanged(msg.URL)
		case "capture":
			flow.CaptureAsync(msg.URL)
		default:
			_ = send(fiber.Map{"type": "error", "error": "Unknown message type"})
		}
	}
}
