package validation

import (
	"encoding/json"
	"strings"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// Config bounds request bodies before they reach a handler. Input rules such
// as URL schemes are enforced by the analysis flow itself so that rejected
// input still shows up as a failed run.
type Config struct {
	MaxURLLength        int
	MaxDocumentSize     int
	AllowedContentTypes []string
	Logger              *zap.Logger
}

func Middleware(cfg Config) fiber.Handler {
	if cfg.MaxURLLength == 0 {
		cfg.MaxURLLength = 2048
	}
	if cfg.MaxDocumentSize == 0 {
		cfg.MaxDocumentSize = 5 * 1024 * 1024
	}
	if len(cfg.AllowedContentTypes) == 0 {
		cfg.AllowedContentTypes = []string{"application/json"}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *fiber.Ctx) error {
		if c.Method() != fiber.MethodPost && c.Method() != fiber.MethodPut {
			return c.Next()
		}

		contentType := c.Get(fiber.HeaderContentType)
		if contentType != "" {
			allowed := false
			for _, allowedType := range cfg.AllowedContentTypes {
				if strings.Contains(contentType, allowedType) {
					allowed = true
					break
				}
			}
			if !allowed {
				return c.Status(fiber.StatusUnsupportedMediaType).JSON(fiber.Map{
					"error": "Unsupported content type",
				})
			}
		}

		body := c.Body()
		if len(body) > 0 && !json.Valid(body) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "Invalid JSON format",
			})
		}

		path := c.Path()

		if strings.HasSuffix(path, "/analyze/url") || strings.HasSuffix(path, "/preview/capture") {
			var req map[string]interface{}
			_ = json.Unmarshal(body, &req)
			if raw, ok := req["url"]; ok {
				urlStr, isString := raw.(string)
				if !isString {
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
						"error": "URL must be a string",
					})
				}
				if len(urlStr) > cfg.MaxURLLength {
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
						"error": "URL exceeds maximum length",
					})
				}
				if strings.ContainsRune(urlStr, '\x00') {
					cfg.Logger.Warn("Rejected URL with NUL byte", zap.String("ip", c.IP()))
					return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
						"error": "Invalid URL",
					})
				}
			}
		}

		if strings.HasSuffix(path, "/analyze/html") && len(body) > cfg.MaxDocumentSize {
			cfg.Logger.Warn("Rejected oversized HTML upload",
				zap.String("ip", c.IP()),
				zap.Int("size", len(body)),
			)
			return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
				"error": "Document content exceeds maximum size",
			})
		}

		return c.Next()
	}
}
