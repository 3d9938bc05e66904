package validation

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
)

func TestMiddleware(t *testing.T) {
	app := fiber.New()
	app.Use(Middleware(Config{MaxURLLength: 40, MaxDocumentSize: 64}))
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }
	app.Post("/api/v1/analyze/url", ok)
	app.Post("/api/v1/analyze/html", ok)
	app.Get("/api/v1/history", ok)

	tests := []struct {
		name        string
		method      string
		path        string
		contentType string
		body        string
		want        int
	}{
		{"valid url body", "POST", "/api/v1/analyze/url", "application/json", `{"url":"https://example.com"}`, 200},
		{"scheme is not checked here", "POST", "/api/v1/analyze/url", "application/json", `{"url":"example.com"}`, 200},
		{"non-string url", "POST", "/api/v1/analyze/url", "application/json", `{"url":42}`, 400},
		{"long url", "POST", "/api/v1/analyze/url", "application/json", `{"url":"https://example.com/` + strings.Repeat("a", 40) + `"}`, 400},
		{"malformed json", "POST", "/api/v1/analyze/url", "application/json", `{"url":`, 400},
		{"wrong content type", "POST", "/api/v1/analyze/url", "text/plain", `hello`, 415},
		{"oversized html", "POST", "/api/v1/analyze/html", "application/json", `{"html":"` + strings.Repeat("x", 80) + `"}`, 413},
		{"small html", "POST", "/api/v1/analyze/html", "application/json", `{"html":"<p>x</p>"}`, 200},
		{"get passes", "GET", "/api/v1/history", "", "", 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body))
			if tt.contentType != "" {
				req.Header.Set("Content-Type", tt.contentType)
			}
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("app.Test: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
