// Package service talks to the external classification service: full URL
// analysis, HTML analysis, screenshot capture and health.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/url-guardian/client/internal/models"
	"github.com/url-guardian/client/pkg/circuitbreaker"
	"github.com/url-guardian/client/pkg/logger"
)

const (
	PathAnalyzeURL  = "/analyze_url_full"
	PathAnalyzeHTML = "/analyze_html_file"
	PathScreenshot  = "/capture_screenshot"
	PathHealth      = "/health"

	maxBodyBytes = 32 << 20
)

type Config struct {
	BaseURL    string
	PathPrefix string
	// HTMLField is "html" when talking to the service directly and
	// "html_content" behind the gateway.
	HTMLField       string
	Timeout         time.Duration
	BreakerFailures uint32
	BreakerTimeout  time.Duration
	OnBreakerChange func(name string, from, to circuitbreaker.State)
	HTTPClient      *http.Client
}

type Client struct {
	httpClient *http.Client
	baseURL    string
	prefix     string
	htmlField  string
	cb         *circuitbreaker.CircuitBreaker
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.HTMLField == "" {
		cfg.HTMLField = "html"
	}
	if cfg.PathPrefix == "" {
		cfg.PathPrefix = "/api"
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}

	cb := circuitbreaker.NewCircuitBreaker("classification-service", circuitbreaker.Config{
		MaxRequests:      1,
		Timeout:          cfg.BreakerTimeout,
		FailureThreshold: cfg.BreakerFailures,
		SuccessThreshold: 1,
		IsFailure:        countsAgainstBreaker,
		OnStateChange:    cfg.OnBreakerChange,
		Logger:           logger.GetLogger(),
	})

	logger.Info("Classification service client initialized",
		zap.String("base_url", cfg.BaseURL),
		zap.String("prefix", cfg.PathPrefix),
		zap.Duration("timeout", cfg.Timeout),
	)

	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		prefix:     "/" + strings.Trim(cfg.PathPrefix, "/"),
		htmlField:  cfg.HTMLField,
		cb:         cb,
	}
}

// Only outright transport failures and 5xx answers mean the service is unhealthy.
func countsAgainstBreaker(err error) bool {
	if err == nil {
		return false
	}
	var e *models.Error
	if !errors.As(err, &e) {
		return true
	}
	switch e.Kind {
	case models.KindTransport:
		return true
	case models.KindService:
		return e.Status >= 500
	default:
		return false
	}
}

func (c *Client) BreakerState() circuitbreaker.State {
	return c.cb.State()
}

func (c *Client) AnalyzeURL(ctx context.Context, url string, normalize bool) (*models.EnsembleResponse, error) {
	body := map[string]any{"url": url, "normalize": normalize}
	return c.analyze(ctx, PathAnalyzeURL, body)
}

func (c *Client) AnalyzeHTML(ctx context.Context, html string) (*models.EnsembleResponse, error) {
	body := map[string]any{c.htmlField: html}
	return c.analyze(ctx, PathAnalyzeHTML, body)
}

func (c *Client) analyze(ctx context.Context, path string, body any) (*models.EnsembleResponse, error) {
	var resp models.EnsembleResponse
	if err := c.post(ctx, c.prefix+path, body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CaptureScreenshot returns the screenshot field as sent by the service.
func (c *Client) CaptureScreenshot(ctx context.Context, url string) (string, error) {
	var resp models.ScreenshotResponse
	if err := c.post(ctx, c.prefix+PathScreenshot, map[string]any{"url": url}, &resp); err != nil {
		return "", err
	}
	return resp.Screenshot, nil
}

func (c *Client) Health(ctx context.Context) (*models.HealthStatus, error) {
	var status models.HealthStatus
	if err := c.do(ctx, http.MethodGet, PathHealth, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return models.NewTransportError(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	err = c.cb.Execute(ctx, func() error {
		return c.roundTrip(req, out)
	})
	if errors.Is(err, circuitbreaker.ErrCircuitOpen) || errors.Is(err, circuitbreaker.ErrTooManyRequests) {
		err = models.NewTransportError(fmt.Errorf("analysis service unavailable: %w", err))
	} else if err != nil && models.KindOf(err) == "" {
		err = models.NewTransportError(err)
	}

	if err != nil {
		logger.Warn("Service request failed",
			zap.String("path", path),
			zap.String("kind", string(models.KindOf(err))),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return err
	}

	logger.Debug("Service request completed", zap.String("path", path), zap.Duration("elapsed", time.Since(start)))
	return nil
}

func (c *Client) roundTrip(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return models.NewTransportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return models.NewTransportError(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return models.NewServiceError(resp.StatusCode, errorMessage(data, resp.Status))
	}

	if err := json.Unmarshal(data, out); err != nil {
		return models.NewDecodeError(err)
	}
	return nil
}

// errorMessage pulls the user-facing text out of an error body: a detail,
// message or error field, else the raw text, else the status line.
func errorMessage(body []byte, status string) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		return "Request failed: " + status
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err == nil {
		for _, key := range []string{"detail", "message", "error"} {
			raw, ok := fields[key]
			if !ok {
				continue
			}
			var s string
			if err := json.Unmarshal(raw, &s); err == nil {
				if s = strings.TrimSpace(s); s != "" {
					return s
				}
				continue
			}
			return string(raw)
		}
		return "Request failed: " + status
	}

	if len(trimmed) > 500 {
		trimmed = trimmed[:500]
	}
	return trimmed
}
