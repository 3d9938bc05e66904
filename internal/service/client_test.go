package service

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/url-guardian/client/internal/models"
	"github.com/url-guardian/client/pkg/circuitbreaker"
)

const ensembleBody = `{
	"url": "https://example.com",
	"url_model": {"probability": 0.91, "label": "PHISHING", "confidence": 0.82, "explanations": ["suspicious TLD"], "model_name": "RNN"},
	"html_model": {"probability": 0.10, "label": "LEGITIMATE", "confidence": 0.80, "explanations": [], "model_name": "HTML"},
	"dom_model": {"probability": 0.5, "label": "UNKNOWN", "confidence": 0, "explanations": null, "model_name": "GNN"},
	"ensemble": {"probability": 0.82, "label": "PHISHING", "confidence": 0.64, "explanations": [], "model_name": "Ensemble"}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, mutate ...func(*Config)) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{BaseURL: srv.URL, PathPrefix: "/api", Timeout: 2 * time.Second}
	for _, m := range mutate {
		m(&cfg)
	}
	return NewClient(cfg)
}

func TestClient_AnalyzeURL(t *testing.T) {
	var got map[string]any
	var path string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(ensembleBody))
	})

	resp, err := c.AnalyzeURL(context.Background(), "https://example.com", true)
	if err != nil {
		t.Fatalf("AnalyzeURL() error = %v", err)
	}
	if path != "/api/analyze_url_full" {
		t.Errorf("path = %q", path)
	}
	if got["url"] != "https://example.com" || got["normalize"] != true {
		t.Errorf("request body = %v", got)
	}
	if resp.Ensemble.Probability != 0.82 || resp.Ensemble.Label != models.LabelPhishing {
		t.Errorf("ensemble = %+v", resp.Ensemble)
	}
	if len(resp.PerModel) != 3 {
		t.Errorf("PerModel has %d slots, want 3", len(resp.PerModel))
	}
	dom, _ := resp.Model(models.SlotDOM)
	if dom.Explanations == nil {
		t.Error("nil explanations should decode as empty")
	}
}

func TestClient_AnalyzeHTMLUsesConfiguredField(t *testing.T) {
	tests := []struct {
		name   string
		prefix string
		field  string
		path   string
	}{
		{"direct", "/api", "html", "/api/analyze_html_file"},
		{"gateway", "/proxy", "html_content", "/proxy/analyze_html_file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got map[string]any
			var path string
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				path = r.URL.Path
				_ = json.NewDecoder(r.Body).Decode(&got)
				_, _ = w.Write([]byte(`{"url":"upload","ensemble":{"probability":0.2,"label":"LEGITIMATE","confidence":0.6,"explanations":[],"model_name":"Ensemble"}}`))
			}, func(cfg *Config) {
				cfg.PathPrefix = tt.prefix
				cfg.HTMLField = tt.field
			})

			resp, err := c.AnalyzeHTML(context.Background(), "<html><body>hi</body></html>")
			if err != nil {
				t.Fatalf("AnalyzeHTML() error = %v", err)
			}
			if path != tt.path {
				t.Errorf("path = %q, want %q", path, tt.path)
			}
			if got[tt.field] != "<html><body>hi</body></html>" {
				t.Errorf("body = %v, want field %q", got, tt.field)
			}
			if _, ok := resp.Model(models.SlotURL); ok {
				t.Error("HTML response should have no url slot")
			}
		})
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		kind    models.ErrorKind
		message string
	}{
		{"detail", 500, `{"detail":"model unavailable"}`, models.KindService, "model unavailable"},
		{"message", 400, `{"message":"bad url"}`, models.KindService, "bad url"},
		{"error", 422, `{"error":"unprocessable"}`, models.KindService, "unprocessable"},
		{"detail wins", 500, `{"error":"x","detail":"first"}`, models.KindService, "first"},
		{"plain text", 502, "upstream down", models.KindService, "upstream down"},
		{"empty body", 503, "", models.KindService, "Request failed: 503 Service Unavailable"},
		{"json without known fields", 500, `{"foo":1}`, models.KindService, "Request failed: 500 Internal Server Error"},
		{"malformed success", 200, `{"url":`, models.KindDecode, "Malformed response from analysis service"},
		{"missing ensemble", 200, `{"url":"https://example.com"}`, models.KindDecode, "Malformed response from analysis service"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.AnalyzeURL(context.Background(), "https://example.com", true)
			if err == nil {
				t.Fatal("expected error")
			}
			if kind := models.KindOf(err); kind != tt.kind {
				t.Errorf("kind = %q, want %q", kind, tt.kind)
			}
			if msg := models.UserMessage(err); msg != tt.message {
				t.Errorf("message = %q, want %q", msg, tt.message)
			}
		})
	}
}

func TestClient_MissingEnsembleUnwraps(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"url":"https://example.com"}`))
	})
	_, err := c.AnalyzeURL(context.Background(), "https://example.com", true)
	if !errors.Is(err, models.ErrMissingEnsemble) {
		t.Errorf("err = %v, want ErrMissingEnsemble in chain", err)
	}
}

func TestClient_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(Config{BaseURL: url, Timeout: time.Second})
	_, err := c.AnalyzeURL(context.Background(), "https://example.com", true)
	if models.KindOf(err) != models.KindTransport {
		t.Fatalf("kind = %q, want TransportError (err = %v)", models.KindOf(err), err)
	}
}

func TestClient_BreakerOpensOnServerErrorsOnly(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusBadRequest)
	var calls atomic.Int32

	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(int(status.Load()))
		_, _ = w.Write([]byte(`{"detail":"nope"}`))
	}, func(cfg *Config) {
		cfg.BreakerFailures = 2
		cfg.BreakerTimeout = time.Minute
	})

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, _ = c.AnalyzeURL(ctx, "https://example.com", true)
	}
	if c.BreakerState() != circuitbreaker.StateClosed {
		t.Fatalf("4xx answers should not open the breaker, state = %s", c.BreakerState())
	}

	status.Store(http.StatusInternalServerError)
	for i := 0; i < 2; i++ {
		_, _ = c.AnalyzeURL(ctx, "https://example.com", true)
	}
	if c.BreakerState() != circuitbreaker.StateOpen {
		t.Fatalf("state = %s, want open", c.BreakerState())
	}

	before := calls.Load()
	_, err := c.AnalyzeURL(ctx, "https://example.com", true)
	if models.KindOf(err) != models.KindTransport {
		t.Errorf("open breaker kind = %q, want TransportError", models.KindOf(err))
	}
	if calls.Load() != before {
		t.Error("open breaker should not reach the service")
	}
}

func TestClient_CaptureScreenshot(t *testing.T) {
	var got map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/capture_screenshot" {
			t.Errorf("path = %q", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"screenshot":"iVBORw0KGgo="}`))
	})

	shot, err := c.CaptureScreenshot(context.Background(), "https://example.com")
	if err != nil {
		t.Fatalf("CaptureScreenshot() error = %v", err)
	}
	if shot != "iVBORw0KGgo=" {
		t.Errorf("screenshot = %q", shot)
	}
	if got["url"] != "https://example.com" {
		t.Errorf("body = %v", got)
	}
}

func TestClient_Health(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/health" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		_, _ = w.Write([]byte(`{"status":"healthy","device":"cpu","models":{"url":true,"html":true,"dom":false}}`))
	})

	status, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error = %v", err)
	}
	if status.Status != "healthy" || status.Models["dom"] {
		t.Errorf("status = %+v", status)
	}
}

func TestClient_CancelledContext(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.AnalyzeURL(ctx, "https://example.com", true)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled in chain", err)
	}
}
