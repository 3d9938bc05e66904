package orchestrator

import (
	"context"
	"strings"

	"github.com/url-guardian/client/internal/htmldoc"
	"github.com/url-guardian/client/internal/models"
)

type Mode string

const (
	ModeURL  Mode = "url"
	ModeHTML Mode = "html"
)

// Analyzer is the outbound side of an analysis run.
type Analyzer interface {
	AnalyzeURL(ctx context.Context, url string, normalize bool) (*models.EnsembleResponse, error)
	AnalyzeHTML(ctx context.Context, html string) (*models.EnsembleResponse, error)
}

// Request is a validated input ready to be sent exactly once.
type Request struct {
	Subject string
	Send    func(ctx context.Context) (*models.EnsembleResponse, error)
}

// RequestBuilder is the only step that differs between analysis modes.
type RequestBuilder interface {
	Mode() Mode
	Build(input string) (Request, error)
}

type URLRequests struct {
	Client    Analyzer
	Normalize bool
}

func (b URLRequests) Mode() Mode { return ModeURL }

func (b URLRequests) Build(input string) (Request, error) {
	url, err := ValidateURL(input)
	if err != nil {
		return Request{}, err
	}
	return Request{
		Subject: url,
		Send: func(ctx context.Context) (*models.EnsembleResponse, error) {
			return b.Client.AnalyzeURL(ctx, url, b.Normalize)
		},
	}, nil
}

// ValidateURL trims input and requires an http or https scheme.
func ValidateURL(input string) (string, error) {
	url := strings.TrimSpace(input)
	if url == "" {
		return "", models.NewValidationError("Please enter a URL")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "", models.NewValidationError("URL must start with http:// or https://")
	}
	return url, nil
}

type HTMLRequests struct {
	Client Analyzer
}

func (b HTMLRequests) Mode() Mode { return ModeHTML }

func (b HTMLRequests) Build(input string) (Request, error) {
	if strings.TrimSpace(input) == "" {
		return Request{}, models.NewValidationError("No HTML content to analyze")
	}
	doc, err := htmldoc.Inspect(input)
	if err != nil {
		return Request{}, models.NewValidationError("Error reading file")
	}
	if doc.Empty() {
		return Request{}, models.NewValidationError("HTML document has no content")
	}
	return Request{
		Subject: htmldoc.Subject(doc, input),
		Send: func(ctx context.Context) (*models.EnsembleResponse, error) {
			return b.Client.AnalyzeHTML(ctx, input)
		},
	}, nil
}
