// Package batch analyzes lists of URLs, reusing cached verdicts within their TTL.
package batch

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/url-guardian/client/internal/cache"
	"github.com/url-guardian/client/internal/metrics"
	"github.com/url-guardian/client/internal/models"
	"github.com/url-guardian/client/internal/orchestrator"
	"github.com/url-guardian/client/internal/risk"
	"github.com/url-guardian/client/pkg/logger"
	"github.com/url-guardian/client/pkg/retry"
)

const DefaultMaxURLs = 100

type Item struct {
	URL       string                   `json:"url"`
	Result    *models.EnsembleResponse `json:"result,omitempty"`
	Verdict   *risk.Verdict            `json:"verdict,omitempty"`
	Error     string                   `json:"error,omitempty"`
	ErrorKind models.ErrorKind         `json:"error_kind,omitempty"`
	Cached    bool                     `json:"cached"`
}

type Summary struct {
	Total      int    `json:"total"`
	Successful int    `json:"successful"`
	Results    []Item `json:"results"`
}

type Config struct {
	MaxURLs     int
	Concurrency int
	Retry       retry.Config
}

type Analyzer struct {
	client  orchestrator.Analyzer
	history orchestrator.Recorder
	cache   cache.ResultCache
	cfg     Config
}

func New(client orchestrator.Analyzer, history orchestrator.Recorder, results cache.ResultCache, cfg Config) *Analyzer {
	if cfg.MaxURLs <= 0 {
		cfg.MaxURLs = DefaultMaxURLs
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	// Only outright transport failures are worth another attempt.
	cfg.Retry.RetryIf = func(err error) bool {
		return models.KindOf(err) == models.KindTransport
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = logger.GetLogger()
	}
	return &Analyzer{client: client, history: history, cache: results, cfg: cfg}
}

// Analyze checks every URL, in input order. Per-URL failures are reported in
// their Item; only an invalid batch returns an error.
func (a *Analyzer) Analyze(ctx context.Context, urls []string, normalize bool) (*Summary, error) {
	if len(urls) == 0 {
		return nil, models.NewValidationError("No URLs provided")
	}
	if len(urls) > a.cfg.MaxURLs {
		return nil, models.NewValidationError(fmt.Sprintf("Maximum %d URLs per batch", a.cfg.MaxURLs))
	}

	items := make([]Item, len(urls))
	g := new(errgroup.Group)
	g.SetLimit(a.cfg.Concurrency)

	for i, url := range urls {
		i, url := i, url
		g.Go(func() error {
			items[i] = a.analyzeOne(ctx, url, normalize)
			return nil
		})
	}
	_ = g.Wait()

	summary := &Summary{Total: len(urls), Results: items}
	for _, it := range items {
		if it.Result != nil {
			summary.Successful++
		}
	}

	logger.Info("Batch analysis completed",
		zap.Int("total", summary.Total),
		zap.Int("successful", summary.Successful),
	)
	return summary, nil
}

func (a *Analyzer) analyzeOne(ctx context.Context, url string, normalize bool) Item {
	item := Item{URL: url}

	if cached, ok, err := a.cache.GetResult(ctx, url); err != nil {
		logger.Warn("Result cache lookup failed", zap.String("url", url), zap.Error(err))
	} else if ok {
		metrics.CacheHits.WithLabelValues("batch").Inc()
		verdict := risk.Annotate(cached.Ensemble)
		item.Result, item.Verdict, item.Cached = cached, &verdict, true
		return item
	}
	metrics.CacheMisses.WithLabelValues("batch").Inc()

	orch := orchestrator.New(orchestrator.Config{
		Builder: orchestrator.URLRequests{Client: a.client, Normalize: normalize},
		History: a.history,
	})

	resp, err := retry.DoWithResult(ctx, a.cfg.Retry, func() (*models.EnsembleResponse, error) {
		return orch.Submit(ctx, url)
	})
	if err != nil {
		item.Error = models.UserMessage(err)
		item.ErrorKind = models.KindOf(err)
		return item
	}

	if err := a.cache.SetResult(ctx, url, *resp); err != nil {
		logger.Warn("Failed to cache result", zap.String("url", url), zap.Error(err))
	}
	verdict := risk.Annotate(resp.Ensemble)
	item.Result, item.Verdict = resp, &verdict
	return item
}

func (a *Analyzer) Stats(ctx context.Context) (cache.Stats, error) {
	return a.cache.ResultStats(ctx)
}

func (a *Analyzer) Clear(ctx context.Context) error {
	if err := a.cache.ClearResults(ctx); err != nil {
		return fmt.Errorf("failed to clear result cache: %w", err)
	}
	logger.Info("Batch result cache cleared")
	return nil
}
