package metrics

import (
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	AnalysisDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "url_guardian_analysis_duration_seconds",
			Help:    "Analysis request duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"mode"},
	)

	AnalysisTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "url_guardian_analysis_total",
			Help: "Total number of analysis runs by outcome",
		},
		[]string{"mode", "status"},
	)

	AnalysisRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "url_guardian_analysis_rejected_total",
			Help: "Submits rejected or superseded while a run was in flight",
		},
		[]string{"mode", "policy"},
	)

	RiskTiers = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "url_guardian_risk_tier_total",
			Help: "Ensemble verdicts by label and risk tier",
		},
		[]string{"label", "tier"},
	)

	EnsembleProbability = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "url_guardian_ensemble_probability",
			Help:    "Ensemble phishing probability",
			Buckets: []float64{0.1, 0.2, 0.33, 0.4, 0.5, 0.6, 0.67, 0.8, 0.9, 1.0},
		},
	)

	HistoryEntries = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "url_guardian_history_entries",
			Help: "Entries currently retained in the analysis history",
		},
	)

	HistoryWriteFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "url_guardian_history_write_failures_total",
			Help: "History appends that failed to persist",
		},
	)

	PreviewCaptures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "url_guardian_preview_captures_total",
			Help: "Preview screenshot captures by outcome",
		},
		[]string{"status"},
	)

	CacheHits = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "url_guardian_cache_hits_total",
			Help: "Total cache hits",
		},
		[]string{"cache_type"},
	)

	CacheMisses = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "url_guardian_cache_misses_total",
			Help: "Total cache misses",
		},
		[]string{"cache_type"},
	)

	BreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "url_guardian_circuit_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	WebsocketConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "url_guardian_websocket_connections",
			Help: "Open preview websocket connections",
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(AnalysisDuration)
		prometheus.MustRegister(AnalysisTotal)
		prometheus.MustRegister(AnalysisRejected)
		prometheus.MustRegister(RiskTiers)
		prometheus.MustRegister(EnsembleProbability)
		prometheus.MustRegister(HistoryEntries)
		prometheus.MustRegister(HistoryWriteFailures)
		prometheus.MustRegister(PreviewCaptures)
		prometheus.MustRegister(CacheHits)
		prometheus.MustRegister(CacheMisses)
		prometheus.MustRegister(BreakerState)
		prometheus.MustRegister(WebsocketConnections)
	})
}

func MetricsHandler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
