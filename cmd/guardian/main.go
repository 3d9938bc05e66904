package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"

	"github.com/url-guardian/client/internal/api"
	"github.com/url-guardian/client/internal/api/handlers"
	"github.com/url-guardian/client/internal/batch"
	"github.com/url-guardian/client/internal/cache"
	"github.com/url-guardian/client/internal/cache/redis"
	"github.com/url-guardian/client/internal/history"
	"github.com/url-guardian/client/internal/metrics"
	"github.com/url-guardian/client/internal/middleware/ratelimit"
	"github.com/url-guardian/client/internal/middleware/security"
	"github.com/url-guardian/client/internal/middleware/validation"
	"github.com/url-guardian/client/internal/orchestrator"
	"github.com/url-guardian/client/internal/prefs"
	"github.com/url-guardian/client/internal/preview"
	"github.com/url-guardian/client/internal/service"
	"github.com/url-guardian/client/internal/storage"
	"github.com/url-guardian/client/internal/storage/sqlite"
	"github.com/url-guardian/client/pkg/circuitbreaker"
	"github.com/url-guardian/client/pkg/config"
	appLogger "github.com/url-guardian/client/pkg/logger"
	"github.com/url-guardian/client/pkg/retry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting URL Guardian gateway")
	metrics.Init()

	var redisClient *redis.Client
	if cfg.History.Backend == "redis" || cfg.Batch.Cache == "redis" {
		redisClient, err = redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB, cfg.Batch.CacheTTL())
		if err != nil {
			appLogger.Fatal("Failed to create Redis client", zap.Error(err))
		}
		defer redisClient.Close()
	}

	var store storage.Store
	switch cfg.History.Backend {
	case "sqlite":
		sqliteClient, err := sqlite.NewClient(cfg.History.SQLitePath)
		if err != nil {
			appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
		}
		if err := sqliteClient.InitSchema(); err != nil {
			appLogger.Fatal("Failed to initialize schema", zap.Error(err))
		}
		store = sqliteClient
	case "redis":
		store = redisClient
	default:
		appLogger.Warn("Using in-memory storage; history will not survive a restart")
		store = storage.NewMemory()
	}
	if cfg.History.Backend != "redis" {
		defer store.Close()
	}

	ctx := context.Background()
	historyLog := history.Load(ctx, store, history.Config{
		Namespace:  cfg.History.Namespace,
		MaxEntries: cfg.History.MaxEntries,
	})
	metrics.HistoryEntries.Set(float64(historyLog.Len()))
	preferences := prefs.New(store)

	client := service.NewClient(service.Config{
		BaseURL:         cfg.Service.BaseURL,
		PathPrefix:      cfg.Service.PathPrefix,
		HTMLField:       cfg.Service.HTMLField,
		Timeout:         cfg.Service.Timeout(),
		BreakerFailures: uint32(cfg.Service.BreakerFailures),
		BreakerTimeout:  time.Duration(cfg.Service.BreakerTimeoutSec) * time.Second,
		OnBreakerChange: func(name string, _, to circuitbreaker.State) {
			metrics.BreakerState.WithLabelValues(name).Set(float64(to))
		},
	})

	busyPolicy, err := orchestrator.ParsePolicy(cfg.Orchestrator.BusyPolicy)
	if err != nil {
		appLogger.Fatal("Invalid orchestrator policy", zap.Error(err))
	}
	urlOrch := orchestrator.New(orchestrator.Config{
		Builder: orchestrator.URLRequests{Client: client, Normalize: cfg.Service.Normalize},
		History: historyLog,
		Policy:  busyPolicy,
	})
	htmlOrch := orchestrator.New(orchestrator.Config{
		Builder: orchestrator.HTMLRequests{Client: client},
		History: historyLog,
		Policy:  busyPolicy,
	})

	var results cache.ResultCache
	cleanupDone := make(chan struct{})
	if cfg.Batch.Cache == "redis" {
		results = redisClient
	} else {
		memCache := cache.New(cfg.Batch.CacheTTL())
		results = memCache
		go func() {
			ticker := time.NewTicker(10 * time.Minute)
			defer ticker.Stop()
			for {
				select {
				case <-ticker.C:
					memCache.Cleanup()
				case <-cleanupDone:
					return
				}
			}
		}()
	}

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Batch.RetryAttempts
	analyzer := batch.New(client, historyLog, results, batch.Config{
		MaxURLs:     cfg.Batch.MaxURLs,
		Concurrency: cfg.Batch.Concurrency,
		Retry:       retryCfg,
	})

	stalePolicy, err := preview.ParseStalePolicy(cfg.Preview.StalePolicy)
	if err != nil {
		appLogger.Fatal("Invalid preview policy", zap.Error(err))
	}
	previewCfg := preview.Config{
		Delay:       cfg.Preview.Delay(),
		StalePolicy: stalePolicy,
		Timeout:     cfg.Service.Timeout(),
	}
	previewFlow := preview.NewFlow("preview", client, previewCfg)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	rateLimiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.RateLimit.MaxRequestsPerMinute,
		ExemptPrefixes:       []string{"/api/v1/health", "/metrics", "/ws/"},
		Logger:               appLogger.GetLogger(),
	})
	defer rateLimiter.Stop()

	app.Use(recover.New())
	app.Use(logger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, X-Client-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))
	app.Use(rateLimiter.Middleware())
	app.Use(validation.Middleware(validation.Config{
		MaxDocumentSize: cfg.Server.BodyLimit,
		Logger:          appLogger.GetLogger(),
	}))

	api.RegisterRoutes(app, api.Handlers{
		Analysis:    handlers.NewAnalysisHandler(urlOrch, htmlOrch),
		History:     handlers.NewHistoryHandler(historyLog, urlOrch),
		Batch:       handlers.NewBatchHandler(analyzer, cfg.Service.Normalize),
		Preferences: handlers.NewPreferencesHandler(preferences),
		Preview:     handlers.NewPreviewHandler(previewFlow, client, previewCfg),
		Health:      handlers.NewHealthHandler(client, historyLog),
	})
	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting",
		zap.String("address", addr),
		zap.String("service", cfg.Service.BaseURL),
		zap.String("history_backend", cfg.History.Backend),
		zap.String("busy_policy", busyPolicy.String()),
	)

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		appLogger.Warn("Server shutdown incomplete", zap.Error(err))
	}
	previewFlow.Close()
	close(cleanupDone)
	appLogger.Info("Server stopped")
}
