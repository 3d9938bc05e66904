package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig
	Service      ServiceConfig
	History      HistoryConfig
	Preview      PreviewConfig
	Orchestrator OrchestratorConfig
	Batch        BatchConfig
	Redis        RedisConfig
	RateLimit    RateLimitConfig
	Logging      LoggingConfig
}

type ServerConfig struct {
	Host           string
	Port           int
	ReadTimeout    int
	WriteTimeout   int
	BodyLimit      int
	AllowedOrigins []string
	Development    bool
}

// ServiceConfig points at the external classification service or its gateway.
type ServiceConfig struct {
	BaseURL           string
	PathPrefix        string
	HTMLField         string
	TimeoutSec        int
	Normalize         bool
	BreakerFailures   int
	BreakerTimeoutSec int
}

type HistoryConfig struct {
	Backend    string
	MaxEntries int
	Namespace  string
	SQLitePath string
}

type PreviewConfig struct {
	DebounceMs  int
	StalePolicy string
}

type OrchestratorConfig struct {
	BusyPolicy string
}

type BatchConfig struct {
	MaxURLs       int
	Concurrency   int
	CacheTTLSec   int
	Cache         string
	RetryAttempts int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type RateLimitConfig struct {
	MaxRequestsPerMinute int
}

type LoggingConfig struct {
	Level      string
	Format     string
	OutputPath string
}

func (s ServiceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSec) * time.Second
}

func (p PreviewConfig) Delay() time.Duration {
	return time.Duration(p.DebounceMs) * time.Millisecond
}

func (b BatchConfig) CacheTTL() time.Duration {
	return time.Duration(b.CacheTTLSec) * time.Second
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/url-guardian")

	v.SetEnvPrefix("GUARDIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func (c *Config) validate() error {
	switch c.History.Backend {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("unsupported history backend %q", c.History.Backend)
	}
	switch c.Preview.StalePolicy {
	case "accept", "discard":
	default:
		return fmt.Errorf("unsupported preview stale policy %q", c.Preview.StalePolicy)
	}
	switch c.Orchestrator.BusyPolicy {
	case "reject", "supersede":
	default:
		return fmt.Errorf("unsupported orchestrator busy policy %q", c.Orchestrator.BusyPolicy)
	}
	switch c.Batch.Cache {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported batch cache %q", c.Batch.Cache)
	}
	if c.History.MaxEntries <= 0 {
		return fmt.Errorf("history.maxEntries must be positive, got %d", c.History.MaxEntries)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.readTimeout", 30)
	v.SetDefault("server.writeTimeout", 60)
	v.SetDefault("server.bodyLimit", 10485760)
	v.SetDefault("server.allowedOrigins", []string{"http://localhost:5173", "http://localhost:3000"})
	v.SetDefault("server.development", true)

	v.SetDefault("service.baseURL", "http://localhost:8002")
	v.SetDefault("service.pathPrefix", "/api")
	v.SetDefault("service.htmlField", "html")
	v.SetDefault("service.timeoutSec", 30)
	v.SetDefault("service.normalize", true)
	v.SetDefault("service.breakerFailures", 5)
	v.SetDefault("service.breakerTimeoutSec", 30)

	v.SetDefault("history.backend", "sqlite")
	v.SetDefault("history.maxEntries", 100)
	v.SetDefault("history.namespace", "phishing_history")
	v.SetDefault("history.sqlitePath", "./data/guardian.db")

	v.SetDefault("preview.debounceMs", 500)
	v.SetDefault("preview.stalePolicy", "accept")

	v.SetDefault("orchestrator.busyPolicy", "reject")

	v.SetDefault("batch.maxURLs", 100)
	v.SetDefault("batch.concurrency", 4)
	v.SetDefault("batch.cacheTTLSec", 3600)
	v.SetDefault("batch.cache", "memory")
	v.SetDefault("batch.retryAttempts", 3)

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)

	v.SetDefault("ratelimit.maxRequestsPerMinute", 120)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.outputPath", "stdout")
}
