// Package config provides configuration loading, defaults, and validation for
// MolForge. Values come from an optional YAML file overlaid with MOLFORGE_*
// environment variables.
package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/turtacn/MolForge/internal/domain/molecule"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
)

// Generation modes.
const (
	// ModeAuto probes the backend at startup and falls back to the oracle
	// when it is unreachable.
	ModeAuto   = "auto"
	ModeRemote = "remote"
	ModeMock   = "mock"
)

// BackendConfig describes the generation backend connection.
type BackendConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	APIKey       string        `mapstructure:"api_key"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RetryMax     int           `mapstructure:"retry_max"`
	RetryWaitMin time.Duration `mapstructure:"retry_wait_min"`
	RetryWaitMax time.Duration `mapstructure:"retry_wait_max"`
	RateLimit    float64       `mapstructure:"rate_limit"`
	Burst        int           `mapstructure:"burst"`
	ProbeTimeout time.Duration `mapstructure:"probe_timeout"`
}

// BreakerConfig tunes the circuit breaker around remote generation.
type BreakerConfig struct {
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MinRequests  uint32        `mapstructure:"min_requests"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
}

// GenerationConfig holds the generation cycle settings.
type GenerationConfig struct {
	Mode            string        `mapstructure:"mode"`
	FallbackLatency time.Duration `mapstructure:"fallback_latency"`
	BannerTTL       time.Duration `mapstructure:"banner_ttl"`
	// RemoteTimeout bounds one remote call; zero leaves it unbounded.
	RemoteTimeout time.Duration `mapstructure:"remote_timeout"`
	Breaker       BreakerConfig `mapstructure:"breaker"`
}

// EnrichmentConfig holds the detail view lookup settings.
type EnrichmentConfig struct {
	CacheSize           int     `mapstructure:"cache_size"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold"`
	SimilarityLimit     int     `mapstructure:"similarity_limit"`
	// Redis is the optional shared cache for properties and structures.
	Redis RedisCacheConfig `mapstructure:"redis"`
}

// RedisCacheConfig configures the shared enrichment cache. An empty Addr
// disables it.
type RedisCacheConfig struct {
	Addr        string        `mapstructure:"addr"`
	Username    string        `mapstructure:"username"`
	Password    string        `mapstructure:"password"`
	DB          int           `mapstructure:"db"`
	PoolSize    int           `mapstructure:"pool_size"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	TTL         time.Duration `mapstructure:"ttl"`
	Prefix      string        `mapstructure:"prefix"`
}

// Enabled reports whether a Redis address is configured.
func (c RedisCacheConfig) Enabled() bool { return c.Addr != "" }

// ServerConfig holds the view API listener settings.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// AllowedOrigins lists the browser origins accepted by CORS and the
	// session stream. "*" and "*.example.com" patterns are supported.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// MetricsConfig controls Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
}

// Config is the root configuration.
type Config struct {
	Backend    BackendConfig     `mapstructure:"backend"`
	Generation GenerationConfig  `mapstructure:"generation"`
	Enrichment EnrichmentConfig  `mapstructure:"enrichment"`
	Server     ServerConfig      `mapstructure:"server"`
	Metrics    MetricsConfig     `mapstructure:"metrics"`
	Log        logging.LogConfig `mapstructure:"log"`
}

// Validate checks the fully-defaulted Config and returns the first problem.
func (c *Config) Validate() error {
	switch c.Generation.Mode {
	case ModeAuto, ModeRemote, ModeMock:
	default:
		return fmt.Errorf("config: generation.mode %q is invalid; expected auto|remote|mock", c.Generation.Mode)
	}
	if c.Generation.Mode != ModeMock {
		u, err := url.Parse(c.Backend.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config: backend.base_url %q must be an http(s) URL", c.Backend.BaseURL)
		}
	}
	if c.Backend.RetryMax < 0 {
		return fmt.Errorf("config: backend.retry_max must be >= 0, got %d", c.Backend.RetryMax)
	}
	if c.Backend.RetryWaitMax < c.Backend.RetryWaitMin {
		return fmt.Errorf("config: backend.retry_wait_max must not be below retry_wait_min")
	}
	if c.Backend.RateLimit < 0 {
		return fmt.Errorf("config: backend.rate_limit must be >= 0")
	}
	if c.Generation.FallbackLatency < 0 || c.Generation.BannerTTL <= 0 || c.Generation.RemoteTimeout < 0 {
		return fmt.Errorf("config: generation timings must be non-negative and banner_ttl positive")
	}
	if r := c.Generation.Breaker.FailureRatio; r <= 0 || r > 1 {
		return fmt.Errorf("config: generation.breaker.failure_ratio %v is out of range (0, 1]", r)
	}
	if c.Enrichment.CacheSize < 1 {
		return fmt.Errorf("config: enrichment.cache_size must be >= 1, got %d", c.Enrichment.CacheSize)
	}
	if t := c.Enrichment.SimilarityThreshold; t < molecule.MinSimilarityThreshold || t > molecule.MaxSimilarityThreshold {
		return fmt.Errorf("config: enrichment.similarity_threshold %v is out of range [%.1f, %.1f]",
			t, molecule.MinSimilarityThreshold, molecule.MaxSimilarityThreshold)
	}
	if c.Enrichment.SimilarityLimit < 1 {
		return fmt.Errorf("config: enrichment.similarity_limit must be >= 1")
	}
	if r := c.Enrichment.Redis; r.Enabled() && r.TTL <= 0 {
		return fmt.Errorf("config: enrichment.redis.ttl must be positive, got %s", r.TTL)
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		return fmt.Errorf("config: metrics.namespace is required when metrics are enabled")
	}
	if !logging.ValidLevel(c.Log.Level) {
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}
	return nil
}
