package config

import (
	"time"

	"github.com/spf13/viper"
)

const (
	DefaultBackendURL      = "http://localhost:8000"
	DefaultBackendTimeout  = 30 * time.Second
	DefaultRetryMax        = 2
	DefaultRetryWaitMin    = 250 * time.Millisecond
	DefaultRetryWaitMax    = 2 * time.Second
	DefaultRateLimit       = 10.0
	DefaultBurst           = 5
	DefaultProbeTimeout    = 2 * time.Second
	DefaultMode            = ModeAuto
	DefaultFallbackLatency = 2 * time.Second
	DefaultBannerTTL       = 3 * time.Second

	DefaultBreakerMaxRequests  = 1
	DefaultBreakerInterval     = 60 * time.Second
	DefaultBreakerTimeout      = 30 * time.Second
	DefaultBreakerMinRequests  = 3
	DefaultBreakerFailureRatio = 0.6

	DefaultCacheSize           = 128
	DefaultSimilarityThreshold = 0.7
	DefaultSimilarityLimit     = 10
	DefaultRedisDialTimeout    = 2 * time.Second
	DefaultRedisTTL            = 24 * time.Hour
	DefaultRedisPrefix         = "molforge:"

	DefaultServerHost      = "127.0.0.1"
	DefaultServerPort      = 8080
	DefaultShutdownTimeout = 10 * time.Second

	DefaultMetricsNamespace = "molforge"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// DefaultAllowedOrigins returns the dev-server origins of the presentation
// shell.
func DefaultAllowedOrigins() []string {
	return []string{"http://localhost:3000", "http://127.0.0.1:3000"}
}

// setDefaults registers every key with viper so that MOLFORGE_* variables
// resolve even when no config file mentions the key.
func setDefaults(v *viper.Viper) {
	v.SetDefault("backend.base_url", DefaultBackendURL)
	v.SetDefault("backend.api_key", "")
	v.SetDefault("backend.timeout", DefaultBackendTimeout)
	v.SetDefault("backend.retry_max", DefaultRetryMax)
	v.SetDefault("backend.retry_wait_min", DefaultRetryWaitMin)
	v.SetDefault("backend.retry_wait_max", DefaultRetryWaitMax)
	v.SetDefault("backend.rate_limit", DefaultRateLimit)
	v.SetDefault("backend.burst", DefaultBurst)
	v.SetDefault("backend.probe_timeout", DefaultProbeTimeout)

	v.SetDefault("generation.mode", DefaultMode)
	v.SetDefault("generation.fallback_latency", DefaultFallbackLatency)
	v.SetDefault("generation.banner_ttl", DefaultBannerTTL)
	v.SetDefault("generation.remote_timeout", time.Duration(0))
	v.SetDefault("generation.breaker.max_requests", DefaultBreakerMaxRequests)
	v.SetDefault("generation.breaker.interval", DefaultBreakerInterval)
	v.SetDefault("generation.breaker.timeout", DefaultBreakerTimeout)
	v.SetDefault("generation.breaker.min_requests", DefaultBreakerMinRequests)
	v.SetDefault("generation.breaker.failure_ratio", DefaultBreakerFailureRatio)

	v.SetDefault("enrichment.cache_size", DefaultCacheSize)
	v.SetDefault("enrichment.similarity_threshold", DefaultSimilarityThreshold)
	v.SetDefault("enrichment.similarity_limit", DefaultSimilarityLimit)
	v.SetDefault("enrichment.redis.addr", "")
	v.SetDefault("enrichment.redis.dial_timeout", DefaultRedisDialTimeout)
	v.SetDefault("enrichment.redis.ttl", DefaultRedisTTL)
	v.SetDefault("enrichment.redis.prefix", DefaultRedisPrefix)

	v.SetDefault("server.host", DefaultServerHost)
	v.SetDefault("server.port", DefaultServerPort)
	v.SetDefault("server.shutdown_timeout", DefaultShutdownTimeout)
	v.SetDefault("server.allowed_origins", DefaultAllowedOrigins())

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.namespace", DefaultMetricsNamespace)

	v.SetDefault("log.level", DefaultLogLevel)
	v.SetDefault("log.format", DefaultLogFormat)
}

// ApplyDefaults fills zero-value fields in cfg. Explicit values always win.
// Booleans and RemoteTimeout are left alone since their zero value is
// meaningful.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Backend ──────────────────────────────────────────────────────────────
	if cfg.Backend.BaseURL == "" {
		cfg.Backend.BaseURL = DefaultBackendURL
	}
	if cfg.Backend.Timeout == 0 {
		cfg.Backend.Timeout = DefaultBackendTimeout
	}
	if cfg.Backend.RetryWaitMin == 0 {
		cfg.Backend.RetryWaitMin = DefaultRetryWaitMin
	}
	if cfg.Backend.RetryWaitMax == 0 {
		cfg.Backend.RetryWaitMax = DefaultRetryWaitMax
	}
	if cfg.Backend.Burst == 0 {
		cfg.Backend.Burst = DefaultBurst
	}
	if cfg.Backend.ProbeTimeout == 0 {
		cfg.Backend.ProbeTimeout = DefaultProbeTimeout
	}

	// ── Generation ───────────────────────────────────────────────────────────
	if cfg.Generation.Mode == "" {
		cfg.Generation.Mode = DefaultMode
	}
	if cfg.Generation.FallbackLatency == 0 {
		cfg.Generation.FallbackLatency = DefaultFallbackLatency
	}
	if cfg.Generation.BannerTTL == 0 {
		cfg.Generation.BannerTTL = DefaultBannerTTL
	}
	b := &cfg.Generation.Breaker
	if b.MaxRequests == 0 {
		b.MaxRequests = DefaultBreakerMaxRequests
	}
	if b.Interval == 0 {
		b.Interval = DefaultBreakerInterval
	}
	if b.Timeout == 0 {
		b.Timeout = DefaultBreakerTimeout
	}
	if b.MinRequests == 0 {
		b.MinRequests = DefaultBreakerMinRequests
	}
	if b.FailureRatio == 0 {
		b.FailureRatio = DefaultBreakerFailureRatio
	}

	// ── Enrichment ───────────────────────────────────────────────────────────
	if cfg.Enrichment.CacheSize == 0 {
		cfg.Enrichment.CacheSize = DefaultCacheSize
	}
	if cfg.Enrichment.SimilarityThreshold == 0 {
		cfg.Enrichment.SimilarityThreshold = DefaultSimilarityThreshold
	}
	if cfg.Enrichment.SimilarityLimit == 0 {
		cfg.Enrichment.SimilarityLimit = DefaultSimilarityLimit
	}
	if cfg.Enrichment.Redis.DialTimeout == 0 {
		cfg.Enrichment.Redis.DialTimeout = DefaultRedisDialTimeout
	}
	if cfg.Enrichment.Redis.TTL == 0 {
		cfg.Enrichment.Redis.TTL = DefaultRedisTTL
	}
	if cfg.Enrichment.Redis.Prefix == "" {
		cfg.Enrichment.Redis.Prefix = DefaultRedisPrefix
	}

	// ── Server ───────────────────────────────────────────────────────────────
	if cfg.Server.Host == "" {
		cfg.Server.Host = DefaultServerHost
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = DefaultAllowedOrigins()
	}

	// ── Metrics / Log ────────────────────────────────────────────────────────
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// Default returns a fully defaulted Config without reading files or the
// environment.
func Default() *Config {
	cfg := &Config{Backend: BackendConfig{RetryMax: DefaultRetryMax, RateLimit: DefaultRateLimit}}
	cfg.Metrics.Enabled = true
	ApplyDefaults(cfg)
	return cfg
}
