package config_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MolForge/internal/config"
)

func TestConfig_Validate_Default(t *testing.T) {
	t.Parallel()
	assert.NoError(t, config.Default().Validate())
}

func TestConfig_Validate_Failures(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"unknown mode", func(c *config.Config) { c.Generation.Mode = "hybrid" }, "generation.mode"},
		{"relative base url", func(c *config.Config) { c.Backend.BaseURL = "localhost:8000" }, "backend.base_url"},
		{"ftp base url", func(c *config.Config) { c.Backend.BaseURL = "ftp://host" }, "backend.base_url"},
		{"negative retries", func(c *config.Config) { c.Backend.RetryMax = -1 }, "backend.retry_max"},
		{"inverted retry waits", func(c *config.Config) {
			c.Backend.RetryWaitMin = time.Second
			c.Backend.RetryWaitMax = time.Millisecond
		}, "retry_wait_max"},
		{"negative rate limit", func(c *config.Config) { c.Backend.RateLimit = -1 }, "backend.rate_limit"},
		{"negative remote timeout", func(c *config.Config) { c.Generation.RemoteTimeout = -time.Second }, "generation timings"},
		{"failure ratio above one", func(c *config.Config) { c.Generation.Breaker.FailureRatio = 1.5 }, "failure_ratio"},
		{"zero cache", func(c *config.Config) { c.Enrichment.CacheSize = 0 }, "enrichment.cache_size"},
		{"threshold too low", func(c *config.Config) { c.Enrichment.SimilarityThreshold = 0.2 }, "similarity_threshold"},
		{"zero similarity limit", func(c *config.Config) { c.Enrichment.SimilarityLimit = 0 }, "similarity_limit"},
		{"redis without ttl", func(c *config.Config) {
			c.Enrichment.Redis.Addr = "localhost:6379"
			c.Enrichment.Redis.TTL = 0
		}, "enrichment.redis.ttl"},
		{"port out of range", func(c *config.Config) { c.Server.Port = 70000 }, "server.port"},
		{"metrics without namespace", func(c *config.Config) { c.Metrics.Namespace = "" }, "metrics.namespace"},
		{"bad log level", func(c *config.Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad log format", func(c *config.Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := config.Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestConfig_Validate_MockModeIgnoresBaseURL(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Generation.Mode = config.ModeMock
	cfg.Backend.BaseURL = "not a url"
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Validate_MetricsDisabledNeedsNoNamespace(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	cfg.Metrics.Enabled = false
	cfg.Metrics.Namespace = ""
	assert.NoError(t, cfg.Validate())
}

func TestServerConfig_Addr(t *testing.T) {
	t.Parallel()
	s := config.ServerConfig{Host: "0.0.0.0", Port: 9090}
	assert.Equal(t, "0.0.0.0:9090", s.Addr())
}
