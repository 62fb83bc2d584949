package cli

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/turtacn/MolForge/internal/application/enrichment"
	"github.com/turtacn/MolForge/internal/application/generation"
	"github.com/turtacn/MolForge/internal/application/session"
	"github.com/turtacn/MolForge/internal/config"
	"github.com/turtacn/MolForge/internal/infrastructure/backend"
	rediscache "github.com/turtacn/MolForge/internal/infrastructure/database/redis"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MolForge/internal/intelligence/synthesis"
	"github.com/turtacn/MolForge/internal/interfaces/http/handlers"
	"github.com/turtacn/MolForge/pkg/client"
	"github.com/turtacn/MolForge/pkg/errors"
)

// App is the wired component graph shared by every command.
type App struct {
	Config *config.Config
	Logger logging.Logger

	// Collector and Metrics are nil when metrics are disabled.
	Collector prometheus.MetricsCollector
	Metrics   *prometheus.AppMetrics

	Client    *client.Client
	Generator *backend.Generator
	Enricher  *backend.Enricher
	// Redis is nil unless the shared enrichment cache is configured and reachable.
	Redis *rediscache.Client

	Store       *session.Store
	Coordinator *generation.Coordinator
	Views       *enrichment.Views

	// Mode is the resolved generation mode, remote or mock.
	Mode string
	// SessionID scopes shared cache keys to this process.
	SessionID string
}

// NewApp wires the components described by cfg. In auto mode the backend is
// probed once; an unreachable backend selects the local generator.
func NewApp(ctx context.Context, cfg *config.Config, log logging.Logger) (*App, error) {
	if log == nil {
		log = logging.NewNopLogger()
	}
	a := &App{Config: cfg, Logger: log, SessionID: uuid.NewString()}

	if cfg.Metrics.Enabled {
		collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
			Namespace:            cfg.Metrics.Namespace,
			EnableGoMetrics:      true,
			EnableProcessMetrics: true,
		}, log)
		if err != nil {
			return nil, err
		}
		a.Collector = collector
		a.Metrics = prometheus.NewAppMetrics(collector)
	}

	c, err := backend.NewClient(backendConfig(cfg), log)
	if err != nil {
		return nil, err
	}
	a.Client = c
	a.Enricher = backend.NewEnricher(c, cfg.Backend.RateLimit, cfg.Backend.Burst, log)

	a.Mode = resolveMode(ctx, cfg, c, log)

	var genOpts []generation.Option
	if a.Metrics != nil {
		genOpts = append(genOpts, generation.WithMetrics(generationMetrics{a.Metrics}))
	}
	if a.Mode == config.ModeRemote {
		var breakerOpts []backend.GeneratorOption
		if a.Metrics != nil {
			breakerOpts = append(breakerOpts, backend.WithStateObserver(breakerObserver(a.Metrics)))
			a.Metrics.SetBreakerState("generation", gobreaker.StateClosed.String())
		}
		a.Generator = backend.NewGenerator(c, breakerConfig(cfg), log, breakerOpts...)
		genOpts = append(genOpts, generation.WithRemote(a.Generator))
	}

	a.Store = session.NewStore()
	a.Coordinator = generation.NewCoordinator(a.Store, synthesis.NewMock(), generationConfig(cfg), log, genOpts...)

	var enrichOpts []enrichment.Option
	if a.Metrics != nil {
		enrichOpts = append(enrichOpts, enrichment.WithMetrics(enrichmentMetrics{a.Metrics}))
	}
	a.Views = enrichment.NewViews(a.enrichmentService(ctx), enrichmentConfig(cfg), log, enrichOpts...)

	log.Info("components wired",
		logging.String("mode", a.Mode),
		logging.String("session", a.SessionID),
		logging.String("backend", c.BaseURL()),
		logging.Bool("metrics", a.Metrics != nil))
	return a, nil
}

// enrichmentService puts the shared Redis cache in front of the backend when
// one is configured. An unreachable cache is skipped, not fatal.
func (a *App) enrichmentService(ctx context.Context) enrichment.Service {
	r := a.Config.Enrichment.Redis
	if !r.Enabled() {
		return a.Enricher
	}
	rc, err := rediscache.NewClient(ctx, redisConfig(a.Config), a.Logger.Named("redis"))
	if err != nil {
		a.Logger.Warn("shared enrichment cache unavailable, continuing without it",
			logging.String("addr", r.Addr), logging.Err(err))
		return a.Enricher
	}
	a.Redis = rc
	cache := rediscache.NewCache(rc, a.Logger,
		rediscache.WithPrefix(sessionPrefix(r.Prefix, a.SessionID)),
		rediscache.WithDefaultTTL(r.TTL))
	return rediscache.NewEnrichmentCache(a.Enricher, cache, r.TTL)
}

// sessionPrefix keeps one process from reading another's cached results.
func sessionPrefix(prefix, sessionID string) string {
	return prefix + sessionID + ":"
}

// Close cancels pending cycles, closes every detail view and releases the
// shared cache. Closing the views evicts their cached entries.
func (a *App) Close() {
	a.Coordinator.Close()
	a.Views.CloseAll()
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
}

// HealthCheckers returns the readiness checks of the view API. The local
// generator has no dependencies, so mock mode has none.
func (a *App) HealthCheckers() []handlers.HealthChecker {
	if a.Mode != config.ModeRemote {
		return nil
	}
	return []handlers.HealthChecker{
		&backendHealthAdapter{client: a.Client, timeout: a.Config.Backend.ProbeTimeout},
		&breakerHealthAdapter{gen: a.Generator},
	}
}

func resolveMode(ctx context.Context, cfg *config.Config, c *client.Client, log logging.Logger) string {
	switch cfg.Generation.Mode {
	case config.ModeRemote, config.ModeMock:
		return cfg.Generation.Mode
	}
	if err := backend.Probe(ctx, c, cfg.Backend.ProbeTimeout); err != nil {
		log.Warn("generation service unreachable, using local generator",
			logging.String("backend", c.BaseURL()), logging.Err(err))
		return config.ModeMock
	}
	return config.ModeRemote
}

// ─────────────────────────────────────────────────────────────────────────────
// Config mapping
// ─────────────────────────────────────────────────────────────────────────────

func backendConfig(cfg *config.Config) backend.Config {
	b := cfg.Backend
	return backend.Config{
		BaseURL:      b.BaseURL,
		APIKey:       b.APIKey,
		Timeout:      b.Timeout,
		RetryMax:     b.RetryMax,
		RetryWaitMin: b.RetryWaitMin,
		RetryWaitMax: b.RetryWaitMax,
		RateLimit:    b.RateLimit,
		Burst:        b.Burst,
		Breaker:      breakerConfig(cfg),
	}
}

func breakerConfig(cfg *config.Config) backend.BreakerConfig {
	br := cfg.Generation.Breaker
	return backend.BreakerConfig{
		MaxRequests:  br.MaxRequests,
		Interval:     br.Interval,
		Timeout:      br.Timeout,
		MinRequests:  br.MinRequests,
		FailureRatio: br.FailureRatio,
	}
}

func generationConfig(cfg *config.Config) generation.Config {
	g := cfg.Generation
	return generation.Config{
		FallbackLatency: g.FallbackLatency,
		BannerTTL:       g.BannerTTL,
		RemoteTimeout:   g.RemoteTimeout,
	}
}

func redisConfig(cfg *config.Config) rediscache.Config {
	r := cfg.Enrichment.Redis
	return rediscache.Config{
		Addr:        r.Addr,
		Username:    r.Username,
		Password:    r.Password,
		DB:          r.DB,
		PoolSize:    r.PoolSize,
		DialTimeout: r.DialTimeout,
	}
}

func enrichmentConfig(cfg *config.Config) enrichment.Config {
	e := cfg.Enrichment
	return enrichment.Config{
		CacheSize:           e.CacheSize,
		SimilarityThreshold: e.SimilarityThreshold,
		SimilarityLimit:     e.SimilarityLimit,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Metric adapters
// ─────────────────────────────────────────────────────────────────────────────

type generationMetrics struct{ m *prometheus.AppMetrics }

func (g generationMetrics) ObserveCycle(source session.Source, outcome string, d time.Duration) {
	g.m.RecordGenerationCycle(string(source), outcome, d)
}

type enrichmentMetrics struct{ m *prometheus.AppMetrics }

func (e enrichmentMetrics) ObserveEnrichment(kind enrichment.Kind, outcome string, d time.Duration) {
	e.m.RecordEnrichmentLookup(string(kind), outcome, d)
}

func breakerObserver(m *prometheus.AppMetrics) backend.StateObserver {
	return func(name string, _, to gobreaker.State) {
		m.SetBreakerState(name, to.String())
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Health adapters
// ─────────────────────────────────────────────────────────────────────────────

type backendHealthAdapter struct {
	client  *client.Client
	timeout time.Duration
}

func (a *backendHealthAdapter) Name() string { return "backend" }

func (a *backendHealthAdapter) Check(ctx context.Context) error {
	return backend.Probe(ctx, a.client, a.timeout)
}

// breakerHealthAdapter reports not ready while the generation breaker is
// open; requests would be rejected without reaching the service.
type breakerHealthAdapter struct {
	gen *backend.Generator
}

func (a *breakerHealthAdapter) Name() string { return "generation_breaker" }

func (a *breakerHealthAdapter) Check(context.Context) error {
	if a.gen.State() == gobreaker.StateOpen.String() {
		return errors.New(errors.ErrCodeServiceUnavailable, "generation circuit breaker is open")
	}
	return nil
}
