// Package http serves the local view API: the session, the molecule detail
// views and a websocket stream of session snapshots.
package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MolForge/internal/interfaces/http/handlers"
	"github.com/turtacn/MolForge/internal/interfaces/http/middleware"
)

// RouterConfig aggregates the handlers and middleware of the route tree.
type RouterConfig struct {
	SessionHandler    *handlers.SessionHandler
	EnrichmentHandler *handlers.EnrichmentHandler
	StreamHandler     *handlers.StreamHandler
	HealthHandler     *handlers.HealthHandler

	CORS *middleware.CORSConfig

	Logger           logging.Logger
	Metrics          *prometheus.AppMetrics
	MetricsCollector prometheus.MetricsCollector
}

// NewRouter builds the route tree.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	if cfg.CORS != nil {
		r.Use(middleware.CORS(*cfg.CORS))
	}
	if cfg.Logger != nil {
		r.Use(middleware.RequestLogging(cfg.Logger.Named("http"), middleware.DefaultLoggingConfig()))
	}
	r.Use(middleware.Metrics(cfg.Metrics))

	if cfg.HealthHandler != nil {
		r.Get("/healthz", cfg.HealthHandler.Liveness)
		r.Get("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsCollector != nil {
		r.Handle("/metrics", cfg.MetricsCollector.Handler())
	}

	r.Route("/api/v1/session", func(api chi.Router) {
		registerSessionRoutes(api, cfg.SessionHandler, cfg.StreamHandler)
		api.Route("/molecules/{moleculeID}", func(item chi.Router) {
			if cfg.SessionHandler != nil {
				item.Get("/", cfg.SessionHandler.Molecule)
			}
			registerEnrichmentRoutes(item, cfg.EnrichmentHandler)
		})
	})

	return r
}

func registerSessionRoutes(r chi.Router, h *handlers.SessionHandler, s *handlers.StreamHandler) {
	if h != nil {
		r.Get("/", h.Get)
		r.Delete("/", h.Reset)
		r.Post("/generate", h.Generate)
		r.Post("/retry", h.Retry)
		r.Delete("/banner", h.DismissBanner)
	}
	if s != nil {
		r.Get("/stream", s.Stream)
	}
}

func registerEnrichmentRoutes(r chi.Router, h *handlers.EnrichmentHandler) {
	if h == nil {
		return
	}
	r.Post("/properties", h.Properties)
	r.Post("/admet", h.ADMET)
	r.Post("/similar", h.Similar)
	r.Get("/structure", h.Structure)
	r.Get("/enrichment", h.Snapshot)
	r.Delete("/enrichment", h.Close)
}
