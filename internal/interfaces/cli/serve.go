package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/turtacn/MolForge/internal/application/session"
	"github.com/turtacn/MolForge/internal/config"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/prometheus"
	httpapi "github.com/turtacn/MolForge/internal/interfaces/http"
	"github.com/turtacn/MolForge/internal/interfaces/http/handlers"
	"github.com/turtacn/MolForge/internal/interfaces/http/middleware"
)

type serveOptions struct {
	host string
	port int
}

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the view API for the presentation shell",
		Long: "Serve exposes the generation session, the molecule detail views and a\n" +
			"websocket stream of session snapshots. With --config the file is watched\n" +
			"and log level changes apply without a restart.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.host, "host", "", "listen host (overrides server.host)")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "listen port (overrides server.port)")
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cliCtx, err := GetCLIContext(cmd)
	if err != nil {
		return err
	}
	cfg := cliCtx.Config
	if opts.host != "" {
		cfg.Server.Host = opts.host
	}
	if opts.port != 0 {
		cfg.Server.Port = opts.port
	}
	log := cliCtx.Logger

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := cliCtx.App(ctx)
	if err != nil {
		return err
	}

	view := NewViewAPI(ctx, app)
	srv := httpapi.NewServer(httpapi.ServerConfig{
		Addr:            cfg.Server.Addr(),
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	}, view.Handler, log)

	if cliCtx.ConfigPath != "" {
		if err := watchLogLevel(cliCtx.ConfigPath, log); err != nil {
			log.Warn("config watch disabled", logging.Err(err))
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()
	log.Info("serving view API",
		logging.String("addr", cfg.Server.Addr()),
		logging.String("mode", app.Mode))

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	// A fresh context: ctx is already cancelled here.
	if err := srv.Stop(context.Background()); err != nil {
		log.Error("view API shutdown failed", logging.Err(err))
	}
	view.Session.Wait()
	PrintSuccess(cmd, "view API stopped")
	return nil
}

// ViewAPI is the assembled view API.
type ViewAPI struct {
	Handler    http.Handler
	Session    *handlers.SessionHandler
	Enrichment *handlers.EnrichmentHandler
}

// NewViewAPI wires the HTTP handlers onto app. Background generation cycles
// and metric publishing stop when ctx ends.
func NewViewAPI(ctx context.Context, app *App) *ViewAPI {
	log := app.Logger
	cfg := app.Config

	var streamClients, openViews prometheus.Gauge
	if app.Metrics != nil {
		streamClients = app.Metrics.StreamClients.WithLabelValues("session")
		openViews = app.Metrics.EnrichmentOpenViews.WithLabelValues("session")
		go publishSessionMetrics(ctx, app.Store, app.Metrics)
	}

	enrich := handlers.NewEnrichmentHandler(app.Store, app.Views, log.Named("enrichment_api"), openViews)
	sess := handlers.NewSessionHandler(ctx, app.Coordinator, log.Named("session_api"),
		handlers.WithResetHook(enrich.CloseAll))

	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.Server.AllowedOrigins

	stream := handlers.NewStreamHandler(app.Store,
		middleware.OriginMatcher(cfg.Server.AllowedOrigins), log.Named("stream"), streamClients)

	router := httpapi.NewRouter(httpapi.RouterConfig{
		SessionHandler:    sess,
		EnrichmentHandler: enrich,
		StreamHandler:     stream,
		HealthHandler:     handlers.NewHealthHandler(Version, app.HealthCheckers()...),
		CORS:              &cors,
		Logger:            log,
		Metrics:           app.Metrics,
		MetricsCollector:  app.Collector,
	})
	return &ViewAPI{Handler: router, Session: sess, Enrichment: enrich}
}

// publishSessionMetrics keeps the session gauge in step with the store.
func publishSessionMetrics(ctx context.Context, store session.Reader, m *prometheus.AppMetrics) {
	states, unsubscribe := store.Subscribe()
	defer unsubscribe()
	for {
		select {
		case st, ok := <-states:
			if !ok {
				return
			}
			m.SetSessionMolecules(len(st.Molecules))
		case <-ctx.Done():
			return
		}
	}
}

// watchLogLevel applies log level changes from the config file at runtime.
// Other settings need a restart.
func watchLogLevel(path string, log logging.Logger) error {
	ls, ok := log.(logging.LevelSetter)
	if !ok {
		return nil
	}
	return config.Watch(path,
		func(cfg *config.Config) {
			if cfg.Log.Level == ls.Level() {
				return
			}
			log.Info("log level changed", logging.String("from", ls.Level()), logging.String("to", cfg.Log.Level))
			ls.SetLevel(cfg.Log.Level)
		},
		func(err error) {
			log.Warn("ignoring invalid config change", logging.Err(err))
		})
}
