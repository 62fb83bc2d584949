package http

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
)

// ServerConfig holds the listener settings.
type ServerConfig struct {
	Addr            string
	ReadTimeout     time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Server wraps http.Server. Stopping it also ends open session streams.
type Server struct {
	srv     *http.Server
	handler http.Handler
	log     logging.Logger
	timeout time.Duration

	base   context.Context
	cancel context.CancelFunc
}

// NewServer creates a server for handler. WriteTimeout stays unset so
// websocket streams manage their own write deadlines.
func NewServer(cfg ServerConfig, handler http.Handler, log logging.Logger) *Server {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 15 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 60 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	base, cancel := context.WithCancel(context.Background())
	s := &Server{
		handler: handler,
		log:     log.Named("server"),
		timeout: cfg.ShutdownTimeout,
		base:    base,
		cancel:  cancel,
	}
	s.srv = &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return base },
	}
	return s
}

// Start listens on the configured address and blocks until Stop.
func (s *Server) Start() error {
	l, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.srv.Addr, err)
	}
	return s.Serve(l)
}

// Serve accepts connections on l and blocks until Stop.
func (s *Server) Serve(l net.Listener) error {
	s.log.Info("view API listening", logging.String("addr", l.Addr().String()))
	if err := s.srv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the server down gracefully within the shutdown timeout.
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("shutting down view API")
	// Hijacked stream connections are not tracked by Shutdown; cancelling
	// the base context ends them.
	defer s.cancel()

	shutdownCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	s.log.Info("view API stopped")
	return nil
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }
