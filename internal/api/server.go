// Package api provides the local diagnostics HTTP server: session state,
// host information, and Prometheus metrics. It is read-only; playback is
// driven by the embedding application, not over HTTP.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/pulsetv/pulsetv/internal/config"
	"github.com/pulsetv/pulsetv/internal/device"
	"github.com/pulsetv/pulsetv/internal/observability"
	"github.com/pulsetv/pulsetv/internal/playback"
	"github.com/pulsetv/pulsetv/internal/version"
)

// Server is the diagnostics HTTP server.
type Server struct {
	cfg        config.APIConfig
	logger     *slog.Logger
	router     *chi.Mux
	httpServer *http.Server

	sessions *playback.Manager
	devices  *device.Collector
}

// Options carries the collaborators of a Server. Metrics is the handler for
// the metrics endpoint; nil disables it.
type Options struct {
	Logger   *slog.Logger
	Sessions *playback.Manager
	Devices  *device.Collector
	Metrics  http.Handler
}

// NewServer creates the diagnostics server and mounts its routes.
func NewServer(cfg config.APIConfig, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = observability.WithComponent(logger, "api")

	s := &Server{
		cfg:      cfg,
		logger:   logger,
		sessions: opts.Sessions,
		devices:  opts.Devices,
	}

	router := chi.NewRouter()
	router.Use(chimiddleware.RealIP)
	router.Use(RequestID)
	router.Use(Logging(logger))
	router.Use(Recovery(logger))
	router.Use(chimiddleware.Compress(5))

	router.Get("/healthz", s.handleHealth)
	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{id}", s.handleGetSession)
		r.Get("/device", s.handleDevice)
	})
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics)
	}

	s.router = router
	return s
}

// Router returns the router, for tests and embedding.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the server until it fails or Shutdown is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:         s.cfg.Address(),
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("starting diagnostics server", slog.String("address", s.cfg.Address()))

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("starting server: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	s.logger.Info("diagnostics server stopped")
	return nil
}

// Run starts the server and shuts it down when ctx is cancelled. It blocks
// until the server has stopped.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		if err := s.Shutdown(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		return <-errCh
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": version.GetInfo().Version,
	})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		writeJSON(w, http.StatusOK, []playback.SessionSnapshot{})
		return
	}
	writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if s.sessions == nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	session, ok := s.sessions.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, session.Snapshot())
}

func (s *Server) handleDevice(w http.ResponseWriter, r *http.Request) {
	if s.devices == nil {
		writeError(w, http.StatusNotFound, "device collector disabled")
		return
	}
	snap := s.devices.Collect(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"device":                snap,
		"hardware_acceleration": snap.RecommendHardwareDecode(),
	})
}
