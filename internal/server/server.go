package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"burnish/internal/config"
	"burnish/internal/jobs"
	"burnish/internal/logging"
)

// Option customizes a Server.
type Option func(*Server)

// WithSpawner replaces the detached-process spawner (primarily for tests).
func WithSpawner(spawner Spawner) Option {
	return func(s *Server) {
		if spawner != nil {
			s.spawner = spawner
		}
	}
}

// Server runs the admin API over the shared job store.
type Server struct {
	cfg     *config.Config
	store   *jobs.Store
	logger  *slog.Logger
	spawner Spawner

	listener net.Listener
	server   *http.Server
}

// New builds the API server. The config path, when known, is forwarded to
// spawned workers so both processes resolve the same store.
func New(cfg *config.Config, store *jobs.Store, configPath string, logger *slog.Logger, opts ...Option) (*Server, error) {
	if cfg == nil || store == nil {
		return nil, errors.New("server requires config and store")
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, errors.New("paths.api_bind is required")
	}

	srv := &Server{
		cfg:     cfg,
		store:   store,
		logger:  logging.NewComponentLogger(logger, "api-server"),
		spawner: NewProcessSpawner(cfg, configPath),
	}
	for _, opt := range opts {
		opt(srv)
	}

	srv.server = &http.Server{
		Addr:              bind,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// Handler returns the routed handler, exposed for httptest use.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()
	router.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/jobs/defaults", s.handleDefaults).Methods(http.MethodGet)
	router.HandleFunc("/api/jobs", s.handleSubmit).Methods(http.MethodPost)
	router.HandleFunc("/api/jobs", s.handleList).Methods(http.MethodGet)
	router.HandleFunc("/api/jobs/{id}", s.handleShow).Methods(http.MethodGet)
	router.HandleFunc("/api/jobs/{id}", s.handleDelete).Methods(http.MethodDelete)
	router.HandleFunc("/api/jobs/{id}/cancel", s.handleCancel).Methods(http.MethodPost)
	return router
}

// Start listens on the configured bind address and serves until ctx is done.
func (s *Server) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api serve: %w", err)
	}
	return nil
}

// Addr reports the bound listener address once Start has been called.
func (s *Server) Addr() string {
	if s.listener == nil {
		return s.server.Addr
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down outside of context cancellation.
func (s *Server) Stop() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = s.server.Shutdown(shutdownCtx)
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}
