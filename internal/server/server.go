// Package server implements the reactor admin HTTP API.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dwsmith1983/riskreactor/internal/reactor"
	"github.com/dwsmith1983/riskreactor/pkg/types"
)

const defaultMaxBody = 1 << 20

// Server is the admin HTTP API server.
type Server struct {
	reactor *reactor.Reactor
	router  chi.Router
	addr    string
	srv     *http.Server
	logger  *slog.Logger
}

// New creates a new HTTP server for cfg.
func New(cfg types.ServerConfig, r *reactor.Reactor, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		reactor: r,
		addr:    cfg.Addr,
		logger:  logger,
	}

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBody
	}

	router := chi.NewRouter()
	router.Use(
		RequestID,
		AccessLog(logger),
		middleware.Recoverer,
		RequireAPIKey(cfg.APIKey),
		LimitBody(maxBody),
		middleware.SetHeader("Content-Type", "application/json"),
	)

	s.router = router
	s.registerRoutes(router)
	return s
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.router }

// Start begins serving HTTP requests. It returns nil after Stop.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:         s.addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	s.logger.Info("admin API listening", "addr", s.addr)
	if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.srv != nil {
		return s.srv.Shutdown(ctx)
	}
	return nil
}
