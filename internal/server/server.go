// Package server hosts the HTTP API in front of the engine.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/basalthq/basalt/internal/config"
	"github.com/basalthq/basalt/internal/database"
	"github.com/basalthq/basalt/internal/engine"
)

// Server wraps the HTTP listener with graceful shutdown.
type Server struct {
	http   *http.Server
	logger zerolog.Logger
}

// New builds the server and its router.
func New(cfg *config.Config, e *engine.Engine, db *database.DB, logger zerolog.Logger) *Server {
	return &Server{
		http: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
			Handler:      newRouter(cfg, e, db, logger),
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			IdleTimeout:  cfg.Server.IdleTimeout,
		},
		logger: logger.With().Str("component", "server").Logger(),
	}
}

// Run serves requests until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.http.Addr).Msg("http server listening")
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Info().Msg("shutting down http server")
	return s.http.Shutdown(shutdownCtx)
}
