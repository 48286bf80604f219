package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/molotovsingh/personal-backup-tool/internal/common"
	"github.com/molotovsingh/personal-backup-tool/internal/fanout"
	"github.com/molotovsingh/personal-backup-tool/internal/recovery"
	"github.com/molotovsingh/personal-backup-tool/internal/settings"
	"github.com/molotovsingh/personal-backup-tool/internal/storage"
	"github.com/molotovsingh/personal-backup-tool/internal/supervisor"
)

// Deps carries everything the HTTP layer needs.
type Deps struct {
	Config     *common.Config
	Logger     arbor.ILogger
	Supervisor *supervisor.Supervisor
	Settings   *settings.Service
	Errors     *storage.ErrorLog
	Logs       *storage.LogStore
	Hub        *fanout.Hub
	Degrader   *recovery.Degrader
	Version    string
}

// Server manages the HTTP server and routes
type Server struct {
	deps   Deps
	logger arbor.ILogger
	router *http.ServeMux
	server *http.Server
}

// New creates a new HTTP server over the supervisor and stores
func New(deps Deps) *Server {
	s := &Server{
		deps:   deps,
		logger: deps.Logger,
	}

	s.router = s.setupRoutes()

	addr := fmt.Sprintf("%s:%d", deps.Config.Server.Host, deps.Config.Server.Port)
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.withConditionalMiddleware(s.router),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.logger.Info().
		Str("address", s.server.Addr).
		Msg("HTTP server starting")

	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info().Msg("Shutting down HTTP server...")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info().Msg("HTTP server stopped")
	return nil
}
