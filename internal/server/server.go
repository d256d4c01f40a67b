package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/zerodte/execd/internal/domain"
	"github.com/zerodte/execd/internal/server/handler"
	"github.com/zerodte/execd/internal/server/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
}

// Dependencies bundles the domain ports the health/status endpoints read
// from. All are required.
type Dependencies struct {
	Queue    domain.Queue
	RTConfig domain.RuntimeConfigStore
	Broker   domain.BrokerGateway
}

// Server is the headless ops HTTP server: liveness and runtime status only,
// no trading surface.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates a Server with GET /healthz and GET /status registered.
func New(cfg Config, deps Dependencies, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	health := handler.NewHealthHandler(deps.Queue, deps.RTConfig, deps.Broker, logger)
	status := handler.NewStatusHandler(deps.RTConfig, deps.Queue)

	mux.HandleFunc("GET /healthz", health.HealthCheck)
	mux.HandleFunc("GET /status", status.GetStatus)

	var h http.Handler = mux
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
