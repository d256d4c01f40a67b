// Package app wires together execd's stores, caches, blob storage, broker
// and market-data clients, and notification channels, then runs the
// pipeline orchestrator (and, when enabled, the health/status server) until
// the context is cancelled.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/zerodte/execd/internal/config"
	"github.com/zerodte/execd/internal/server"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions invoked in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the pipeline orchestrator and the
// optional health/status server, and blocks until ctx is cancelled or either
// one fails. The cleanup function from Wire is registered for Close; Run
// does not call it itself.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting execd", slog.String("log_level", a.cfg.LogLevel))

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return deps.Orchestrator.Run(ctx)
	})

	if a.cfg.Server.Enabled {
		srv := server.New(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
		}, server.Dependencies{
			Queue:    deps.Queue,
			RTConfig: deps.RTConfig,
			Broker:   deps.Broker,
		}, a.logger)

		g.Go(func() error {
			err := srv.Start()
			if ctx.Err() != nil || err == http.ErrServerClosed {
				return nil
			}
			return fmt.Errorf("server: %w", err)
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Pipeline.TaskDeadline.Duration)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	return g.Wait()
}

// Close tears down all resources in reverse registration order. Safe to call
// more than once; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down execd")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
