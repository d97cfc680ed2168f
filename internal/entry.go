// Package internal provides the application wiring: configuration, logging,
// cache sessions and the long-running serve and MCP modes.
package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/ctxcache/internal/api"
	"github.com/starford/ctxcache/internal/docservice"
	"github.com/starford/ctxcache/internal/index"
	"github.com/starford/ctxcache/internal/mcpserver"
	"github.com/starford/ctxcache/internal/sse"
)

func newApplication(opts []Option) (*application, func() error, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, nil, fmt.Errorf("config is required")
	}
	closeFn := func() error { return nil }
	if app.logger == nil {
		app.logger, closeFn = NewLogger(app.config.App, os.Stderr)
	}
	return app, closeFn, nil
}

// NewHTTPHandler builds the HTTP surface: health endpoints and the API
// mounted under /api.
func NewHTTPHandler(cfg *Config, svc *docservice.Service, broker *sse.Broker) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	health := func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}
	r.Get("/health/live", health)
	r.Get("/health/ready", health)

	var events http.Handler
	if broker != nil {
		events = broker
	}
	r.Mount("/api", api.NewRouter(svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, events))
	return r
}

// Run serves the HTTP API and watches the cache until ctx is cancelled or a
// shutdown signal arrives.
func Run(ctx context.Context, opts ...Option) error {
	app, closeLog, err := newApplication(opts)
	if err != nil {
		return err
	}
	defer closeLog()

	cfg := app.config
	logger := app.logger
	slog.SetDefault(logger)

	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	sess, err := OpenSession(cfg, logger, docservice.WithNotifier(broker))
	if err != nil {
		return err
	}
	defer sess.Close()
	svc := sess.Service

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("context_root", svc.Root()),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	// Initial index pass.
	if err := svc.Reindex(ctx); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           NewHTTPHandler(cfg, svc, broker),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := index.Watch(gCtx, sess.DB, svc.Store(), svc.Root(), logger, svc.HandleEvent); err != nil {
			logger.Warn("watcher stopped", slog.String("error", err.Error()))
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// ServeMCP runs the MCP server over stdio. Logs never go to stdout here.
func ServeMCP(_ context.Context, opts ...Option) error {
	app, closeLog, err := newApplication(opts)
	if err != nil {
		return err
	}
	defer closeLog()

	sess, err := OpenSession(app.config, app.logger)
	if err != nil {
		return err
	}
	defer sess.Close()

	app.logger.Info("MCP server starting", slog.String("context_root", sess.Service.Root()))
	return mcpserver.New(sess.Service).ServeStdio()
}
