// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/nbgirder/internal/api"
	"github.com/starford/nbgirder/internal/contents"
	"github.com/starford/nbgirder/internal/girder"
	"github.com/starford/nbgirder/internal/importer"
	"github.com/starford/nbgirder/internal/mcpserver"
	"github.com/starford/nbgirder/internal/sse"
	"github.com/starford/nbgirder/internal/syncstate"
)

var errConfigRequired = errors.New("config is required")

func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)
	return logger
}

// newContents connects to Girder and resolves the contents root.
func newContents(ctx context.Context, cfg *Config, logger *slog.Logger) (*contents.Manager, error) {
	client, err := girder.New(ctx, girder.Config{
		APIURL:            cfg.Girder.APIURL,
		APIKey:            cfg.Girder.APIKey,
		Token:             cfg.Girder.Token,
		RequestsPerSecond: cfg.Girder.RequestsPerSecond,
		Burst:             cfg.Girder.Burst,
		Timeout:           cfg.Girder.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("init girder client: %w", err)
	}
	mgr, err := contents.New(ctx, client, contents.Options{
		Root:                cfg.Girder.Root,
		AllowNonEmptyDelete: cfg.Contents.AllowNonEmptyDelete,
		Logger:              logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init contents: %w", err)
	}
	return mgr, nil
}

// newImporter opens the import state and builds an importer writing through mgr.
// The caller closes the returned state.
func newImporter(cfg *Config, mgr *contents.Manager, logger *slog.Logger, cb importer.EventCallback) (*importer.Importer, *syncstate.DB, error) {
	state, err := syncstate.Open(cfg.Import.StatePath)
	if err != nil {
		return nil, nil, fmt.Errorf("init import state: %w", err)
	}
	im, err := importer.New(mgr, state, importer.Options{
		Dir:      cfg.Import.Dir,
		Target:   cfg.Import.Target,
		Logger:   logger,
		OnChange: cb,
	})
	if err != nil {
		state.Close()
		return nil, nil, err
	}
	return im, state, nil
}

// Run starts the HTTP server with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config

	logger := newLogger(os.Stdout, cfg.App.LogLevel)
	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("girder_api_url", cfg.Girder.APIURL),
		slog.String("girder_root", cfg.Girder.Root),
		slog.String("auth_mode", cfg.Auth.Mode),
		slog.String("log_level", cfg.App.LogLevel.String()))

	mgr, err := newContents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("Contents root resolved", slog.String("root", mgr.Root()))

	// SSE broker.
	broker := sse.NewBroker(cfg.Events.TreeThrottle)
	defer broker.Close()

	handler := api.NewHandler(mgr, broker)
	apiRouter := api.NewRouter(handler, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(api.CORS(cfg.App.HTTP.CORSOrigins))

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if ok, err := mgr.DirExists(r.Context(), ""); err != nil || !ok {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"girder unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	// Mirror a local directory into the tree and announce its changes over SSE.
	if cfg.Import.Enabled() {
		im, state, err := newImporter(cfg, mgr, logger, func(kind, path string) {
			broker.PublishChange(kind, path, "")
		})
		if err != nil {
			return err
		}
		defer state.Close()

		if _, err := im.Sync(ctx); err != nil {
			logger.Warn("initial import failed", slog.String("error", err.Error()))
		}
		if cfg.Import.Watch {
			g.Go(func() error {
				return im.Watch(gCtx)
			})
		}
	}

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		waitForShutdown(gCtx, logger)

		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the contents tree as MCP tools over stdio. Logs go to stderr
// because stdout carries the protocol.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(os.Stderr, cfg.App.LogLevel)

	mgr, err := newContents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	logger.Info("MCP server starting", slog.String("root", mgr.Root()), slog.String("version", app.version))
	return mcpserver.New(mgr, app.version).ServeStdio()
}

// RunImport mirrors the configured import directory once, or keeps watching it
// when import.watch is set.
func RunImport(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	cfg := app.config
	logger := newLogger(os.Stdout, cfg.App.LogLevel)

	if !cfg.Import.Enabled() {
		return fmt.Errorf("import.dir is not configured")
	}
	mgr, err := newContents(ctx, cfg, logger)
	if err != nil {
		return err
	}
	im, state, err := newImporter(cfg, mgr, logger, nil)
	if err != nil {
		return err
	}
	defer state.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		res, err := im.Sync(gCtx)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		if res.Failed > 0 {
			logger.Warn("import finished with failures", slog.Int("failed", res.Failed))
		}
		if !cfg.Import.Watch {
			return nil
		}
		return im.Watch(gCtx)
	})
	g.Go(func() error {
		waitForShutdown(gCtx, logger)
		cancel()
		return nil
	})
	return g.Wait()
}

// waitForShutdown blocks until SIGINT/SIGTERM or ctx is done.
func waitForShutdown(ctx context.Context, logger *slog.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case sig := <-quit:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, initiating shutdown")
	}
}
