// Package internal provides the main application initialization and runtime logic.
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

	"github.com/starford/relaynote/internal/api"
	"github.com/starford/relaynote/internal/mcpserver"
	"github.com/starford/relaynote/internal/noteservice"
	"github.com/starford/relaynote/internal/relay"
	"github.com/starford/relaynote/internal/sse"
	"github.com/starford/relaynote/internal/syncer"
)

// syncControl triggers passes through the scheduler and reads state from
// the orchestrator.
type syncControl struct {
	scheduler *syncer.Scheduler
	orch      *syncer.Orchestrator
}

func (s syncControl) Trigger(opts syncer.PassOptions) { s.scheduler.Trigger(opts) }

func (s syncControl) Status() syncer.Status { return s.orch.Status() }

// Run starts the HTTP server, the sync scheduler and, when configured, the
// vault watcher. It returns after a shutdown signal or a fatal error.
func Run(ctx context.Context, opts ...Option) error {
	app := &application{}

	for _, opt := range opts {
		opt(app)
	}

	// SSE broker.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()

	c, err := app.setup(noteservice.WithNotifier(broker))
	if err != nil {
		return err
	}
	defer c.Close()

	cfg := app.config
	logger := c.logger

	scheduler := syncer.NewScheduler(c.orch, c.pool,
		syncer.WithInterval(cfg.Sync.Interval),
		syncer.WithProbeInterval(cfg.Sync.ProbeInterval),
		syncer.WithFullOnStart(cfg.Sync.FullOnStart),
		syncer.WithOnPass(broker.PublishSyncResult),
		syncer.WithSchedulerLogger(logger),
	)

	deps := api.Deps{
		Notes:  c.notes,
		Sync:   syncControl{scheduler: scheduler, orch: c.orch},
		Events: broker,
	}

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Vault.Enabled() {
		im, err := c.newImporter(cfg.Vault)
		if err != nil {
			return err
		}
		deps.Vault = im

		// Run initial import.
		if res, err := im.Sync(ctx); err != nil {
			logger.Warn("initial vault import failed", slog.String("error", err.Error()))
		} else {
			logger.Info("vault imported",
				slog.Int("imported", res.Imported),
				slog.Int("unchanged", res.Unchanged),
				slog.Int("removed", res.Removed))
		}

		if cfg.Vault.Watch {
			g.Go(func() error {
				if err := im.Watch(gCtx); err != nil {
					logger.Error("vault watcher stopped", slog.String("error", err.Error()))
				}
				return nil
			})
		}
	}

	apiRouter := api.NewRouter(deps, cfg.Auth.AuthEnabled(), cfg.Auth.Token)

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := c.db.Ping(); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"unavailable"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Mount API routes under /api.
	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	// Start sync scheduler.
	g.Go(func() error {
		return scheduler.Run(gCtx)
	})

	// Start HTTP server.
	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		waitForShutdown(gCtx, logger)

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}

		// Stops the scheduler and the watcher.
		return errShutdown
	})

	if err := g.Wait(); err != nil && !errors.Is(err, errShutdown) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

var errShutdown = errors.New("shutdown")

// waitForShutdown blocks until SIGINT, SIGTERM or ctx is done.
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

// SyncOnce imports the vault if one is configured and runs a single sync
// pass.
func SyncOnce(ctx context.Context, full bool, opts ...Option) (*syncer.Report, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}

	c, err := app.setup()
	if err != nil {
		return nil, err
	}
	defer c.Close()

	if app.config.Vault.Enabled() {
		im, err := c.newImporter(app.config.Vault)
		if err != nil {
			return nil, err
		}
		if _, err := im.Sync(ctx); err != nil {
			c.logger.Warn("vault import failed", slog.String("error", err.Error()))
		}
	}

	return c.orch.RunPass(ctx, syncer.PassOptions{Full: full})
}

// ServeMCP serves the MCP tools over stdio until stdin closes.
func ServeMCP(_ context.Context, opts ...Option) error {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	// stdout carries the MCP protocol.
	if app.logger == nil && app.config != nil {
		app.logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
			Level: app.config.App.LogLevel,
		}))
	}

	c, err := app.setup()
	if err != nil {
		return err
	}
	defer c.Close()

	return mcpserver.New(c.notes, c.orch).ServeStdio()
}

// ServeRelay runs an in-memory development relay on addr.
func ServeRelay(ctx context.Context, addr string, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Handle("/", relay.NewHandler(relay.NewMemory(), logger))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting relay", slog.String("address", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		waitForShutdown(gCtx, logger)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
