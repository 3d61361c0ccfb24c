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

	"github.com/starford/tracelight/internal/api"
	"github.com/starford/tracelight/internal/health"
	"github.com/starford/tracelight/internal/index"
	"github.com/starford/tracelight/internal/linkstore"
	"github.com/starford/tracelight/internal/mcpserver"
	"github.com/starford/tracelight/internal/sse"
	"github.com/starford/tracelight/internal/storage"
	"github.com/starford/tracelight/internal/traceservice"
)

// core holds the components shared by the HTTP and MCP front ends.
type core struct {
	logger *slog.Logger
	store  storage.Provider
	db     *index.DB
	svc    *traceservice.Service
}

// newCore opens storage and the index, syncs the model directory and
// restores persisted links. Every link mutation is written back to the
// index and then handed to onLink, if set.
func newCore(cfg *Config, out io.Writer, onLink func(linkstore.ChangeEvent)) (*core, error) {
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("Configuration loaded",
		slog.String("http_address", cfg.App.HTTP.Address()),
		slog.String("model_path", cfg.Model.Path),
		slog.String("sqlite_path", cfg.SQLite.Path),
		slog.String("log_level", cfg.App.LogLevel.String()))

	if err := os.MkdirAll(cfg.Model.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create model dir: %w", err)
	}

	store, err := storage.NewFS(cfg.Model.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	db, err := index.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init index: %w", err)
	}

	if _, err := index.Sync(db, store, logger); err != nil {
		logger.Warn("initial sync failed", slog.String("error", err.Error()))
	}

	persisted, err := db.AllLinks()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load links: %w", err)
	}

	links := linkstore.New()
	links.Restore(persisted)
	links.OnChange(func(ev linkstore.ChangeEvent) {
		var err error
		if ev.Kind == linkstore.ChangeDeleted {
			err = db.DeleteLink(ev.Link.ID)
		} else {
			err = db.UpsertLink(ev.Link)
		}
		if err != nil {
			logger.Error("links: persist failed",
				slog.String("id", ev.Link.ID),
				slog.String("kind", string(ev.Kind)),
				slog.String("error", err.Error()))
		}
		if onLink != nil {
			onLink(ev)
		}
	})
	logger.Info("links: restored", slog.Int("count", len(persisted)))

	analyzer := health.New(health.WithOrphanExemptTypes(cfg.Health.ExcludeTypes...))

	return &core{
		logger: logger,
		store:  store,
		db:     db,
		svc:    traceservice.NewService(links, db, analyzer, logger),
	}, nil
}

// Run starts the application with the given options.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts, os.Stdout)
	if err != nil {
		return err
	}
	cfg := app.config

	broker := sse.NewBroker(cfg.Health.SSEThrottle)
	defer broker.Close()

	c, err := newCore(cfg, app.logOutput, func(ev linkstore.ChangeEvent) {
		broker.PublishLinkEvent(string(ev.Kind), ev.Link)
	})
	if err != nil {
		return err
	}
	defer c.db.Close()
	logger := c.logger

	docs := api.NewDocumentService(c.store, c.db, broker.PublishItemEvent)
	apiRouter := api.NewRouter(c.svc, cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker, docs)

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

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:    cfg.App.HTTP.Address(),
		Handler: r,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	if cfg.Model.Watch {
		g.Go(func() error {
			err := index.Watch(gCtx, c.db, c.store, cfg.Model.Path, logger, broker.PublishItemEvent)
			if err != nil {
				logger.Warn("watcher stopped", slog.String("error", err.Error()))
			}
			return nil
		})
	}

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

// RunMCP serves the MCP tools over stdio. Logs default to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts, os.Stderr)
	if err != nil {
		return err
	}

	c, err := newCore(app.config, app.logOutput, nil)
	if err != nil {
		return err
	}
	defer c.db.Close()

	errCh := make(chan error, 1)
	go func() {
		errCh <- mcpserver.New(c.svc, c.store, c.db).ServeStdio()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		return nil
	case <-ctx.Done():
		c.logger.Info("mcp: context cancelled")
		return nil
	}
}
