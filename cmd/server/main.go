// Package main is the entrypoint for the booktrans API server.
package main

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

	"github.com/google/uuid"
	"github.com/kiranshivaraju/booktrans/internal/ai"
	"github.com/kiranshivaraju/booktrans/internal/api"
	"github.com/kiranshivaraju/booktrans/internal/api/handler"
	mw "github.com/kiranshivaraju/booktrans/internal/api/middleware"
	"github.com/kiranshivaraju/booktrans/internal/cache"
	"github.com/kiranshivaraju/booktrans/internal/config"
	"github.com/kiranshivaraju/booktrans/internal/extract"
	"github.com/kiranshivaraju/booktrans/internal/render"
	"github.com/kiranshivaraju/booktrans/internal/store"
	"github.com/kiranshivaraju/booktrans/internal/translation"
	"github.com/kiranshivaraju/booktrans/internal/worker"
	"github.com/kiranshivaraju/booktrans/pkg/models"
)

const shutdownTimeout = 30 * time.Second

const restartedMessage = "server restarted before the job finished"

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	// 2. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           a.handler,
		ReadHeaderTimeout: 15 * time.Second,
		// Uploads and downloads can be large, so only idle connections are bounded.
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if err := a.service.Shutdown(shutdownCtx); err != nil {
		slog.Warn("jobs still running at shutdown", "error", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// app is the wired server. close releases connections in reverse order.
type app struct {
	store   store.Store
	cache   cache.Cache
	service *translation.Service
	handler http.Handler
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	ok := false
	defer func() {
		if !ok {
			a.close()
		}
	}()

	// Job store: Postgres when configured, memory otherwise
	if cfg.Database.URL != "" {
		pool, err := store.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connect database: %w", err)
		}
		a.closers = append(a.closers, pool.Close)
		slog.Info("database connected")

		if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
			return nil, fmt.Errorf("run migrations: %w", err)
		}
		slog.Info("database migrations applied")

		pg := store.NewPostgresStore(pool)
		if err := failUnfinished(ctx, pg, pg); err != nil {
			return nil, fmt.Errorf("recover unfinished jobs: %w", err)
		}
		a.store = pg
	} else {
		slog.Info("DATABASE_URL not set, keeping jobs in memory")
		a.store = store.NewMemoryStore()
	}

	// Cache: Redis when configured, memory otherwise
	if cfg.Redis.URL != "" {
		rc, err := cache.NewRedisCache(cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("create redis cache: %w", err)
		}
		a.closers = append(a.closers, func() { _ = rc.Close() })
		if err := rc.Ping(ctx); err != nil {
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		slog.Info("redis connected")
		a.cache = rc
	} else {
		mc := cache.NewMemoryCache(cache.WithMaxEntries(cfg.Redis.MemoryMaxEntries))
		stopSweep := sweepEvery(mc, time.Minute)
		a.closers = append(a.closers, stopSweep)
		a.cache = mc
	}

	// Translation provider
	provider, err := ai.NewProvider(cfg.AI)
	if err != nil {
		return nil, fmt.Errorf("create AI provider: %w", err)
	}
	client := ai.NewClientFromConfig(provider, cfg.AI, a.cache)
	slog.Info("AI provider initialized", "provider", client.Provider())

	layout := render.DefaultLayout()
	layout.ChapterLabel = cfg.Render.ChapterLabel
	layout.PDFFontPath = cfg.Render.PDFFontPath
	renderer := render.NewFileRenderer(cfg.Translation.OutputDir, layout)

	var dispatcher worker.Dispatcher
	if cfg.Worker.UseBackgroundTasks {
		dispatcher = worker.NewPool(cfg.Worker.Count, cfg.Worker.QueueSize)
		slog.Info("worker pool started", "workers", cfg.Worker.Count, "queue_size", cfg.Worker.QueueSize)
	} else {
		dispatcher = worker.NewDetached()
	}

	a.service = translation.NewService(a.store, client, renderer, dispatcher, translation.Options{
		ChunkSize:          cfg.Translation.ChunkSize,
		ChapterConcurrency: cfg.Translation.ChapterConcurrency,
		MaxChapters:        cfg.Translation.MaxChapters,
	})

	a.handler = api.NewRouter(api.Dependencies{
		Auth:        mw.NewAuth(cfg.Auth.APIKeyHash),
		RateLimit:   mw.NewRateLimit(a.cache, cfg.Server.RateLimitPerMinute),
		CORSOrigins: cfg.Server.CORSOrigins,

		HealthHandler:    handler.NewHealthHandler(a.store, a.cache),
		TranslateHandler: handler.NewTranslateHandler(a.service, cfg.Upload.MaxFileSize),
		UploadHandler:    handler.NewUploadPDFHandler(a.service, extract.NewPDFExtractor(), cfg.Upload.MaxFileSize),
		StatusHandler:    handler.NewStatusHandler(a.service),
		DownloadHandler:  handler.NewDownloadHandler(a.service),
		CancelHandler:    handler.NewCancelHandler(a.service),
	})
	if cfg.Auth.APIKeyHash == "" {
		slog.Warn("API_KEY_HASH not set, translation endpoints are unauthenticated")
	}

	ok = true
	return a, nil
}

type unfinishedLister interface {
	ListUnfinished(ctx context.Context) ([]uuid.UUID, error)
}

// failUnfinished marks jobs orphaned by a previous process as failed. Their
// workers died with it, so they would otherwise poll as running forever.
func failUnfinished(ctx context.Context, l unfinishedLister, st store.Store) error {
	ids, err := l.ListUnfinished(ctx)
	if err != nil {
		return err
	}
	for _, id := range ids {
		_, err := st.UpdateJob(ctx, id,
			store.WithStatus(models.JobStatusFailed),
			store.WithErrorMessage(restartedMessage),
			store.WithMessage("Job interrupted"))
		if err != nil && !errors.Is(err, store.ErrTerminal) {
			return fmt.Errorf("fail job %s: %w", id, err)
		}
	}
	if len(ids) > 0 {
		slog.Warn("failed jobs left unfinished by a previous run", "count", len(ids))
	}
	return nil
}

// sweepEvery evicts expired memory cache entries until the returned func is called.
func sweepEvery(c *cache.MemoryCache, every time.Duration) func() {
	t := time.NewTicker(every)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-t.C:
				c.Sweep()
			case <-done:
				return
			}
		}
	}()
	return func() {
		t.Stop()
		close(done)
	}
}
