// Package main is the entrypoint for the dogwatch prediction API server.
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

	"github.com/kiranshivaraju/dogwatch/internal/api"
	"github.com/kiranshivaraju/dogwatch/internal/api/handler"
	mw "github.com/kiranshivaraju/dogwatch/internal/api/middleware"
	"github.com/kiranshivaraju/dogwatch/internal/api/response"
	"github.com/kiranshivaraju/dogwatch/internal/cache"
	"github.com/kiranshivaraju/dogwatch/internal/config"
	"github.com/kiranshivaraju/dogwatch/internal/imagestore"
	"github.com/kiranshivaraju/dogwatch/internal/prediction"
	"github.com/kiranshivaraju/dogwatch/internal/queue"
	"github.com/kiranshivaraju/dogwatch/internal/store"
)

const shutdownTimeout = 30 * time.Second

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
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "env", cfg.Server.Env, "image_store", cfg.Storage.Backend)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Server.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Redis cache and work queue
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	jobQueue, err := queue.NewRedisQueue(cfg.Redis.URL, queue.Options{
		Name:              cfg.Queue.Name,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
	})
	if err != nil {
		return fmt.Errorf("create job queue: %w", err)
	}
	defer jobQueue.Close()

	// 5. Stores and service
	images, err := imagestore.Open(cfg.Storage, pool)
	if err != nil {
		return fmt.Errorf("create image store: %w", err)
	}
	pgStore := store.NewPostgresStore(pool)
	svc := prediction.NewService(pgStore, images, jobQueue, redisCache)

	// 6. Build router with dependencies
	var rateLimit *mw.RateLimit
	if cfg.RateLimit.RequestsPerMinute > 0 {
		rateLimit = mw.NewRateLimit(redisCache, cfg.RateLimit.RequestsPerMinute)
	}

	router := api.NewRouter(api.Dependencies{
		RateLimit:     rateLimit,
		HealthHandler: healthHandler(pgStore, redisCache),
		SubmitHandler: handler.NewSubmitHandler(svc, cfg.Server.MaxUploadBytes),
		StatusHandler: handler.NewStatusHandler(svc),
	})

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
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

	slog.Info("server stopped gracefully")
	return nil
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and redis connectivity.
func healthHandler(db, redis pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"redis":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := redis.Ping(r.Context()); err != nil {
			checks["redis"] = "degraded"
		}

		if checks["database"] != "ok" || checks["redis"] != "ok" {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
