// Package main is the entrypoint for the dogwatch prediction worker.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/kiranshivaraju/dogwatch/internal/cache"
	"github.com/kiranshivaraju/dogwatch/internal/classifier"
	"github.com/kiranshivaraju/dogwatch/internal/config"
	"github.com/kiranshivaraju/dogwatch/internal/imagestore"
	"github.com/kiranshivaraju/dogwatch/internal/monitor"
	"github.com/kiranshivaraju/dogwatch/internal/queue"
	"github.com/kiranshivaraju/dogwatch/internal/store"
	"github.com/kiranshivaraju/dogwatch/internal/worker"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("worker failed", "error", err)
		os.Exit(1)
	}
}

type readier interface {
	Ready(ctx context.Context) error
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	jobQueue, err := queue.NewRedisQueue(cfg.Redis.URL, queue.Options{
		Name:              cfg.Queue.Name,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
	})
	if err != nil {
		return fmt.Errorf("create job queue: %w", err)
	}
	defer jobQueue.Close()

	if err := jobQueue.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}

	images, err := imagestore.Open(cfg.Storage, pool)
	if err != nil {
		return fmt.Errorf("create image store: %w", err)
	}

	cls, err := classifier.NewClassifier(cfg.Classifier)
	if err != nil {
		return fmt.Errorf("create classifier: %w", err)
	}
	slog.Info("classifier initialized", "provider", cls.Name())
	if r, ok := cls.(readier); ok {
		if err := r.Ready(ctx); err != nil {
			slog.Warn("classifier not ready, jobs will fail until it is", "error", err)
		}
	}

	pgStore := store.NewPostgresStore(pool)

	w, err := worker.New(worker.Options{
		Store:      pgStore,
		Images:     images,
		Classifier: cls,
		Cache:      redisCache,
		CacheTTL:   cfg.Redis.CacheTerminalTTL,
		Logger:     slog.Default(),
	})
	if err != nil {
		return err
	}

	workers, err := worker.NewPool(worker.PoolOptions{
		Queue:        jobQueue,
		Handler:      w,
		Workers:      cfg.Queue.Workers,
		PollInterval: cfg.Queue.PollInterval,
		ReapInterval: cfg.Queue.ReapInterval,
		Logger:       slog.Default(),
	})
	if err != nil {
		return err
	}

	mon, err := monitor.New(monitor.Options{
		Store:      pgStore,
		StaleAfter: cfg.Monitor.StaleAfter,
		Interval:   cfg.Monitor.Interval,
		Logger:     slog.Default(),
	})
	if err != nil {
		return err
	}

	slog.Info("worker started", "workers", cfg.Queue.Workers, "queue", cfg.Queue.Name)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return workers.Run(gctx) })
	g.Go(func() error { return mon.Run(gctx) })

	if err := g.Wait(); err != nil {
		return err
	}
	slog.Info("worker stopped gracefully")
	return nil
}
