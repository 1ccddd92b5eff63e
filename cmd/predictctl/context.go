package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/kiranshivaraju/dogwatch/internal/config"
	"github.com/kiranshivaraju/dogwatch/internal/queue"
	"github.com/kiranshivaraju/dogwatch/internal/store"
)

// commandContext lazily loads config and opens backends for subcommands.
// The open* hooks are replaced in tests.
type commandContext struct {
	configOnce sync.Once
	config     *config.Config
	configErr  error

	openStore func(ctx context.Context, cfg *config.Config) (store.Store, func(), error)
	openQueue func(cfg *config.Config) (queue.Queue, func(), error)
	migrate   func(cfg *config.Config) (uint, bool, error)
}

func newCommandContext() *commandContext {
	return &commandContext{
		openStore: openPostgresStore,
		openQueue: openRedisQueue,
		migrate:   runMigrations,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load()
	})
	return c.config, c.configErr
}

func (c *commandContext) withStore(ctx context.Context, fn func(store.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	s, closeFn, err := c.openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(s)
}

func (c *commandContext) withQueue(fn func(queue.Queue) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	q, closeFn, err := c.openQueue(cfg)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(q)
}

func openPostgresStore(ctx context.Context, cfg *config.Config) (store.Store, func(), error) {
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("connect database: %w", err)
	}
	return store.NewPostgresStore(pool), pool.Close, nil
}

func openRedisQueue(cfg *config.Config) (queue.Queue, func(), error) {
	q, err := queue.NewRedisQueue(cfg.Redis.URL, queue.Options{
		Name:              cfg.Queue.Name,
		VisibilityTimeout: cfg.Queue.VisibilityTimeout,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	return q, func() { _ = q.Close() }, nil
}

func runMigrations(cfg *config.Config) (uint, bool, error) {
	if err := store.RunMigrations(cfg.Database.URL, cfg.Server.MigrationsDir); err != nil {
		return 0, false, err
	}
	return store.MigrationVersion(cfg.Database.URL, cfg.Server.MigrationsDir)
}
