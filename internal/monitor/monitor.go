// Package monitor reports jobs that have sat in PENDING for too long.
//
// A job can be left PENDING when its queue message was never enqueued or was
// lost. The monitor only reports; it never changes job state.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kiranshivaraju/dogwatch/internal/store"
	"github.com/kiranshivaraju/dogwatch/pkg/models"
)

const defaultBatch = 100

// StaleLister is the subset of store.Store the monitor reads from.
type StaleLister interface {
	ListStalePending(ctx context.Context, filter store.StaleFilter) ([]*models.Job, error)
}

type Options struct {
	Store      StaleLister
	StaleAfter time.Duration
	Interval   time.Duration
	Batch      int
	Logger     *slog.Logger
}

type Monitor struct {
	store      StaleLister
	staleAfter time.Duration
	interval   time.Duration
	batch      int
	logger     *slog.Logger
	now        func() time.Time
}

func New(opts Options) (*Monitor, error) {
	if opts.Store == nil {
		return nil, errors.New("monitor: store is required")
	}
	m := &Monitor{
		store:      opts.Store,
		staleAfter: opts.StaleAfter,
		interval:   opts.Interval,
		batch:      opts.Batch,
		logger:     opts.Logger,
		now:        time.Now,
	}
	if m.staleAfter <= 0 {
		m.staleAfter = 15 * time.Minute
	}
	if m.interval <= 0 {
		m.interval = time.Minute
	}
	if m.batch <= 0 {
		m.batch = defaultBatch
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	return m, nil
}

// Sweep lists PENDING jobs older than the stale threshold and logs each one.
func (m *Monitor) Sweep(ctx context.Context) ([]*models.Job, error) {
	cutoff := m.now().Add(-m.staleAfter)
	jobs, err := m.store.ListStalePending(ctx, store.StaleFilter{OlderThan: cutoff, Limit: m.batch})
	if err != nil {
		return nil, fmt.Errorf("listing stale jobs: %w", err)
	}
	for _, job := range jobs {
		m.logger.WarnContext(ctx, "job stuck in pending",
			"job_id", job.ID,
			"created_at", job.CreatedAt,
			"age", m.now().Sub(job.CreatedAt).Round(time.Second),
		)
	}
	if len(jobs) > 0 {
		m.logger.WarnContext(ctx, "stale pending jobs found",
			"count", len(jobs),
			"stale_after", m.staleAfter,
		)
	}
	return jobs, nil
}

// Run sweeps every interval until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	m.logger.InfoContext(ctx, "starting stale job monitor",
		"stale_after", m.staleAfter,
		"interval", m.interval,
	)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil && ctx.Err() == nil {
				m.logger.ErrorContext(ctx, "stale job sweep failed", "error", err)
			}
		}
	}
}
