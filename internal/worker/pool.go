package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/dogwatch/internal/queue"
	"golang.org/x/sync/errgroup"
)

const reapBatch = 100

// Handler processes one job id. See Worker.Handle for the return contract.
type Handler interface {
	Handle(ctx context.Context, jobID uuid.UUID) error
}

// PoolOptions configures a Pool.
type PoolOptions struct {
	Queue        queue.Queue
	Handler      Handler
	Workers      int
	PollInterval time.Duration
	ReapInterval time.Duration
	Logger       *slog.Logger
}

// Pool runs concurrent consumers against a queue plus a reaper that returns
// expired leases to the ready list.
type Pool struct {
	queue        queue.Queue
	handler      Handler
	workers      int
	pollInterval time.Duration
	reapInterval time.Duration
	logger       *slog.Logger
}

// NewPool validates opts and returns a Pool.
func NewPool(opts PoolOptions) (*Pool, error) {
	if opts.Queue == nil {
		return nil, errors.New("worker pool: queue is required")
	}
	if opts.Handler == nil {
		return nil, errors.New("worker pool: handler is required")
	}
	p := &Pool{
		queue:        opts.Queue,
		handler:      opts.Handler,
		workers:      opts.Workers,
		pollInterval: opts.PollInterval,
		reapInterval: opts.ReapInterval,
		logger:       opts.Logger,
	}
	if p.workers <= 0 {
		p.workers = 1
	}
	if p.pollInterval <= 0 {
		p.pollInterval = time.Second
	}
	if p.reapInterval <= 0 {
		p.reapInterval = 30 * time.Second
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p, nil
}

// Run consumes until ctx is cancelled. In-flight jobs are allowed to finish.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.InfoContext(ctx, "starting worker pool",
		"workers", p.workers,
		"poll_interval", p.pollInterval,
		"reap_interval", p.reapInterval,
	)

	group, gctx := errgroup.WithContext(ctx)
	for range p.workers {
		group.Go(func() error { return p.consume(gctx) })
	}
	group.Go(func() error { return p.reap(gctx) })

	err := group.Wait()
	p.logger.Info("worker pool stopped")
	return err
}

func (p *Pool) consume(ctx context.Context) error {
	for ctx.Err() == nil {
		d, err := p.queue.Dequeue(ctx)
		switch {
		case err == nil:
			p.process(ctx, d)
		case errors.Is(err, queue.ErrNoMessages):
			if !sleep(ctx, p.pollInterval) {
				return nil
			}
		default:
			if ctx.Err() != nil {
				return nil
			}
			p.logger.ErrorContext(ctx, "dequeue failed", "error", err)
			if !sleep(ctx, p.pollInterval) {
				return nil
			}
		}
	}
	return nil
}

func (p *Pool) process(ctx context.Context, d *queue.Delivery) {
	// Shutdown must not abandon a job halfway through its terminal write.
	jobCtx := context.WithoutCancel(ctx)

	if err := p.handler.Handle(jobCtx, d.Message.JobID); err != nil {
		p.logger.WarnContext(ctx, "job left for redelivery",
			"job_id", d.Message.JobID,
			"attempt", d.Attempt,
			"error", err,
		)
		return
	}
	if err := p.queue.Ack(jobCtx, d); err != nil {
		p.logger.ErrorContext(ctx, "ack failed", "job_id", d.Message.JobID, "error", err)
	}
}

func (p *Pool) reap(ctx context.Context) error {
	ticker := time.NewTicker(p.reapInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := p.queue.RequeueExpired(ctx, reapBatch)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				p.logger.ErrorContext(ctx, "requeue expired leases failed", "error", err)
				continue
			}
			if n > 0 {
				p.logger.WarnContext(ctx, "requeued expired deliveries", "count", n)
			}
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
