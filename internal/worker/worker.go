// Package worker classifies queued images and records the terminal job state.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/dogwatch/internal/imagestore"
	"github.com/kiranshivaraju/dogwatch/internal/store"
	"github.com/kiranshivaraju/dogwatch/pkg/models"
)

// TerminalCache receives the final view of a job once it is written.
type TerminalCache interface {
	SetPrediction(ctx context.Context, job *models.Job, ttl time.Duration) error
}

// Options configures a Worker.
type Options struct {
	Store      store.Store
	Images     imagestore.Store
	Classifier models.Classifier
	Cache      TerminalCache // optional
	CacheTTL   time.Duration
	Logger     *slog.Logger
}

// Worker handles one job at a time. It is safe to share between goroutines.
type Worker struct {
	store      store.Store
	images     imagestore.Store
	classifier models.Classifier
	cache      TerminalCache
	cacheTTL   time.Duration
	logger     *slog.Logger
}

// New validates opts and returns a Worker.
func New(opts Options) (*Worker, error) {
	if opts.Store == nil {
		return nil, errors.New("worker: store is required")
	}
	if opts.Images == nil {
		return nil, errors.New("worker: image store is required")
	}
	if opts.Classifier == nil {
		return nil, errors.New("worker: classifier is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &Worker{
		store:      opts.Store,
		images:     opts.Images,
		classifier: opts.Classifier,
		cache:      opts.Cache,
		cacheTTL:   ttl,
		logger:     logger,
	}, nil
}

// Handle processes the job referenced by one queue message. A nil return
// means the message is finished with and may be acknowledged. A non-nil
// return means nothing durable was recorded and the message should be
// redelivered.
func (w *Worker) Handle(ctx context.Context, jobID uuid.UUID) error {
	job, err := w.store.GetJob(ctx, jobID)
	if errors.Is(err, store.ErrNotFound) {
		w.logger.WarnContext(ctx, "job not found, discarding message", "job_id", jobID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("loading job %s: %w", jobID, err)
	}

	if job.Status.IsTerminal() {
		w.logger.InfoContext(ctx, "job already terminal, discarding message",
			"job_id", jobID,
			"status", job.Status,
		)
		return nil
	}

	start := time.Now()
	hasDog, err := w.classify(ctx, jobID)
	if err != nil {
		w.logger.ErrorContext(ctx, "prediction failed",
			"job_id", jobID,
			"error", err,
			"elapsed", time.Since(start),
		)
		return w.finalize(ctx, jobID, models.JobStatusError, nil)
	}

	w.logger.InfoContext(ctx, "prediction complete",
		"job_id", jobID,
		"has_dog", hasDog,
		"elapsed", time.Since(start),
	)

	if derr := w.finalize(ctx, jobID, models.JobStatusDone, &hasDog); derr != nil {
		w.logger.ErrorContext(ctx, "failed to record result, marking job as error",
			"job_id", jobID,
			"error", derr,
		)
		return w.finalize(ctx, jobID, models.JobStatusError, nil)
	}
	return nil
}

// classify loads the image and runs the classifier. A panic in the
// classifier is reported as an error so the job still reaches ERROR.
func (w *Worker) classify(ctx context.Context, jobID uuid.UUID) (hasDog bool, err error) {
	img, err := w.images.Get(ctx, jobID)
	if err != nil {
		return false, fmt.Errorf("loading image: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("classifier %s panicked: %v", w.classifier.Name(), r)
		}
	}()

	result, err := w.classifier.Classify(ctx, img.Data)
	if err != nil {
		return false, fmt.Errorf("classifier %s: %w", w.classifier.Name(), err)
	}
	return result.HasDog, nil
}

func (w *Worker) finalize(ctx context.Context, jobID uuid.UUID, status models.JobStatus, result *bool) error {
	applied, err := w.store.FinalizeJob(ctx, jobID, status, result)
	if err != nil {
		return fmt.Errorf("finalizing job %s as %s: %w", jobID, status, err)
	}
	if !applied {
		w.logger.InfoContext(ctx, "job finalized by another delivery, result discarded",
			"job_id", jobID,
			"status", status,
		)
		return nil
	}

	w.logger.InfoContext(ctx, "job finalized", "job_id", jobID, "status", status)
	w.cacheTerminal(ctx, jobID)
	return nil
}

func (w *Worker) cacheTerminal(ctx context.Context, jobID uuid.UUID) {
	if w.cache == nil {
		return
	}
	job, err := w.store.GetJob(ctx, jobID)
	if err != nil {
		w.logger.DebugContext(ctx, "skipping prediction cache", "job_id", jobID, "error", err)
		return
	}
	if err := w.cache.SetPrediction(ctx, job, w.cacheTTL); err != nil {
		w.logger.DebugContext(ctx, "prediction cache write failed", "job_id", jobID, "error", err)
	}
}
