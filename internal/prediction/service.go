// Package prediction accepts image uploads and answers status queries.
package prediction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/dogwatch/internal/imagestore"
	"github.com/kiranshivaraju/dogwatch/internal/store"
	"github.com/kiranshivaraju/dogwatch/pkg/models"
)

// Upload is one image as received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Enqueuer hands a job to the worker pool.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobID uuid.UUID) error
}

// PredictionCache holds terminal job views written by the worker.
type PredictionCache interface {
	GetPrediction(ctx context.Context, jobID uuid.UUID) (*models.Job, bool, error)
}

// Service implements submission and status lookup.
type Service struct {
	store  store.Store
	images imagestore.Store
	queue  Enqueuer
	cache  PredictionCache
	now    func() time.Time
}

// NewService creates a new Service. ca may be nil, in which case every
// status query goes to the store.
func NewService(st store.Store, images imagestore.Store, q Enqueuer, ca PredictionCache) *Service {
	return &Service{
		store:  st,
		images: images,
		queue:  q,
		cache:  ca,
		now:    time.Now,
	}
}

// Submit stores the image, records a PENDING job and queues it for
// classification. Each step completes before the next begins, so a queued
// message always refers to a job whose bytes and record already exist.
//
// A rejected upload is not assigned an id.
func (s *Service) Submit(ctx context.Context, up Upload) (*models.Job, error) {
	contentType, err := validateUpload(up)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	job := &models.Job{
		ID:        uuid.New(),
		Status:    models.JobStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.images.Put(ctx, imagestore.Image{
		JobID:       job.ID,
		ContentType: contentType,
		Data:        up.Data,
	}); err != nil {
		return nil, fmt.Errorf("%w: storing image: %v", ErrStorage, err)
	}

	if err := s.store.CreateJob(ctx, job); err != nil {
		// No job references the image, and the id is never issued.
		if derr := s.images.Delete(ctx, job.ID); derr != nil {
			slog.Error("failed to remove orphaned image",
				"job_id", job.ID,
				"error", derr,
			)
		}
		return nil, fmt.Errorf("%w: creating job: %v", ErrStorage, err)
	}

	if err := s.queue.Enqueue(ctx, job.ID); err != nil {
		// The job stays PENDING; the stale-pending monitor reports it.
		slog.Error("enqueue failed, job left pending",
			"job_id", job.ID,
			"error", err,
		)
		return nil, fmt.Errorf("%w: %v", ErrEnqueue, err)
	}

	slog.Info("prediction submitted",
		"job_id", job.ID,
		"content_type", contentType,
		"bytes", len(up.Data),
	)
	return job, nil
}

// GetStatus returns the current view of a job. Only terminal views are ever
// cached, and those never change, so a cache hit is as fresh as the store.
func (s *Service) GetStatus(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	if s.cache != nil {
		if job, found, err := s.cache.GetPrediction(ctx, id); err == nil && found && job.Status.IsTerminal() {
			return job, nil
		}
	}

	job, err := s.store.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("getting job %s: %w", id, err)
	}
	return job, nil
}

// InvalidTypeError reports an upload whose content type is not an image.
type InvalidTypeError struct {
	ContentType string
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("Invalid file type: %s", e.ContentType)
}

func (e *InvalidTypeError) Unwrap() error { return ErrInvalidInput }

func validateUpload(up Upload) (string, error) {
	if up.ContentType == "" {
		return "", &InvalidTypeError{ContentType: "unknown"}
	}
	mediaType, _, err := mime.ParseMediaType(up.ContentType)
	if err != nil || !strings.HasPrefix(mediaType, "image/") {
		return "", &InvalidTypeError{ContentType: up.ContentType}
	}
	if len(up.Data) == 0 {
		return "", fmt.Errorf("%w: empty image", ErrInvalidInput)
	}
	return mediaType, nil
}
