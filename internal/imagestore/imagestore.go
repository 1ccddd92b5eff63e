// Package imagestore persists uploaded image bytes addressed by job id.
// Images are written once at submission and read back by the worker.
package imagestore

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrNotFound      = errors.New("image not found")
	ErrAlreadyExists = errors.New("image already exists")
)

// Image is a stored upload.
type Image struct {
	JobID       uuid.UUID
	ContentType string
	Data        []byte
}

// Store is the image byte store. Implementations must be safe for concurrent use.
type Store interface {
	Put(ctx context.Context, img Image) error
	Get(ctx context.Context, jobID uuid.UUID) (*Image, error)
	// Delete removes the image for jobID. A missing image is not an error.
	Delete(ctx context.Context, jobID uuid.UUID) error
}
