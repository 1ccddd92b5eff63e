package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/dogwatch/pkg/models"
)

var ErrNotFound = errors.New("resource not found")
var ErrDuplicateKey = errors.New("duplicate key violation")

// Store is the job data access interface. All job persistence goes through here.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job *models.Job) error
	GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error)
	// FinalizeJob moves a PENDING job to a terminal status in a single
	// conditional update. It reports false without error when the job is
	// no longer PENDING (or does not exist), so duplicate executions are no-ops.
	FinalizeJob(ctx context.Context, id uuid.UUID, status models.JobStatus, result *bool) (bool, error)
	ListStalePending(ctx context.Context, filter StaleFilter) ([]*models.Job, error)
}

// StaleFilter selects PENDING jobs created before a cutoff.
type StaleFilter struct {
	OlderThan time.Time
	Limit     int
}
