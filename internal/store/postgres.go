package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/dogwatch/pkg/models"
)

const defaultStaleLimit = 100

// PostgresStore implements the Store interface using pgx/v5.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgresStore.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Ping checks database connectivity.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) CreateJob(ctx context.Context, job *models.Job) error {
	if job.Status != models.JobStatusPending {
		return fmt.Errorf("create job: initial status must be %s, got %s", models.JobStatusPending, job.Status)
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO jobs (id, status, result, created_at, updated_at)
		 VALUES ($1, $2, NULL, $3, $4)`,
		job.ID, string(job.Status), job.CreatedAt, job.UpdatedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return ErrDuplicateKey
		}
		return fmt.Errorf("create job: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetJob(ctx context.Context, id uuid.UUID) (*models.Job, error) {
	var j models.Job
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT id, status, result, created_at, updated_at FROM jobs WHERE id = $1`, id,
	).Scan(&j.ID, &status, &j.Result, &j.CreatedAt, &j.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	j.Status = models.JobStatus(status)
	return &j, nil
}

func (s *PostgresStore) FinalizeJob(ctx context.Context, id uuid.UUID, status models.JobStatus, result *bool) (bool, error) {
	if !status.IsTerminal() {
		return false, fmt.Errorf("invalid job status transition: %s -> %s", models.JobStatusPending, status)
	}
	if (status == models.JobStatusDone) != (result != nil) {
		return false, fmt.Errorf("finalize job: result must be set only for %s", models.JobStatusDone)
	}

	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $2, result = $3, updated_at = $4
		 WHERE id = $1 AND status = 'PENDING'`,
		id, string(status), result, time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("finalize job: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PostgresStore) ListStalePending(ctx context.Context, filter StaleFilter) ([]*models.Job, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultStaleLimit
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, status, result, created_at, updated_at
		 FROM jobs WHERE status = 'PENDING' AND created_at < $1
		 ORDER BY created_at LIMIT $2`, filter.OlderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending jobs: %w", err)
	}
	defer rows.Close()

	jobs := []*models.Job{}
	for rows.Next() {
		var j models.Job
		var status string
		if err := rows.Scan(&j.ID, &status, &j.Result, &j.CreatedAt, &j.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		j.Status = models.JobStatus(status)
		jobs = append(jobs, &j)
	}
	return jobs, rows.Err()
}

// isDuplicateKeyError checks if a pgx error is a unique constraint violation.
func isDuplicateKeyError(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	return false
}
