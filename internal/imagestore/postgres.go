package imagestore

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore keeps image bytes in the images table, next to the jobs
// that reference them.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Put(ctx context.Context, img Image) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO images (job_id, content_type, data) VALUES ($1, $2, $3)`,
		img.JobID, img.ContentType, img.Data)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrAlreadyExists
		}
		return fmt.Errorf("put image: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, jobID uuid.UUID) (*Image, error) {
	img := Image{JobID: jobID}
	err := s.pool.QueryRow(ctx,
		`SELECT content_type, data FROM images WHERE job_id = $1`, jobID,
	).Scan(&img.ContentType, &img.Data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}
	return &img, nil
}

func (s *PostgresStore) Delete(ctx context.Context, jobID uuid.UUID) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM images WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	return nil
}

var _ Store = (*PostgresStore)(nil)
