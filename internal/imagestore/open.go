package imagestore

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kiranshivaraju/dogwatch/internal/config"
)

// Open returns the image store selected by cfg.Backend. pool is only used by
// the postgres backend.
func Open(cfg config.StorageConfig, pool *pgxpool.Pool) (Store, error) {
	switch cfg.Backend {
	case config.StorageBackendPostgres:
		return NewPostgresStore(pool), nil
	case config.StorageBackendDisk:
		disk, err := NewDiskStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return disk, nil
	default:
		return nil, fmt.Errorf("unknown image store %q", cfg.Backend)
	}
}
