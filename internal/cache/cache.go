package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/dogwatch/pkg/models"
	"github.com/redis/go-redis/v9"
)

// ErrNotTerminal is returned when a caller tries to cache a job that can still change.
var ErrNotTerminal = errors.New("only terminal predictions may be cached")

// Cache is the caching interface. All cache operations go through here.
// Implementations must be safe for concurrent use.
type Cache interface {
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Ping(ctx context.Context) error
	SetPrediction(ctx context.Context, job *models.Job, ttl time.Duration) error
	GetPrediction(ctx context.Context, jobID uuid.UUID) (*models.Job, bool, error)
	IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error)
}

// RedisCache implements the Cache interface using go-redis/v9.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache creates a new RedisCache from a Redis URL.
func NewRedisCache(redisURL string) (*RedisCache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisCache{client: redis.NewClient(opts)}, nil
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connection pool.
func (c *RedisCache) Close() error {
	return c.client.Close()
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return val, true, nil
}

// SetPrediction stores the final view of a job. A terminal job never changes
// again, so a cached entry can only go stale by expiring.
func (c *RedisCache) SetPrediction(ctx context.Context, job *models.Job, ttl time.Duration) error {
	if job == nil || !job.Status.IsTerminal() {
		return ErrNotTerminal
	}
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("encode prediction %s: %w", job.ID, err)
	}
	return c.Set(ctx, PredictionKey(job.ID), data, ttl)
}

func (c *RedisCache) GetPrediction(ctx context.Context, jobID uuid.UUID) (*models.Job, bool, error) {
	data, found, err := c.Get(ctx, PredictionKey(jobID))
	if err != nil || !found {
		return nil, false, err
	}
	var job models.Job
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, false, fmt.Errorf("decode prediction %s: %w", jobID, err)
	}
	return &job, true, nil
}

func (c *RedisCache) IncrWithExpiry(ctx context.Context, key string, expiry time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, expiry)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

var _ Cache = (*RedisCache)(nil)
