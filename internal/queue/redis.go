package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultVisibilityTimeout = 5 * time.Minute

// Each stored entry is "<attempt>|<json message>". The attempt prefix keeps a
// redelivered entry distinct from the one still held by a slow consumer, so a
// late Ack from that consumer cannot remove the new lease.

var dequeueScript = redis.NewScript(`
local msg = redis.call('RPOPLPUSH', KEYS[1], KEYS[2])
if not msg then
  return false
end
redis.call('ZADD', KEYS[3], ARGV[1], msg)
return msg
`)

var ackScript = redis.NewScript(`
local removed = redis.call('LREM', KEYS[1], 1, ARGV[1])
redis.call('ZREM', KEYS[2], ARGV[1])
return removed
`)

var requeueScript = redis.NewScript(`
local expired = redis.call('ZRANGEBYSCORE', KEYS[3], '-inf', ARGV[1], 'LIMIT', 0, tonumber(ARGV[2]))
for _, msg in ipairs(expired) do
  redis.call('ZREM', KEYS[3], msg)
  redis.call('LREM', KEYS[2], 1, msg)
  local attempt, body = string.match(msg, '^(%d+)|(.*)$')
  if attempt then
    redis.call('RPUSH', KEYS[1], (tonumber(attempt) + 1) .. '|' .. body)
  end
end
return #expired
`)

// Options configures a RedisQueue.
type Options struct {
	Name              string
	VisibilityTimeout time.Duration
}

// RedisQueue implements Queue with a ready list, an in-flight list and a
// sorted set of lease deadlines.
type RedisQueue struct {
	client        *redis.Client
	readyKey      string
	processingKey string
	leaseKey      string
	visibility    time.Duration
	now           func() time.Time
}

// NewRedisQueue creates a RedisQueue from a Redis URL.
func NewRedisQueue(redisURL string, opts Options) (*RedisQueue, error) {
	redisOpts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return newRedisQueue(redis.NewClient(redisOpts), opts), nil
}

func newRedisQueue(client *redis.Client, opts Options) *RedisQueue {
	name := opts.Name
	if name == "" {
		name = "default"
	}
	visibility := opts.VisibilityTimeout
	if visibility <= 0 {
		visibility = defaultVisibilityTimeout
	}
	return &RedisQueue{
		client:        client,
		readyKey:      ReadyKey(name),
		processingKey: ProcessingKey(name),
		leaseKey:      LeaseKey(name),
		visibility:    visibility,
		now:           time.Now,
	}
}

func (q *RedisQueue) Ping(ctx context.Context) error {
	return q.client.Ping(ctx).Err()
}

// Close releases the underlying Redis connection pool.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}

func (q *RedisQueue) Enqueue(ctx context.Context, jobID uuid.UUID) error {
	msg := Message{
		ID:         uuid.New(),
		JobID:      jobID,
		EnqueuedAt: q.now().UTC(),
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	if err := q.client.LPush(ctx, q.readyKey, encodeEntry(1, body)).Err(); err != nil {
		return fmt.Errorf("enqueue job %s: %w", jobID, err)
	}
	return nil
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Delivery, error) {
	deadline := q.now().Add(q.visibility)
	raw, err := dequeueScript.Run(ctx, q.client,
		[]string{q.readyKey, q.processingKey, q.leaseKey},
		deadline.UnixMilli(),
	).Text()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoMessages
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue: %w", err)
	}

	attempt, msg, err := decodeEntry(raw)
	if err != nil {
		// Drop undecodable entries so they cannot wedge the queue.
		_ = ackScript.Run(ctx, q.client, []string{q.processingKey, q.leaseKey}, raw).Err()
		return nil, fmt.Errorf("decode message %q: %w", raw, err)
	}

	return &Delivery{
		Message:  msg,
		Attempt:  attempt,
		Deadline: deadline,
		raw:      raw,
	}, nil
}

func (q *RedisQueue) Ack(ctx context.Context, d *Delivery) error {
	if d == nil || d.raw == "" {
		return errors.New("ack: delivery was not issued by this queue")
	}
	if err := ackScript.Run(ctx, q.client, []string{q.processingKey, q.leaseKey}, d.raw).Err(); err != nil {
		return fmt.Errorf("ack job %s: %w", d.Message.JobID, err)
	}
	return nil
}

func (q *RedisQueue) RequeueExpired(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	n, err := requeueScript.Run(ctx, q.client,
		[]string{q.readyKey, q.processingKey, q.leaseKey},
		q.now().UnixMilli(), limit,
	).Int()
	if err != nil {
		return 0, fmt.Errorf("requeue expired: %w", err)
	}
	return n, nil
}

func (q *RedisQueue) Stats(ctx context.Context) (Stats, error) {
	pipe := q.client.Pipeline()
	ready := pipe.LLen(ctx, q.readyKey)
	inFlight := pipe.ZCard(ctx, q.leaseKey)
	if _, err := pipe.Exec(ctx); err != nil {
		return Stats{}, fmt.Errorf("queue stats: %w", err)
	}
	return Stats{Ready: ready.Val(), InFlight: inFlight.Val()}, nil
}

func encodeEntry(attempt int, body []byte) string {
	return strconv.Itoa(attempt) + "|" + string(body)
}

func decodeEntry(raw string) (int, Message, error) {
	prefix, body, ok := strings.Cut(raw, "|")
	if !ok {
		return 0, Message{}, errors.New("missing attempt prefix")
	}
	attempt, err := strconv.Atoi(prefix)
	if err != nil {
		return 0, Message{}, fmt.Errorf("parse attempt: %w", err)
	}
	var msg Message
	if err := json.Unmarshal([]byte(body), &msg); err != nil {
		return 0, Message{}, err
	}
	return attempt, msg, nil
}

// Compile-time check that RedisQueue implements Queue.
var _ Queue = (*RedisQueue)(nil)
