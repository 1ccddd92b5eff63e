// Package queue conveys "run job X" messages from the API to the worker pool.
//
// Delivery is at-least-once: a message stays leased to one consumer until it
// is acknowledged or its visibility timeout expires, after which it is handed
// out again. Consumers must tolerate duplicates.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNoMessages is returned by Dequeue when nothing is ready for delivery.
var ErrNoMessages = errors.New("no messages available")

// Message is the payload carried for one job.
type Message struct {
	ID         uuid.UUID `json:"id"`
	JobID      uuid.UUID `json:"job_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// Delivery is a leased message. It must be passed back to Ack once handled.
type Delivery struct {
	Message  Message
	Attempt  int
	Deadline time.Time

	raw string
}

// Stats is a point-in-time view of queue depth.
type Stats struct {
	Ready    int64
	InFlight int64
}

// Queue is the work queue interface. Implementations must be safe for concurrent use.
type Queue interface {
	Enqueue(ctx context.Context, jobID uuid.UUID) error
	Dequeue(ctx context.Context) (*Delivery, error)
	Ack(ctx context.Context, d *Delivery) error
	// RequeueExpired returns up to limit deliveries whose lease has expired
	// to the ready list and reports how many were moved.
	RequeueExpired(ctx context.Context, limit int) (int, error)
	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
}
