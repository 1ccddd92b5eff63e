package models

import (
	"time"

	"github.com/google/uuid"
)

// JobStatus is the lifecycle state of an image prediction job.
type JobStatus string

const (
	JobStatusPending JobStatus = "PENDING"
	JobStatusDone    JobStatus = "DONE"
	JobStatusError   JobStatus = "ERROR"
)

// IsTerminal reports whether no further transitions are allowed from s.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobStatusPending, JobStatusDone, JobStatusError:
		return true
	}
	return false
}

// Job tracks one uploaded image through classification. The API returns the
// job on POST /image_prediction; the client polls GET /image_prediction/{id}
// until status is DONE or ERROR.
//
// Result is non-nil if and only if Status is DONE.
type Job struct {
	ID        uuid.UUID `db:"id"         json:"id"`
	Status    JobStatus `db:"status"     json:"status"`
	Result    *bool     `db:"result"     json:"result"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// Consistent reports whether the status/result pair is well formed.
func (j *Job) Consistent() bool {
	if j.Status == JobStatusDone {
		return j.Result != nil
	}
	return j.Result == nil
}
