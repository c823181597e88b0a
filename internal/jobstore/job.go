// Package jobstore implements the durable job queue: enqueue, single-flight
// claim, completion, cancellation, and position bookkeeping for extraction
// jobs.
package jobstore

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Status is a job's lifecycle state.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Job is a single extraction request and its lifecycle state.
type Job struct {
	ID                   uuid.UUID
	PrincipalID          string
	PayloadRef           string
	Status               Status
	Position             int // 0 once claimed; a cancelled job keeps its last queued position
	CreatedAt            time.Time
	StartedAt            *time.Time
	CompletedAt          *time.Time
	Result               json.RawMessage
	ErrorKind            string
	ErrorMessage         string
	ProcessingSeconds    *float64
	EstimatedWaitSeconds int
}

// EstimatedWait computes the spec's wait estimate for a given queue position:
// max(60, 120*position) seconds.
func EstimatedWait(position int) int {
	est := 120 * position
	if est < 60 {
		return 60
	}
	return est
}
