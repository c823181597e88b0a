package jobstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FakeStore is an in-memory implementation of the job store's operations,
// used by component and engine tests in place of a live Postgres instance.
type FakeStore struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*Job
}

// NewFakeStore builds an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{jobs: make(map[uuid.UUID]*Job)}
}

func clone(j *Job) Job { return *j }

func (f *FakeStore) Enqueue(_ context.Context, principalID, payloadRef string) (Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	position := f.queuedCountLocked() + 1
	job := &Job{
		ID:                   uuid.New(),
		PrincipalID:          principalID,
		PayloadRef:           payloadRef,
		Status:               StatusQueued,
		Position:             position,
		CreatedAt:            time.Now(),
		EstimatedWaitSeconds: EstimatedWait(position),
	}
	f.jobs[job.ID] = job
	return clone(job), nil
}

func (f *FakeStore) queuedCountLocked() int {
	n := 0
	for _, j := range f.jobs {
		if j.Status == StatusQueued {
			n++
		}
	}
	return n
}

func (f *FakeStore) queuedSortedLocked() []*Job {
	var queued []*Job
	for _, j := range f.jobs {
		if j.Status == StatusQueued {
			queued = append(queued, j)
		}
	}
	sort.Slice(queued, func(i, k int) bool { return queued[i].CreatedAt.Before(queued[k].CreatedAt) })
	return queued
}

func (f *FakeStore) PeekNext(_ context.Context) (Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	queued := f.queuedSortedLocked()
	if len(queued) == 0 {
		return Job{}, ErrNotFound
	}
	return clone(queued[0]), nil
}

func (f *FakeStore) ClaimNext(_ context.Context) (Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for _, j := range f.jobs {
		if j.Status == StatusProcessing {
			return Job{}, ErrNoJobAvailable
		}
	}

	queued := f.queuedSortedLocked()
	if len(queued) == 0 {
		return Job{}, ErrNoJobAvailable
	}

	job := queued[0]
	now := time.Now()
	job.Status = StatusProcessing
	job.StartedAt = &now
	job.Position = 0
	job.EstimatedWaitSeconds = 0
	return clone(job), nil
}

func (f *FakeStore) CompleteSuccess(_ context.Context, jobID uuid.UUID, result json.RawMessage, processingSeconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[jobID]
	if !ok || job.Status != StatusProcessing {
		return ErrNotFound
	}
	now := time.Now()
	job.Status = StatusCompleted
	job.CompletedAt = &now
	job.Result = result
	job.ProcessingSeconds = &processingSeconds
	return nil
}

func (f *FakeStore) CompleteFailure(_ context.Context, jobID uuid.UUID, errorKind, errorMessage string, processingSeconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[jobID]
	if !ok || job.Status != StatusProcessing {
		return ErrNotFound
	}
	now := time.Now()
	job.Status = StatusFailed
	job.CompletedAt = &now
	job.ErrorKind = errorKind
	job.ErrorMessage = errorMessage
	job.ProcessingSeconds = &processingSeconds
	return nil
}

func (f *FakeStore) Cancel(_ context.Context, jobID uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	job, ok := f.jobs[jobID]
	if !ok || job.Status != StatusQueued {
		return ErrNotQueued
	}
	now := time.Now()
	job.Status = StatusCancelled
	job.CompletedAt = &now
	return nil
}

func (f *FakeStore) Get(_ context.Context, jobID uuid.UUID) (Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[jobID]
	if !ok {
		return Job{}, ErrNotFound
	}
	return clone(job), nil
}

func (f *FakeStore) RecomputePositions(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, j := range f.queuedSortedLocked() {
		position := i + 1
		j.Position = position
		j.EstimatedWaitSeconds = EstimatedWait(position)
	}
	return nil
}

func (f *FakeStore) SweepTerminal(_ context.Context, retention time.Duration) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().Add(-retention)
	removed := 0
	for id, j := range f.jobs {
		if (j.Status == StatusCompleted || j.Status == StatusFailed || j.Status == StatusCancelled) &&
			j.CompletedAt != nil && !j.CompletedAt.After(cutoff) {
			delete(f.jobs, id)
			removed++
		}
	}
	return removed, nil
}

func (f *FakeStore) RecoverInterrupted(_ context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	now := time.Now()
	n := 0
	for _, j := range f.jobs {
		if j.Status == StatusProcessing {
			j.Status = StatusFailed
			j.CompletedAt = &now
			j.ErrorKind = "unknown"
			j.ErrorMessage = "Interrupted; please retry"
			n++
		}
	}
	return n, nil
}
