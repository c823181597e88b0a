package jobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a job lookup misses.
var ErrNotFound = errors.New("jobstore: not found")

// ErrNotQueued is returned by Cancel when the job is no longer cancellable.
var ErrNotQueued = errors.New("jobstore: job is not in queued state")

// ErrNoJobAvailable is returned by ClaimNext when nothing is queued, or
// another job is already processing (single-flight).
var ErrNoJobAvailable = errors.New("jobstore: no job available to claim")

const jobColumns = `id, principal_id, payload_ref, status, position, created_at, started_at,
	completed_at, result, error_kind, error_message, processing_seconds, estimated_wait_seconds`

// claimLockKey is the pg_advisory_xact_lock key serializing ClaimNext
// calls against each other so the in-flight check and the claim itself
// happen as one indivisible step, even though "count(*) ... processing"
// can't itself be locked with FOR UPDATE (aggregates can't be combined
// with row locking in Postgres).
const claimLockKey = 847362910

// Store persists jobs in Postgres.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore builds a job Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func scanJob(row pgx.Row) (Job, error) {
	var j Job
	err := row.Scan(
		&j.ID, &j.PrincipalID, &j.PayloadRef, &j.Status, &j.Position, &j.CreatedAt, &j.StartedAt,
		&j.CompletedAt, &j.Result, &j.ErrorKind, &j.ErrorMessage, &j.ProcessingSeconds, &j.EstimatedWaitSeconds,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Job{}, ErrNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("scanning job: %w", err)
	}
	return j, nil
}

// Enqueue inserts a new queued job at the tail of the queue.
func (s *Store) Enqueue(ctx context.Context, principalID, payloadRef string) (Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Job{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var queuedCount int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM jobs WHERE status = $1`, StatusQueued).Scan(&queuedCount); err != nil {
		return Job{}, fmt.Errorf("counting queued jobs: %w", err)
	}

	position := queuedCount + 1
	job := Job{
		ID:                   uuid.New(),
		PrincipalID:          principalID,
		PayloadRef:           payloadRef,
		Status:               StatusQueued,
		Position:             position,
		CreatedAt:            time.Now(),
		EstimatedWaitSeconds: EstimatedWait(position),
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO jobs (`+jobColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		job.ID, job.PrincipalID, job.PayloadRef, job.Status, job.Position, job.CreatedAt, job.StartedAt,
		job.CompletedAt, job.Result, job.ErrorKind, job.ErrorMessage, job.ProcessingSeconds, job.EstimatedWaitSeconds,
	)
	if err != nil {
		return Job{}, fmt.Errorf("inserting job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Job{}, fmt.Errorf("committing enqueue: %w", err)
	}
	return job, nil
}

// PeekNext returns the earliest queued job without claiming it.
func (s *Store) PeekNext(ctx context.Context) (Job, error) {
	return scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = $1 ORDER BY created_at ASC LIMIT 1`,
		StatusQueued,
	))
}

// ClaimNext atomically claims the earliest queued job for processing,
// enforcing single-flight: the claim fails if any job is already
// processing. pg_advisory_xact_lock serializes concurrent ClaimNext
// callers against each other for the lifetime of the transaction, so the
// in-flight check and the claim below run as one indivisible step —
// "count(*) ... FOR UPDATE" can't express this directly since Postgres
// rejects FOR UPDATE combined with an aggregate.
func (s *Store) ClaimNext(ctx context.Context) (Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Job{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(claimLockKey)); err != nil {
		return Job{}, fmt.Errorf("acquiring claim lock: %w", err)
	}

	var processingCount int
	if err := tx.QueryRow(ctx, `SELECT count(*) FROM jobs WHERE status = $1`, StatusProcessing).Scan(&processingCount); err != nil {
		return Job{}, fmt.Errorf("checking in-flight job: %w", err)
	}
	if processingCount > 0 {
		return Job{}, ErrNoJobAvailable
	}

	job, err := scanJob(tx.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM jobs WHERE status = $1 ORDER BY created_at ASC LIMIT 1 FOR UPDATE SKIP LOCKED`,
		StatusQueued,
	))
	if errors.Is(err, ErrNotFound) {
		return Job{}, ErrNoJobAvailable
	}
	if err != nil {
		return Job{}, err
	}

	now := time.Now()
	job.Status = StatusProcessing
	job.StartedAt = &now
	job.Position = 0
	job.EstimatedWaitSeconds = 0

	_, err = tx.Exec(ctx,
		`UPDATE jobs SET status = $1, started_at = $2, position = 0, estimated_wait_seconds = 0 WHERE id = $3`,
		job.Status, job.StartedAt, job.ID,
	)
	if err != nil {
		return Job{}, fmt.Errorf("claiming job: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Job{}, fmt.Errorf("committing claim: %w", err)
	}
	return job, nil
}

// CompleteSuccess marks a processing job completed with the given result.
func (s *Store) CompleteSuccess(ctx context.Context, jobID uuid.UUID, result json.RawMessage, processingSeconds float64) error {
	now := time.Now()
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, completed_at = $2, result = $3, processing_seconds = $4 WHERE id = $5 AND status = $6`,
		StatusCompleted, now, result, processingSeconds, jobID, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("completing job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CompleteFailure marks a processing job failed with a classified error
// kind and a user-facing message.
func (s *Store) CompleteFailure(ctx context.Context, jobID uuid.UUID, errorKind, errorMessage string, processingSeconds float64) error {
	now := time.Now()
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, completed_at = $2, error_kind = $3, error_message = $4, processing_seconds = $5 WHERE id = $6 AND status = $7`,
		StatusFailed, now, errorKind, errorMessage, processingSeconds, jobID, StatusProcessing,
	)
	if err != nil {
		return fmt.Errorf("failing job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Cancel cancels a job while it is still queued. A job already being
// processed cannot be cancelled through this path.
func (s *Store) Cancel(ctx context.Context, jobID uuid.UUID) error {
	now := time.Now()
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, completed_at = $2 WHERE id = $3 AND status = $4`,
		StatusCancelled, now, jobID, StatusQueued,
	)
	if err != nil {
		return fmt.Errorf("cancelling job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotQueued
	}
	return nil
}

// Get fetches a single job by ID. When the job is still queued, its
// position is recomputed on the fly as 1 + the number of queued jobs
// with an earlier created_at, rather than trusting the stored column —
// a concurrent cancellation ahead of this job in the queue would
// otherwise leave the response stale until the next RecomputePositions
// tick.
func (s *Store) Get(ctx context.Context, jobID uuid.UUID) (Job, error) {
	job, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, jobID))
	if err != nil {
		return Job{}, err
	}
	if job.Status != StatusQueued {
		return job, nil
	}

	var earlierCount int
	if err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM jobs WHERE status = $1 AND created_at < $2`,
		StatusQueued, job.CreatedAt,
	).Scan(&earlierCount); err != nil {
		return Job{}, fmt.Errorf("recomputing position: %w", err)
	}
	job.Position = earlierCount + 1
	job.EstimatedWaitSeconds = EstimatedWait(job.Position)
	return job, nil
}

// RecomputePositions reassigns contiguous 1..K positions to all queued
// jobs ordered by created_at ascending, and refreshes their estimated
// wait. The Queue Engine calls it after each job it processes; Cancel
// does not call it, which is why Get recomputes a queued job's position.
func (s *Store) RecomputePositions(ctx context.Context) error {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM jobs WHERE status = $1 ORDER BY created_at ASC`,
		StatusQueued,
	)
	if err != nil {
		return fmt.Errorf("listing queued jobs: %w", err)
	}

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scanning queued job id: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating queued jobs: %w", err)
	}

	for i, id := range ids {
		position := i + 1
		if _, err := s.pool.Exec(ctx,
			`UPDATE jobs SET position = $1, estimated_wait_seconds = $2 WHERE id = $3`,
			position, EstimatedWait(position), id,
		); err != nil {
			return fmt.Errorf("updating position for job %s: %w", id, err)
		}
	}
	return nil
}

// SweepTerminal deletes terminal (completed/failed/cancelled) jobs whose
// completed_at is older than retention. Returns the number removed.
func (s *Store) SweepTerminal(ctx context.Context, retention time.Duration) (int, error) {
	cutoff := time.Now().Add(-retention)
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM jobs WHERE status IN ($1, $2, $3) AND completed_at <= $4`,
		StatusCompleted, StatusFailed, StatusCancelled, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("sweeping terminal jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// RecoverInterrupted fails forward any job left in "processing" state —
// e.g. from a crash mid-extraction — as an "unknown" failure asking the
// caller to retry. Called once at worker startup, before the engine loop
// begins claiming new work.
func (s *Store) RecoverInterrupted(ctx context.Context) (int, error) {
	now := time.Now()
	tag, err := s.pool.Exec(ctx,
		`UPDATE jobs SET status = $1, completed_at = $2, error_kind = $3, error_message = $4
		 WHERE status = $5`,
		StatusFailed, now, "unknown", "Interrupted; please retry", StatusProcessing,
	)
	if err != nil {
		return 0, fmt.Errorf("recovering interrupted jobs: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
