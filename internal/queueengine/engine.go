// Package queueengine drives the single-flight job queue: it claims the
// next queued job, hydrates its payload, runs extraction, and records
// the outcome, one job at a time, in a straight-line ticker loop.
package queueengine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/wisbric/resumeforge/internal/extraction"
	"github.com/wisbric/resumeforge/internal/jobstore"
)

// JobStore is the narrow slice of jobstore.Store the engine drives
// against. jobstore.FakeStore satisfies this too, so the engine can be
// tested without a live database.
type JobStore interface {
	ClaimNext(ctx context.Context) (jobstore.Job, error)
	CompleteSuccess(ctx context.Context, jobID uuid.UUID, result json.RawMessage, processingSeconds float64) error
	CompleteFailure(ctx context.Context, jobID uuid.UUID, errorKind, errorMessage string, processingSeconds float64) error
	RecomputePositions(ctx context.Context) error
	RecoverInterrupted(ctx context.Context) (int, error)
}

// PayloadResolver hydrates a job's payload reference into document text.
type PayloadResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// Extractor runs the structured extraction pipeline for a principal's
// résumé text.
type Extractor interface {
	Extract(ctx context.Context, principalID, text string) (extraction.Record, error)
}

// Engine is the background worker that claims and processes jobs one at
// a time.
type Engine struct {
	jobs     JobStore
	payloads PayloadResolver
	extract  Extractor
	logger   *slog.Logger
	interval time.Duration
	deadline time.Duration
	onResult func(jobstore.Job, bool)
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithPollInterval overrides the default poll interval between claim
// attempts when the queue is empty.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// WithJobDeadline overrides the default per-job extraction deadline.
func WithJobDeadline(d time.Duration) Option {
	return func(e *Engine) { e.deadline = d }
}

// WithResultHook registers a callback invoked after every job this
// engine processes, reporting whether it succeeded. Used by tests; never
// required for correctness.
func WithResultHook(fn func(job jobstore.Job, succeeded bool)) Option {
	return func(e *Engine) { e.onResult = fn }
}

// New builds an Engine.
func New(jobs JobStore, payloads PayloadResolver, extract Extractor, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		jobs:     jobs,
		payloads: payloads,
		extract:  extract,
		logger:   logger,
		interval: 2 * time.Second,
		deadline: 45 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run recovers any job left "processing" from a prior crash, then polls
// for and processes jobs one at a time until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) error {
	recovered, err := e.jobs.RecoverInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("recovering interrupted jobs: %w", err)
	}
	if recovered > 0 {
		e.logger.Warn("recovered interrupted jobs at startup", "count", recovered)
	}

	e.logger.Info("queue engine started", "poll_interval", e.interval, "job_deadline", e.deadline)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("queue engine stopped")
			return nil
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

// tick claims at most one job and processes it to completion. Errors
// claiming or processing are logged, never returned — a single bad job
// must not stop the loop.
func (e *Engine) tick(ctx context.Context) {
	job, err := e.jobs.ClaimNext(ctx)
	if errors.Is(err, jobstore.ErrNoJobAvailable) {
		return
	}
	if err != nil {
		e.logger.Error("claiming next job", "error", err)
		return
	}

	succeeded := e.process(ctx, job)
	if e.onResult != nil {
		e.onResult(job, succeeded)
	}

	if err := e.jobs.RecomputePositions(ctx); err != nil {
		e.logger.Error("recomputing queue positions", "error", err)
	}
}

// process resolves the job's payload, runs extraction, and records the
// outcome. It returns whether the job completed successfully.
func (e *Engine) process(ctx context.Context, job jobstore.Job) bool {
	start := time.Now()
	deadlineCtx, cancel := context.WithTimeout(ctx, e.deadline)
	defer cancel()

	text, err := e.payloads.Resolve(deadlineCtx, job.PayloadRef)
	if err != nil {
		e.fail(ctx, job, "unavailable", "Could not retrieve the uploaded résumé. Please try again.", start)
		return false
	}

	record, err := e.extract.Extract(deadlineCtx, job.PrincipalID, text)
	if err != nil {
		kind, message := classify(err)
		e.fail(ctx, job, kind, message, start)
		return false
	}

	result, err := json.Marshal(record)
	if err != nil {
		e.fail(ctx, job, "unknown", "Interrupted; please retry", start)
		return false
	}

	processingSeconds := time.Since(start).Seconds()
	if err := e.jobs.CompleteSuccess(ctx, job.ID, result, processingSeconds); err != nil {
		e.logger.Error("recording job success", "job_id", job.ID, "error", err)
		return false
	}

	e.logger.Info("job completed", "job_id", job.ID, "processing_seconds", processingSeconds)
	return true
}

func (e *Engine) fail(ctx context.Context, job jobstore.Job, kind, message string, start time.Time) {
	processingSeconds := time.Since(start).Seconds()
	if err := e.jobs.CompleteFailure(ctx, job.ID, kind, message, processingSeconds); err != nil {
		e.logger.Error("recording job failure", "job_id", job.ID, "error", err)
		return
	}
	e.logger.Warn("job failed", "job_id", job.ID, "error_kind", kind)
}

// classify maps an extraction error to the job's stored error_kind and a
// user-facing message. Errors that are not a classified extraction.Error
// are treated as unknown.
func classify(err error) (kind, message string) {
	var extractionErr *extraction.Error
	if errors.As(err, &extractionErr) {
		return string(extractionErr.Kind), extractionErr.Kind.UserMessage()
	}
	return "unknown", extraction.FailureUnknown.UserMessage()
}
