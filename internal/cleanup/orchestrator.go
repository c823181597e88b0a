// Package cleanup implements the Cleanup Orchestrator: periodic sweeps
// of terminal jobs, expired sessions, and stale quota counters, plus an
// emergency sweep triggered by sustained memory pressure.
package cleanup

import (
	"context"
	"log/slog"
	"time"
)

// JobSweeper removes terminal jobs older than a retention window.
type JobSweeper interface {
	SweepTerminal(ctx context.Context, retention time.Duration) (int, error)
}

// CredentialSweeper removes expired sessions.
type CredentialSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// QuotaPruner removes quota counter rows older than a cutoff.
type QuotaPruner interface {
	PruneBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// PayloadCache is flushed during an emergency sweep to shed memory.
type PayloadCache interface {
	Flush()
}

// PressureOnset is signalled once each time the Pressure Sensor trips
// from normal into sustained pressure.
type PressureOnset interface {
	Onset() <-chan struct{}
}

const (
	defaultRoutineRetention   = 24 * time.Hour
	defaultHousekeepingEvery  = 6 * time.Hour
	defaultQuotaRetention     = 90 * 24 * time.Hour
	defaultEmergencyRetention = 30 * time.Minute
)

// Orchestrator runs the cleanup sweeps on independent schedules.
type Orchestrator struct {
	jobs        JobSweeper
	credentials CredentialSweeper
	quota       QuotaPruner
	cache       PayloadCache
	pressure    PressureOnset
	logger      *slog.Logger

	routineInterval      time.Duration
	housekeepingInterval time.Duration
}

// Option configures an Orchestrator at construction time.
type Option func(*Orchestrator)

// WithRoutineInterval overrides the default interval (60s) between
// terminal-job sweeps.
func WithRoutineInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.routineInterval = d }
}

// WithHousekeepingInterval overrides the default interval (6h) between
// session-and-quota housekeeping sweeps.
func WithHousekeepingInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.housekeepingInterval = d }
}

// New builds an Orchestrator. pressure may be nil, disabling the
// emergency sweep.
func New(jobs JobSweeper, credentials CredentialSweeper, quota QuotaPruner, cache PayloadCache, pressure PressureOnset, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		jobs:                 jobs,
		credentials:          credentials,
		quota:                quota,
		cache:                cache,
		pressure:             pressure,
		logger:               logger,
		routineInterval:      time.Minute,
		housekeepingInterval: defaultHousekeepingEvery,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run drives all three sweep schedules until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) {
	o.logger.Info("cleanup orchestrator started",
		"routine_interval", o.routineInterval,
		"housekeeping_interval", o.housekeepingInterval,
	)

	routineTicker := time.NewTicker(o.routineInterval)
	defer routineTicker.Stop()
	housekeepingTicker := time.NewTicker(o.housekeepingInterval)
	defer housekeepingTicker.Stop()

	var onset <-chan struct{}
	if o.pressure != nil {
		onset = o.pressure.Onset()
	}

	for {
		select {
		case <-ctx.Done():
			o.logger.Info("cleanup orchestrator stopped")
			return
		case <-routineTicker.C:
			o.sweepTerminalJobs(ctx, defaultRoutineRetention)
		case <-housekeepingTicker.C:
			o.sweepHousekeeping(ctx)
		case <-onset:
			o.emergencySweep(ctx)
		}
	}
}

func (o *Orchestrator) sweepTerminalJobs(ctx context.Context, retention time.Duration) {
	n, err := o.jobs.SweepTerminal(ctx, retention)
	if err != nil {
		o.logger.Error("sweeping terminal jobs", "error", err)
		return
	}
	if n > 0 {
		o.logger.Info("swept terminal jobs", "count", n, "retention", retention)
	}
}

func (o *Orchestrator) sweepHousekeeping(ctx context.Context) {
	if n, err := o.credentials.SweepExpired(ctx); err != nil {
		o.logger.Error("sweeping expired sessions", "error", err)
	} else if n > 0 {
		o.logger.Info("swept expired sessions", "count", n)
	}

	cutoff := time.Now().Add(-defaultQuotaRetention)
	if n, err := o.quota.PruneBefore(ctx, cutoff); err != nil {
		o.logger.Error("pruning quota counters", "error", err)
	} else if n > 0 {
		o.logger.Info("pruned quota counters", "count", n, "cutoff", cutoff)
	}
}

// emergencySweep runs a stricter terminal-job sweep and flushes the
// payload cache, freeing memory while the Pressure Sensor is tripped.
func (o *Orchestrator) emergencySweep(ctx context.Context) {
	o.logger.Warn("pressure onset: running emergency cleanup sweep")
	o.sweepTerminalJobs(ctx, defaultEmergencyRetention)
	if o.cache != nil {
		o.cache.Flush()
	}
}
