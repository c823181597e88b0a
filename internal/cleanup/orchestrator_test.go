package cleanup

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeJobSweeper struct {
	calls int32
	last  time.Duration
}

func (f *fakeJobSweeper) SweepTerminal(_ context.Context, retention time.Duration) (int, error) {
	atomic.AddInt32(&f.calls, 1)
	f.last = retention
	return 0, nil
}

type fakeCredentialSweeper struct{ calls int32 }

func (f *fakeCredentialSweeper) SweepExpired(_ context.Context) (int, error) {
	atomic.AddInt32(&f.calls, 1)
	return 0, nil
}

type fakeQuotaPruner struct{ calls int32 }

func (f *fakeQuotaPruner) PruneBefore(_ context.Context, _ time.Time) (int, error) {
	atomic.AddInt32(&f.calls, 1)
	return 0, nil
}

type fakeCache struct{ flushed int32 }

func (f *fakeCache) Flush() { atomic.AddInt32(&f.flushed, 1) }

type fakePressure struct{ ch chan struct{} }

func (f *fakePressure) Onset() <-chan struct{} { return f.ch }

func TestOrchestrator_RoutineSweepRunsOnSchedule(t *testing.T) {
	jobs := &fakeJobSweeper{}
	creds := &fakeCredentialSweeper{}
	quota := &fakeQuotaPruner{}

	o := New(jobs, creds, quota, &fakeCache{}, nil, discardLogger(),
		WithRoutineInterval(5*time.Millisecond),
		WithHousekeepingInterval(time.Hour),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	o.Run(ctx)

	if atomic.LoadInt32(&jobs.calls) == 0 {
		t.Error("expected at least one routine sweep")
	}
	if jobs.last != defaultRoutineRetention {
		t.Errorf("retention = %v, want %v", jobs.last, defaultRoutineRetention)
	}
}

func TestOrchestrator_HousekeepingSweepRunsOnSchedule(t *testing.T) {
	jobs := &fakeJobSweeper{}
	creds := &fakeCredentialSweeper{}
	quota := &fakeQuotaPruner{}

	o := New(jobs, creds, quota, &fakeCache{}, nil, discardLogger(),
		WithRoutineInterval(time.Hour),
		WithHousekeepingInterval(5*time.Millisecond),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	o.Run(ctx)

	if atomic.LoadInt32(&creds.calls) == 0 {
		t.Error("expected at least one credential sweep")
	}
	if atomic.LoadInt32(&quota.calls) == 0 {
		t.Error("expected at least one quota prune")
	}
}

func TestOrchestrator_PressureOnsetTriggersEmergencySweep(t *testing.T) {
	jobs := &fakeJobSweeper{}
	cache := &fakeCache{}
	onset := make(chan struct{}, 1)

	o := New(jobs, &fakeCredentialSweeper{}, &fakeQuotaPruner{}, cache, &fakePressure{ch: onset}, discardLogger(),
		WithRoutineInterval(time.Hour),
		WithHousekeepingInterval(time.Hour),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	onset <- struct{}{}
	o.Run(ctx)

	if atomic.LoadInt32(&jobs.calls) == 0 {
		t.Error("expected emergency sweep to call SweepTerminal")
	}
	if jobs.last != defaultEmergencyRetention {
		t.Errorf("retention = %v, want emergency retention %v", jobs.last, defaultEmergencyRetention)
	}
	if atomic.LoadInt32(&cache.flushed) == 0 {
		t.Error("expected emergency sweep to flush the payload cache")
	}
}
