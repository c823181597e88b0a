package queueengine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/wisbric/resumeforge/internal/extraction"
	"github.com/wisbric/resumeforge/internal/jobstore"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeResolver struct {
	text string
	err  error
}

func (f *fakeResolver) Resolve(_ context.Context, _ string) (string, error) {
	return f.text, f.err
}

type fakeExtractor struct {
	record extraction.Record
	err    error
}

func (f *fakeExtractor) Extract(_ context.Context, _, _ string) (extraction.Record, error) {
	return f.record, f.err
}

func TestEngine_ProcessesJobToSuccess(t *testing.T) {
	jobs := jobstore.NewFakeStore()
	job, err := jobs.Enqueue(context.Background(), "principal-1", "ref-1")
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	resolver := &fakeResolver{text: "resume text"}
	extractor := &fakeExtractor{record: extraction.Normalize(extraction.Record{})}
	var results []bool
	engine := New(jobs, resolver, extractor, discardLogger(), WithResultHook(func(_ jobstore.Job, ok bool) {
		results = append(results, ok)
	}))

	engine.tick(context.Background())

	if len(results) != 1 || !results[0] {
		t.Fatalf("results = %#v, want a single success", results)
	}

	got, err := jobs.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != jobstore.StatusCompleted {
		t.Errorf("status = %q, want completed", got.Status)
	}
}

func TestEngine_PayloadResolveFailureFailsJob(t *testing.T) {
	jobs := jobstore.NewFakeStore()
	job, _ := jobs.Enqueue(context.Background(), "principal-1", "ref-1")

	resolver := &fakeResolver{err: errors.New("document store unreachable")}
	extractor := &fakeExtractor{}
	engine := New(jobs, resolver, extractor, discardLogger())

	engine.tick(context.Background())

	got, err := jobs.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != jobstore.StatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.ErrorKind != "unavailable" {
		t.Errorf("error kind = %q, want unavailable", got.ErrorKind)
	}
}

func TestEngine_ExtractionFailureClassifiesErrorKind(t *testing.T) {
	jobs := jobstore.NewFakeStore()
	job, _ := jobs.Enqueue(context.Background(), "principal-1", "ref-1")

	resolver := &fakeResolver{text: "resume text"}
	extractor := &fakeExtractor{err: &extraction.Error{Kind: extraction.FailureQuotaExhausted, Message: "daily quota exhausted"}}
	engine := New(jobs, resolver, extractor, discardLogger())

	engine.tick(context.Background())

	got, err := jobs.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != jobstore.StatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.ErrorKind != "quota_exhausted" {
		t.Errorf("error kind = %q, want quota_exhausted", got.ErrorKind)
	}
}

func TestEngine_EmptyQueueTickIsNoop(t *testing.T) {
	jobs := jobstore.NewFakeStore()
	engine := New(jobs, &fakeResolver{}, &fakeExtractor{}, discardLogger())

	engine.tick(context.Background())
}

func TestEngine_RunRecoversInterruptedJobsAtStartup(t *testing.T) {
	jobs := jobstore.NewFakeStore()
	job, _ := jobs.Enqueue(context.Background(), "principal-1", "ref-1")
	if _, err := jobs.ClaimNext(context.Background()); err != nil {
		t.Fatalf("ClaimNext() error = %v", err)
	}

	engine := New(jobs, &fakeResolver{}, &fakeExtractor{}, discardLogger(), WithPollInterval(10*time.Millisecond))

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := engine.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	got, err := jobs.Get(context.Background(), job.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Status != jobstore.StatusFailed || got.ErrorKind != "unknown" {
		t.Errorf("job = %+v, want failed/unknown from startup recovery", got)
	}
}
