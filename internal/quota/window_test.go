package quota

import (
	"testing"
	"time"
)

func TestDayKey_TruncatesToUTCMidnight(t *testing.T) {
	ts := time.Date(2026, 7, 31, 23, 45, 12, 0, time.UTC)
	got := dayKey(ts)
	want := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("dayKey(%v) = %v, want %v", ts, got, want)
	}
}

func TestMonthStart(t *testing.T) {
	ts := time.Date(2026, 7, 31, 23, 45, 12, 0, time.UTC)
	got := monthStart(ts)
	want := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	if !got.Equal(want) {
		t.Errorf("monthStart(%v) = %v, want %v", ts, got, want)
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := DefaultPolicy()
	if p.DailyRequests != 50 {
		t.Errorf("DailyRequests = %d, want 50", p.DailyRequests)
	}
	if p.MonthlyTokens != 100000 {
		t.Errorf("MonthlyTokens = %d, want 100000", p.MonthlyTokens)
	}
}

func TestBucketKey_StableWithinSameWindow(t *testing.T) {
	window := time.Minute
	a := bucketKey("endpoint", "principal-1", window)
	b := bucketKey("endpoint", "principal-1", window)
	if a != b {
		t.Errorf("bucketKey should be stable within the same window: %q != %q", a, b)
	}
}

func TestBucketKey_DiffersByKey(t *testing.T) {
	window := time.Minute
	a := bucketKey("endpoint", "principal-1", window)
	b := bucketKey("endpoint", "principal-2", window)
	if a == b {
		t.Error("bucketKey should differ for different keys")
	}
}
