package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// WindowResult describes the outcome of a rolling-window check.
type WindowResult struct {
	Allowed   bool
	Remaining int
	RetryAt   time.Time
}

// WindowLimiter enforces a rolling fixed-window request cap per key,
// generalized from the teacher's login rate limiter (there keyed by IP;
// here keyed by principal+endpoint-class). Each window is a fixed
// wall-clock bucket of size `window` — not a true sliding window — which
// matches the spec's "rolling fixed window" wording.
type WindowLimiter struct {
	redis  *redis.Client
	window time.Duration
}

// NewWindowLimiter builds a WindowLimiter with a fixed bucket size.
func NewWindowLimiter(rdb *redis.Client, window time.Duration) *WindowLimiter {
	return &WindowLimiter{redis: rdb, window: window}
}

func bucketKey(prefix, key string, window time.Duration) string {
	bucket := time.Now().UTC().Unix() / int64(window.Seconds())
	return fmt.Sprintf("%s:%s:%d", prefix, key, bucket)
}

// CheckWindow atomically increments key's counter for the current window
// and reports whether the post-increment count is within limit. The
// increment and the comparison both run off the same INCR result, so two
// concurrent callers can't both observe spare capacity and both proceed —
// the same INCR-then-compare shape as the teacher's login rate limiter.
func (l *WindowLimiter) CheckWindow(ctx context.Context, prefix, key string, limit int) (WindowResult, error) {
	bk := bucketKey(prefix, key, l.window)

	count, err := l.redis.Incr(ctx, bk).Result()
	if err != nil {
		return WindowResult{}, fmt.Errorf("incrementing window counter: %w", err)
	}
	if count == 1 {
		if err := l.redis.Expire(ctx, bk, l.window).Err(); err != nil {
			return WindowResult{}, fmt.Errorf("setting window expiry: %w", err)
		}
	}

	retryAt := l.windowEnd()
	if count > int64(limit) {
		return WindowResult{Allowed: false, Remaining: 0, RetryAt: retryAt}, nil
	}
	return WindowResult{Allowed: true, Remaining: limit - int(count), RetryAt: retryAt}, nil
}

func (l *WindowLimiter) windowEnd() time.Time {
	now := time.Now().UTC()
	windowSecs := int64(l.window.Seconds())
	bucket := now.Unix() / windowSecs
	return time.Unix((bucket+1)*windowSecs, 0).UTC()
}
