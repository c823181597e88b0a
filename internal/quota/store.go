// Package quota implements the per-principal quota ledger: daily request
// and monthly token counters backed by Postgres, plus a Redis-backed
// rolling fixed-window request limiter.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Policy holds the daily-request and monthly-token limits applied per
// principal/API-kind. Zero values mean "unlimited" for that dimension.
type Policy struct {
	DailyRequests int
	MonthlyTokens int
}

// DefaultPolicy returns the spec's default policy: 50 requests/day,
// 100000 tokens/month.
func DefaultPolicy() Policy {
	return Policy{DailyRequests: 50, MonthlyTokens: 100000}
}

func dayKey(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func monthStart(t time.Time) time.Time {
	y, m, _ := t.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}

// Store persists quota counters in Postgres.
type Store struct {
	pool   *pgxpool.Pool
	policy Policy
}

// NewStore builds a quota Store against pool using policy as the default
// limit set.
func NewStore(pool *pgxpool.Pool, policy Policy) *Store {
	return &Store{pool: pool, policy: policy}
}

// CheckDaily reports whether principalID has remaining daily request
// quota for apiKind: today's call-count strictly less than the policy's
// daily limit, or the policy allows unlimited requests (limit <= 0).
func (s *Store) CheckDaily(ctx context.Context, principalID, apiKind string) (bool, int, error) {
	count, _, err := s.today(ctx, principalID, apiKind)
	if err != nil {
		return false, 0, err
	}
	if s.policy.DailyRequests <= 0 {
		return true, count, nil
	}
	return count < s.policy.DailyRequests, count, nil
}

// CheckMonthlyTokens reports whether principalID still has token budget
// remaining this calendar month for apiKind.
func (s *Store) CheckMonthlyTokens(ctx context.Context, principalID, apiKind string) (bool, int, error) {
	var total int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(token_count), 0) FROM quota_daily WHERE principal_id = $1 AND api_kind = $2 AND day >= $3`,
		principalID, apiKind, monthStart(time.Now()),
	).Scan(&total)
	if err != nil {
		return false, 0, fmt.Errorf("summing monthly tokens: %w", err)
	}
	if s.policy.MonthlyTokens <= 0 {
		return true, total, nil
	}
	return total < s.policy.MonthlyTokens, total, nil
}

// Record atomically increments today's call and token counters for
// principalID/apiKind. It must only be called after a successful call —
// the Queue Engine and Extraction Client never charge quota for failures.
func (s *Store) Record(ctx context.Context, principalID, apiKind string, tokens int) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO quota_daily (principal_id, api_kind, day, call_count, token_count)
		 VALUES ($1, $2, $3, 1, $4)
		 ON CONFLICT (principal_id, api_kind, day)
		 DO UPDATE SET call_count = quota_daily.call_count + 1, token_count = quota_daily.token_count + EXCLUDED.token_count`,
		principalID, apiKind, dayKey(time.Now()), tokens,
	)
	if err != nil {
		return fmt.Errorf("recording quota usage: %w", err)
	}
	return nil
}

func (s *Store) today(ctx context.Context, principalID, apiKind string) (int, int, error) {
	var callCount, tokenCount int
	err := s.pool.QueryRow(ctx,
		`SELECT call_count, token_count FROM quota_daily WHERE principal_id = $1 AND api_kind = $2 AND day = $3`,
		principalID, apiKind, dayKey(time.Now()),
	).Scan(&callCount, &tokenCount)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, nil
	}
	if err != nil {
		return 0, 0, fmt.Errorf("reading today's quota: %w", err)
	}
	return callCount, tokenCount, nil
}

// PruneBefore deletes daily counter rows older than cutoff, keeping the
// quota_daily table bounded. Used by the Cleanup Orchestrator's 6-hourly sweep.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM quota_daily WHERE day < $1`, dayKey(cutoff))
	if err != nil {
		return 0, fmt.Errorf("pruning quota counters: %w", err)
	}
	return int(tag.RowsAffected()), nil
}
