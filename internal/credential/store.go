package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a session or credential lookup misses.
var ErrNotFound = errors.New("credential: not found")

// Session is a durable record of an issued bearer credential.
type Session struct {
	ID           uuid.UUID
	PrincipalID  string
	CredentialID uuid.UUID
	CreatedAt    time.Time
	LastUsedAt   time.Time
	ExpiresAt    time.Time
}

// RevocationEntry marks a credential as revoked for a bounded window,
// independent of the credential's own claimed expiry.
type RevocationEntry struct {
	CredentialID uuid.UUID
	RevokedAt    time.Time
	ExpiresAt    time.Time
}

// Store persists sessions and revocations in Postgres.
type Store struct {
	pool          *pgxpool.Pool
	maxSessions   int
	revocationTTL time.Duration
}

// NewStore builds a credential Store. maxSessions is the per-principal
// session cap; on the (cap+1)th session the oldest is evicted and its
// credential revoked for revocationTTL.
func NewStore(pool *pgxpool.Pool, maxSessions int, revocationTTL time.Duration) *Store {
	return &Store{pool: pool, maxSessions: maxSessions, revocationTTL: revocationTTL}
}

const sessionColumns = "id, principal_id, credential_id, created_at, last_used_at, expires_at"

func scanSession(row pgx.Row) (Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.PrincipalID, &s.CredentialID, &s.CreatedAt, &s.LastUsedAt, &s.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Session{}, ErrNotFound
	}
	if err != nil {
		return Session{}, fmt.Errorf("scanning session: %w", err)
	}
	return s, nil
}

// CreateSession inserts a new session for principalID, evicting the oldest
// existing session (and revoking its credential) if the principal is
// already at the session cap. pg_advisory_xact_lock serializes concurrent
// CreateSession calls for the same principal for the lifetime of the
// transaction, so the count check and the eviction/insert below run as
// one indivisible step even when the principal has zero existing
// sessions to lock with FOR UPDATE (and "count(*) ... FOR UPDATE" is
// invalid SQL regardless — Postgres rejects FOR UPDATE on an aggregate).
func (s *Store) CreateSession(ctx context.Context, principalID string, expiresAt time.Time) (Session, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return Session{}, fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, principalID); err != nil {
		return Session{}, fmt.Errorf("acquiring session lock: %w", err)
	}

	var count int
	err = tx.QueryRow(ctx,
		`SELECT count(*) FROM sessions WHERE principal_id = $1`,
		principalID,
	).Scan(&count)
	if err != nil {
		return Session{}, fmt.Errorf("counting sessions: %w", err)
	}

	if count >= s.maxSessions {
		var oldest Session
		oldest, err = scanSession(tx.QueryRow(ctx,
			`SELECT `+sessionColumns+` FROM sessions WHERE principal_id = $1 ORDER BY created_at ASC LIMIT 1`,
			principalID,
		))
		if err != nil {
			return Session{}, fmt.Errorf("finding oldest session: %w", err)
		}

		if _, err = tx.Exec(ctx, `DELETE FROM sessions WHERE id = $1`, oldest.ID); err != nil {
			return Session{}, fmt.Errorf("evicting oldest session: %w", err)
		}

		now := time.Now()
		if _, err = tx.Exec(ctx,
			`INSERT INTO revocations (credential_id, revoked_at, expires_at) VALUES ($1, $2, $3)`,
			oldest.CredentialID, now, now.Add(s.revocationTTL),
		); err != nil {
			return Session{}, fmt.Errorf("revoking evicted credential: %w", err)
		}
	}

	now := time.Now()
	sess := Session{
		ID:           uuid.New(),
		PrincipalID:  principalID,
		CredentialID: uuid.New(),
		CreatedAt:    now,
		LastUsedAt:   now,
		ExpiresAt:    expiresAt,
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO sessions (`+sessionColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		sess.ID, sess.PrincipalID, sess.CredentialID, sess.CreatedAt, sess.LastUsedAt, sess.ExpiresAt,
	)
	if err != nil {
		return Session{}, fmt.Errorf("inserting session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return Session{}, fmt.Errorf("committing session creation: %w", err)
	}

	return sess, nil
}

// GetSession fetches a session by ID, regardless of expiry — callers
// that care about expiry compare ExpiresAt against time.Now() themselves.
func (s *Store) GetSession(ctx context.Context, sessionID uuid.UUID) (Session, error) {
	return scanSession(s.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE id = $1`, sessionID))
}

// TouchSession updates a session's last-used-at timestamp.
func (s *Store) TouchSession(ctx context.Context, sessionID uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `UPDATE sessions SET last_used_at = $1 WHERE id = $2`, time.Now(), sessionID)
	if err != nil {
		return fmt.Errorf("touching session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// IsRevoked reports whether credentialID currently appears in the
// revocation list (i.e. was revoked and its revocation window hasn't
// expired yet).
func (s *Store) IsRevoked(ctx context.Context, credentialID uuid.UUID) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM revocations WHERE credential_id = $1 AND expires_at > $2)`,
		credentialID, time.Now(),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("checking revocation: %w", err)
	}
	return exists, nil
}

// Revoke immediately revokes a single credential for the store's revocationTTL.
func (s *Store) Revoke(ctx context.Context, credentialID uuid.UUID) error {
	now := time.Now()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO revocations (credential_id, revoked_at, expires_at) VALUES ($1, $2, $3)`,
		credentialID, now, now.Add(s.revocationTTL),
	)
	if err != nil {
		return fmt.Errorf("revoking credential: %w", err)
	}
	return nil
}

// RevokeAllFor revokes every active session's credential for principalID
// and removes those sessions.
func (s *Store) RevokeAllFor(ctx context.Context, principalID string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `SELECT credential_id FROM sessions WHERE principal_id = $1`, principalID)
	if err != nil {
		return fmt.Errorf("listing sessions: %w", err)
	}
	var credentialIDs []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scanning credential id: %w", err)
		}
		credentialIDs = append(credentialIDs, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating sessions: %w", err)
	}

	now := time.Now()
	for _, id := range credentialIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO revocations (credential_id, revoked_at, expires_at) VALUES ($1, $2, $3)`,
			id, now, now.Add(s.revocationTTL),
		); err != nil {
			return fmt.Errorf("revoking credential %s: %w", id, err)
		}
	}

	if _, err := tx.Exec(ctx, `DELETE FROM sessions WHERE principal_id = $1`, principalID); err != nil {
		return fmt.Errorf("deleting sessions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing revocation: %w", err)
	}
	return nil
}

// SweepExpired deletes sessions past their expiry and revocation entries
// past their own expiry window. Returns the number of rows removed.
func (s *Store) SweepExpired(ctx context.Context) (int, error) {
	now := time.Now()

	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE expires_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("sweeping expired sessions: %w", err)
	}
	removed := int(tag.RowsAffected())

	tag, err = s.pool.Exec(ctx, `DELETE FROM revocations WHERE expires_at <= $1`, now)
	if err != nil {
		return removed, fmt.Errorf("sweeping expired revocations: %w", err)
	}
	removed += int(tag.RowsAffected())

	return removed, nil
}
