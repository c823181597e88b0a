package credential

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Authentication failures are fail-closed: no state change, a generic
// reason surfaced to the caller.
var (
	ErrUnauthenticated = errors.New("credential: unauthenticated")
	ErrRevoked         = errors.New("credential: revoked")
	ErrSessionExpired  = errors.New("credential: session expired")
)

// SessionLookup is the narrow slice of the credential Store that
// Authenticator needs.
type SessionLookup interface {
	GetSession(ctx context.Context, sessionID uuid.UUID) (Session, error)
	IsRevoked(ctx context.Context, credentialID uuid.UUID) (bool, error)
}

// Authenticator validates a bearer credential against its signature,
// the Revocation List, and the backing session's expiry.
type Authenticator struct {
	issuer   *TokenIssuer
	sessions SessionLookup
}

// NewAuthenticator builds an Authenticator.
func NewAuthenticator(issuer *TokenIssuer, sessions SessionLookup) *Authenticator {
	return &Authenticator{issuer: issuer, sessions: sessions}
}

// Authenticate validates a raw bearer token and returns the principal ID
// it was issued for. A rejected credential yields ErrUnauthenticated,
// ErrRevoked, or ErrSessionExpired; a storage error while checking the
// revocation list or looking up the session is returned wrapped, and the
// HTTP callers answer it with 401 like any rejection (fail-closed).
func (a *Authenticator) Authenticate(ctx context.Context, rawToken string) (string, error) {
	claims, err := a.issuer.Validate(rawToken)
	if err != nil {
		return "", ErrUnauthenticated
	}

	credentialID, err := uuid.Parse(claims.CredentialID)
	if err != nil {
		return "", ErrUnauthenticated
	}

	revoked, err := a.sessions.IsRevoked(ctx, credentialID)
	if err != nil {
		return "", fmt.Errorf("checking revocation: %w", err)
	}
	if revoked {
		return "", ErrRevoked
	}

	sessionID, err := uuid.Parse(claims.SessionID)
	if err != nil {
		return "", ErrUnauthenticated
	}

	session, err := a.sessions.GetSession(ctx, sessionID)
	if errors.Is(err, ErrNotFound) {
		return "", ErrSessionExpired
	}
	if err != nil {
		return "", fmt.Errorf("looking up session: %w", err)
	}
	if !session.ExpiresAt.After(time.Now()) {
		return "", ErrSessionExpired
	}

	return claims.PrincipalID, nil
}

// IssueFor creates a new session for principalID and signs a bearer
// token carrying it. This is the bridge an identity-provider callback
// (external, consumed only via its own contract) uses to mint the
// credential a client then presents to Authenticate.
func IssueFor(ctx context.Context, store *Store, issuer *TokenIssuer, principalID string, sessionTTL time.Duration) (string, time.Time, error) {
	session, err := store.CreateSession(ctx, principalID, time.Now().Add(sessionTTL))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("creating session: %w", err)
	}

	token, expiry, err := issuer.Issue(Claims{
		PrincipalID:  principalID,
		SessionID:    session.ID.String(),
		CredentialID: session.CredentialID.String(),
	})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("issuing token: %w", err)
	}
	return token, expiry, nil
}
