// Package credential implements session and credential lifecycle
// management: bearer token issuance/validation, per-principal session
// capping with eviction, and a durable revocation list.
package credential

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

// Claims identifies the principal and session a bearer token was issued
// for. CredentialID travels with the token so Authenticate can check the
// Revocation List without a session-store round trip.
type Claims struct {
	PrincipalID  string `json:"principal_id"`
	SessionID    string `json:"session_id"`
	CredentialID string `json:"credential_id"`
}

// TokenIssuer signs and validates opaque bearer credentials.
type TokenIssuer struct {
	signingKey []byte
	ttl        time.Duration
}

// NewTokenIssuer builds a TokenIssuer. secret must be at least 32 bytes.
func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("session secret must be at least 32 bytes, got %d", len(secret))
	}
	return &TokenIssuer{signingKey: []byte(secret), ttl: ttl}, nil
}

// GenerateDevSecret returns a random 32-byte hex-encoded secret for local
// development when no secret has been configured.
func GenerateDevSecret() string {
	b := make([]byte, 32)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Issue signs a bearer token for the given claims, valid for the issuer's TTL.
func (ti *TokenIssuer) Issue(claims Claims) (string, time.Time, error) {
	now := time.Now()
	expiry := now.Add(ti.ttl)

	signer, err := jose.NewSigner(jose.SigningKey{Algorithm: jose.HS256, Key: ti.signingKey}, (&jose.SignerOptions{}).WithType("JWT"))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("creating signer: %w", err)
	}

	registered := jwt.Claims{
		Subject:   claims.PrincipalID,
		IssuedAt:  jwt.NewNumericDate(now),
		Expiry:    jwt.NewNumericDate(expiry),
		NotBefore: jwt.NewNumericDate(now),
		Issuer:    "resumeforge",
	}

	raw, err := jwt.Signed(signer).Claims(registered).Claims(claims).Serialize()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("serializing token: %w", err)
	}

	return raw, expiry, nil
}

// Validate parses and verifies a bearer token, returning its claims.
func (ti *TokenIssuer) Validate(raw string) (Claims, error) {
	tok, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return Claims{}, fmt.Errorf("parsing token: %w", err)
	}

	var registered jwt.Claims
	var custom Claims
	if err := tok.Claims(ti.signingKey, &registered, &custom); err != nil {
		return Claims{}, fmt.Errorf("verifying token: %w", err)
	}

	if err := registered.ValidateWithLeeway(jwt.Expected{
		Issuer: "resumeforge",
		Time:   time.Now(),
	}, 5*time.Second); err != nil {
		return Claims{}, fmt.Errorf("validating claims: %w", err)
	}

	return custom, nil
}
