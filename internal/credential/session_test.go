package credential

import (
	"strings"
	"testing"
	"time"
)

func TestNewTokenIssuer_RejectsShortSecret(t *testing.T) {
	_, err := NewTokenIssuer("too-short", time.Hour)
	if err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestTokenIssuer_IssueAndValidate(t *testing.T) {
	issuer, err := NewTokenIssuer(GenerateDevSecret(), time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}

	claims := Claims{PrincipalID: "principal-1", SessionID: "session-1"}
	raw, expiry, err := issuer.Issue(claims)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if raw == "" {
		t.Fatal("Issue() returned empty token")
	}
	if !expiry.After(time.Now()) {
		t.Fatalf("expiry %v should be in the future", expiry)
	}

	got, err := issuer.Validate(raw)
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if got.PrincipalID != claims.PrincipalID || got.SessionID != claims.SessionID {
		t.Errorf("Validate() = %+v, want %+v", got, claims)
	}
}

func TestTokenIssuer_ValidateRejectsExpired(t *testing.T) {
	issuer, err := NewTokenIssuer(GenerateDevSecret(), -time.Hour)
	if err != nil {
		t.Fatalf("NewTokenIssuer() error = %v", err)
	}

	raw, _, err := issuer.Issue(Claims{PrincipalID: "principal-1"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := issuer.Validate(raw); err == nil {
		t.Fatal("expected validation error for expired token")
	}
}

func TestTokenIssuer_ValidateRejectsWrongKey(t *testing.T) {
	issuerA, _ := NewTokenIssuer(GenerateDevSecret(), time.Hour)
	issuerB, _ := NewTokenIssuer(GenerateDevSecret(), time.Hour)

	raw, _, err := issuerA.Issue(Claims{PrincipalID: "principal-1"})
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	if _, err := issuerB.Validate(raw); err == nil {
		t.Fatal("expected validation error for token signed by a different key")
	}
}

func TestTokenIssuer_ValidateRejectsGarbage(t *testing.T) {
	issuer, _ := NewTokenIssuer(GenerateDevSecret(), time.Hour)
	if _, err := issuer.Validate("not.a.jwt"); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestGenerateDevSecret_IsHexAndLongEnough(t *testing.T) {
	secret := GenerateDevSecret()
	if len(secret) < 32 {
		t.Fatalf("dev secret too short: %d bytes", len(secret))
	}
	if strings.ContainsAny(secret, "ghijklmnopqrstuvwxyz") {
		t.Errorf("dev secret should be lowercase hex, got %q", secret)
	}
}
