package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestTokenRoundTrip(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer, err := NewTokenIssuer("secret", func() time.Time { return now })
	if err != nil {
		t.Fatalf("NewTokenIssuer: %v", err)
	}
	token, exp, err := issuer.Issue("user-1", time.Hour)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if !exp.Equal(now.Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", exp)
	}
	sub, err := issuer.Verify(token)
	if err != nil || sub != "user-1" {
		t.Fatalf("Verify = %q, %v", sub, err)
	}
}

func TestTokenCarriesOnlySubjectAndExpiry(t *testing.T) {
	issuer, _ := NewTokenIssuer("secret", nil)
	token, _, err := issuer.Issue("user-1", time.Minute)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		t.Fatalf("ParseUnverified: %v", err)
	}
	if len(claims) != 2 || claims["sub"] != "user-1" || claims["exp"] == nil {
		t.Fatalf("unexpected claims: %v", claims)
	}
}

func TestTokenVerifyRejects(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	issuer, _ := NewTokenIssuer("secret", clock)
	other, _ := NewTokenIssuer("other-secret", clock)

	good, _, _ := issuer.Issue("user-1", time.Minute)
	forged, _, _ := other.Issue("user-1", time.Minute)
	none, _ := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "user-1"}).SignedString([]byte("secret"))
	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
	}).SignedString([]byte("secret"))

	parts := strings.Split(good, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]

	for name, tok := range map[string]string{
		"empty":      "",
		"garbage":    "abc",
		"forged":     forged,
		"alg none":   none,
		"no expiry":  noExp,
		"no subject": noSub,
		"tampered":   tampered,
	} {
		if _, err := issuer.Verify(tok); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}

func TestTokenExpiryBoundary(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	issuer, _ := NewTokenIssuer("secret", func() time.Time { return now })
	token, _, _ := issuer.Issue("user-1", ResetTTL)

	now = now.Add(ResetTTL - time.Second)
	if _, err := issuer.Verify(token); err != nil {
		t.Fatalf("token should be valid before expiry: %v", err)
	}
	now = now.Add(2 * time.Second)
	if _, err := issuer.Verify(token); err == nil {
		t.Fatal("token should be rejected after expiry")
	}
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	if _, err := NewTokenIssuer("  ", nil); err == nil {
		t.Fatal("expected error for blank secret")
	}
	issuer, _ := NewTokenIssuer("secret", nil)
	if _, _, err := issuer.Issue("", time.Minute); err == nil {
		t.Fatal("expected error for blank subject")
	}
	if _, _, err := issuer.Issue("user", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}
