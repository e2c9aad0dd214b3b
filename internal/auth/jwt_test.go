package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestMintAndVerifySession(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	token, expiresAt, err := m.MintSession("rec-anna", "anna@example.com")

	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if until := time.Until(expiresAt); until < 59*time.Minute || until > time.Hour {
		t.Fatalf("expiry %v off the configured TTL", until)
	}

	claims, err := m.VerifySession(token)

	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	if claims.ProfileID != "rec-anna" || claims.Email != "anna@example.com" {
		t.Fatalf("claims = %+v", claims)
	}

	if claims.JTI == "" {
		t.Fatal("session tokens must carry a jti")
	}
}

func TestVerifySessionRejectsExpired(t *testing.T) {
	m := NewManager("test-secret", -time.Minute)

	token, _, err := m.MintSession("rec-anna", "anna@example.com")

	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := m.VerifySession(token); err == nil {
		t.Fatal("expired token must not verify")
	}
}

func TestVerifySessionRejectsWrongSecret(t *testing.T) {
	token, _, err := NewManager("secret-a", time.Hour).MintSession("rec-anna", "anna@example.com")

	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	if _, err := NewManager("secret-b", time.Hour).VerifySession(token); err == nil {
		t.Fatal("token signed with another secret must not verify")
	}
}

func TestVerifySessionRejectsTampering(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	token, _, err := m.MintSession("rec-anna", "anna@example.com")

	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	parts := strings.Split(token, ".")
	parts[1] = parts[1][:len(parts[1])-2] + "xx"

	if _, err := m.VerifySession(strings.Join(parts, ".")); err == nil {
		t.Fatal("tampered payload must not verify")
	}
}

func TestVerifySessionRejectsWrongTokenType(t *testing.T) {
	secret := []byte("test-secret")

	claims := SessionClaims{
		ProfileID: "rec-anna",
		TokenType: "reset",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			Subject:   "rec-anna",
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)

	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := NewManager("test-secret", time.Hour).VerifySession(token); err == nil {
		t.Fatal("non-session token type must not verify")
	}
}

func TestVerifySessionRejectsMissingSubject(t *testing.T) {
	secret := []byte("test-secret")

	claims := SessionClaims{
		TokenType: "session",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)

	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	if _, err := NewManager("test-secret", time.Hour).VerifySession(token); err == nil {
		t.Fatal("token without a subject must not verify")
	}
}
