package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func newClerkKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatal(err)
	}
	der, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		t.Fatal(err)
	}
	pemKey := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return priv, string(pemKey)
}

func signClerk(t *testing.T, priv *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(priv)
	if err != nil {
		t.Fatal(err)
	}
	return token
}

func TestClerkVerify(t *testing.T) {
	priv, pemKey := newClerkKey(t)
	v, err := NewClerkVerifier(pemKey, []string{"https://app.example.com"})
	if err != nil {
		t.Fatal(err)
	}

	token := signClerk(t, priv, jwt.MapClaims{
		"sub":   "user_123",
		"azp":   "https://app.example.com",
		"email": "ada@example.com",
		"exp":   time.Now().Add(time.Minute).Unix(),
	})

	id, err := v.Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	if id.Subject != "user_123" || id.Email != "ada@example.com" || id.Provider != "clerk" {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestClerkVerifyEscapedPEM(t *testing.T) {
	_, pemKey := newClerkKey(t)
	if _, err := NewClerkVerifier(strings.ReplaceAll(pemKey, "\n", `\n`), nil); err != nil {
		t.Fatalf("escaped PEM rejected: %v", err)
	}
}

func TestClerkRejects(t *testing.T) {
	priv, pemKey := newClerkKey(t)
	otherPriv, _ := newClerkKey(t)
	v, _ := NewClerkVerifier(pemKey, []string{"https://app.example.com"})
	exp := time.Now().Add(time.Minute).Unix()

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"expired", signClerk(t, priv, jwt.MapClaims{"sub": "u", "exp": time.Now().Add(-time.Hour).Unix()}), ErrSessionExpired},
		{"no exp", signClerk(t, priv, jwt.MapClaims{"sub": "u"}), ErrInvalidSession},
		{"no sub", signClerk(t, priv, jwt.MapClaims{"exp": exp}), ErrInvalidSession},
		{"wrong key", signClerk(t, otherPriv, jwt.MapClaims{"sub": "u", "exp": exp}), ErrInvalidSession},
		{"foreign azp", signClerk(t, priv, jwt.MapClaims{"sub": "u", "exp": exp, "azp": "https://evil.example"}), ErrInvalidSession},
		{"garbage", "not-a-jwt", ErrInvalidSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Verify(tt.token); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestClerkRejectsHS256(t *testing.T) {
	_, pemKey := newClerkKey(t)
	v, _ := NewClerkVerifier(pemKey, nil)

	token, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "u",
		"exp": time.Now().Add(time.Minute).Unix(),
	}).SignedString([]byte(pemKey))

	if _, err := v.Verify(token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected algorithm confusion to be rejected, got %v", err)
	}
}
