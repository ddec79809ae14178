package auth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eldtechnologies/chatdeck/internal/crypto"
)

// sealAuthJS produces a token the way Auth.js v4 encodes its session JWT.
func sealAuthJS(t *testing.T, secret string, claims map[string]any) string {
	t.Helper()
	key, err := crypto.DeriveKey([]byte(secret), nil, []byte(authJSKeyInfo), 32)
	if err != nil {
		t.Fatal(err)
	}
	block, _ := aes.NewCipher(key)
	aead, _ := cipher.NewGCM(block)

	enc := base64.RawURLEncoding
	header := enc.EncodeToString([]byte(`{"alg":"dir","enc":"A256GCM"}`))
	payload, _ := json.Marshal(claims)

	iv := make([]byte, aead.NonceSize())
	rand.Read(iv)
	sealed := aead.Seal(nil, iv, payload, []byte(header))
	ct, tag := sealed[:len(sealed)-aead.Overhead()], sealed[len(sealed)-aead.Overhead():]

	return header + ".." + enc.EncodeToString(iv) + "." + enc.EncodeToString(ct) + "." + enc.EncodeToString(tag)
}

func TestAuthJSVerify(t *testing.T) {
	v, err := NewAuthJSVerifier("s3cret")
	if err != nil {
		t.Fatal(err)
	}

	token := sealAuthJS(t, "s3cret", map[string]any{
		"sub":     "github|42",
		"email":   "grace@example.com",
		"name":    "Grace",
		"picture": "https://img.example/g.png",
		"exp":     time.Now().Add(time.Hour).Unix(),
	})

	id, err := v.Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	if id.Subject != "github|42" || id.Name != "Grace" || id.Provider != "authjs" {
		t.Fatalf("unexpected identity %+v", id)
	}
}

func TestAuthJSRejects(t *testing.T) {
	v, _ := NewAuthJSVerifier("s3cret")
	future := time.Now().Add(time.Hour).Unix()

	valid := sealAuthJS(t, "s3cret", map[string]any{"sub": "u", "exp": future})
	parts := strings.Split(valid, ".")
	tag, _ := base64.RawURLEncoding.DecodeString(parts[4])
	tag[0] ^= 0xFF
	parts[4] = base64.RawURLEncoding.EncodeToString(tag)
	tampered := strings.Join(parts, ".")

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"wrong secret", sealAuthJS(t, "other", map[string]any{"sub": "u", "exp": future}), ErrInvalidSession},
		{"expired", sealAuthJS(t, "s3cret", map[string]any{"sub": "u", "exp": time.Now().Add(-time.Minute).Unix()}), ErrSessionExpired},
		{"no sub", sealAuthJS(t, "s3cret", map[string]any{"exp": future}), ErrInvalidSession},
		{"no exp", sealAuthJS(t, "s3cret", map[string]any{"sub": "u"}), ErrInvalidSession},
		{"other enc", strings.Replace(valid, parts[0], base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"dir","enc":"A128GCM"}`)), 1), ErrInvalidSession},
		{"tampered", tampered, ErrInvalidSession},
		{"segments", "a.b.c", ErrInvalidSession},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.Verify(tt.token); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestFromRequestChunkedCookie(t *testing.T) {
	v, _ := NewAuthJSVerifier("s3cret")
	token := sealAuthJS(t, "s3cret", map[string]any{"sub": "u1", "exp": time.Now().Add(time.Hour).Unix()})

	half := len(token) / 2
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.AddCookie(&http.Cookie{Name: AuthJSCookie + ".1", Value: token[half:]})
	r.AddCookie(&http.Cookie{Name: AuthJSCookie + ".0", Value: token[:half]})

	id, err := FromRequest(v, r)
	if err != nil {
		t.Fatal(err)
	}
	if id.Subject != "u1" {
		t.Fatalf("unexpected subject %q", id.Subject)
	}
}

func TestFromRequestNoCookie(t *testing.T) {
	v, _ := NewAuthJSVerifier("s3cret")
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if _, err := FromRequest(v, r); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestAuthJSSealRoundTrip(t *testing.T) {
	v, _ := NewAuthJSVerifier("s3cret")
	token, err := v.Seal(Identity{Subject: "dev|1", Email: "dev@example.com"}, time.Hour)
	if err != nil {
		t.Fatal(err)
	}

	id, err := v.Verify(token)
	if err != nil {
		t.Fatal(err)
	}
	if id.Subject != "dev|1" || id.Email != "dev@example.com" {
		t.Fatalf("unexpected identity %+v", id)
	}

	other, _ := NewAuthJSVerifier("different")
	if _, err := other.Verify(token); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession, got %v", err)
	}

	expired, _ := v.Seal(Identity{Subject: "dev|1"}, -time.Minute)
	if _, err := v.Verify(expired); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}
