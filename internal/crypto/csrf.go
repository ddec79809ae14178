package crypto

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"strings"
)

var (
	ErrMissingSecret  = errors.New("csrf secret is empty")
	ErrMalformedToken = errors.New("malformed csrf token")
	ErrInvalidToken   = errors.New("invalid csrf token")
)

const csrfNonceSize = 32

// CSRFSigner issues and verifies HMAC-signed double-submit tokens.
// Token format: base64url(nonce) "." base64url(HMAC-SHA256(key, nonce))
type CSRFSigner struct {
	key []byte
}

// NewCSRFSigner derives the signing key from secret.
func NewCSRFSigner(secret string) (*CSRFSigner, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}
	key, err := DeriveKey([]byte(secret), nil, []byte("chatdeck csrf"), 32)
	if err != nil {
		return nil, err
	}
	return &CSRFSigner{key: key}, nil
}

// Issue returns a fresh signed token.
func (s *CSRFSigner) Issue() (string, error) {
	nonce := make([]byte, csrfNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	enc := base64.RawURLEncoding
	return enc.EncodeToString(nonce) + "." + enc.EncodeToString(s.sign(nonce)), nil
}

// Verify checks the token signature.
func (s *CSRFSigner) Verify(token string) error {
	noncePart, sigPart, ok := strings.Cut(token, ".")
	if !ok {
		return ErrMalformedToken
	}

	enc := base64.RawURLEncoding
	nonce, err := enc.DecodeString(noncePart)
	if err != nil || len(nonce) != csrfNonceSize {
		return ErrMalformedToken
	}
	sig, err := enc.DecodeString(sigPart)
	if err != nil {
		return ErrMalformedToken
	}

	if !hmac.Equal(sig, s.sign(nonce)) {
		return ErrInvalidToken
	}
	return nil
}

func (s *CSRFSigner) sign(nonce []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	mac.Write(nonce)
	return mac.Sum(nil)
}

// TokensEqual compares two tokens in constant time.
func TokensEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
