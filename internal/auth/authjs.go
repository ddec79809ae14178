package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-jose/go-jose/v4"

	"github.com/eldtechnologies/chatdeck/internal/crypto"
)

// Auth.js (NextAuth v4) session cookie names.
const (
	AuthJSCookie       = "next-auth.session-token"
	AuthJSSecureCookie = "__Secure-next-auth.session-token"
)

const authJSKeyInfo = "NextAuth.js Generated Encryption Key"

var (
	authJSKeyAlgs = []jose.KeyAlgorithm{jose.DIRECT}
	authJSEncs    = []jose.ContentEncryption{jose.A256GCM}
)

type authJSClaims struct {
	Sub     string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Exp     int64  `json:"exp"`
}

// AuthJSVerifier decrypts Auth.js session tokens: compact JWE with
// alg=dir, enc=A256GCM and a key derived from the shared secret.
type AuthJSVerifier struct {
	key []byte
	now func() time.Time
}

// NewAuthJSVerifier derives the content key from secret.
func NewAuthJSVerifier(secret string) (*AuthJSVerifier, error) {
	if secret == "" {
		return nil, errors.New("auth.js secret is empty")
	}
	key, err := crypto.DeriveKey([]byte(secret), nil, []byte(authJSKeyInfo), 32)
	if err != nil {
		return nil, err
	}
	return &AuthJSVerifier{key: key, now: time.Now}, nil
}

func (v *AuthJSVerifier) Provider() string { return "authjs" }

func (v *AuthJSVerifier) CookieNames() []string {
	return []string{AuthJSSecureCookie, AuthJSCookie}
}

// Verify decrypts the token and checks expiry. Tokens without exp are
// rejected.
func (v *AuthJSVerifier) Verify(token string) (*Identity, error) {
	jwe, err := jose.ParseEncrypted(token, authJSKeyAlgs, authJSEncs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	plaintext, err := jwe.Decrypt(v.key)
	if err != nil {
		return nil, fmt.Errorf("%w: decrypt failed", ErrInvalidSession)
	}

	var claims authJSClaims
	if err := json.Unmarshal(plaintext, &claims); err != nil {
		return nil, fmt.Errorf("%w: claims json", ErrInvalidSession)
	}
	if claims.Exp == 0 {
		return nil, fmt.Errorf("%w: missing exp", ErrInvalidSession)
	}
	if v.now().Unix() >= claims.Exp {
		return nil, ErrSessionExpired
	}
	if claims.Sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidSession)
	}

	return &Identity{
		Provider: v.Provider(),
		Subject:  claims.Sub,
		Email:    claims.Email,
		Name:     claims.Name,
		Picture:  claims.Picture,
	}, nil
}

// Seal encrypts an identity into a token Verify accepts. The gateway never
// issues sessions itself; this backs the local token tool and tests.
func (v *AuthJSVerifier) Seal(id Identity, ttl time.Duration) (string, error) {
	payload, err := json.Marshal(authJSClaims{
		Sub:     id.Subject,
		Email:   id.Email,
		Name:    id.Name,
		Picture: id.Picture,
		Exp:     v.now().Add(ttl).Unix(),
	})
	if err != nil {
		return "", err
	}

	enc, err := jose.NewEncrypter(jose.A256GCM, jose.Recipient{Algorithm: jose.DIRECT, Key: v.key}, nil)
	if err != nil {
		return "", err
	}
	jwe, err := enc.Encrypt(payload)
	if err != nil {
		return "", err
	}
	return jwe.CompactSerialize()
}
