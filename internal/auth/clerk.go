package auth

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ClerkCookie is the session cookie set by Clerk's front-end SDK.
const ClerkCookie = "__session"

type clerkClaims struct {
	jwt.RegisteredClaims
	AuthorizedParty string `json:"azp,omitempty"`
	Email           string `json:"email,omitempty"`
	Name            string `json:"name,omitempty"`
	ImageURL        string `json:"image_url,omitempty"`
}

// ClerkVerifier checks Clerk session JWTs offline against the instance's
// PEM public key.
type ClerkVerifier struct {
	key     *rsa.PublicKey
	parties map[string]bool
	leeway  time.Duration
}

// NewClerkVerifier parses the PEM key. authorizedParties, when non-empty,
// restricts the accepted azp claims.
func NewClerkVerifier(pemKey string, authorizedParties []string) (*ClerkVerifier, error) {
	// Keys pasted into env files often carry literal \n sequences
	pemKey = strings.ReplaceAll(pemKey, `\n`, "\n")

	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, fmt.Errorf("parse clerk jwt key: %w", err)
	}

	v := &ClerkVerifier{key: key, leeway: 5 * time.Second}
	if len(authorizedParties) > 0 {
		v.parties = make(map[string]bool, len(authorizedParties))
		for _, p := range authorizedParties {
			v.parties[p] = true
		}
	}
	return v, nil
}

func (v *ClerkVerifier) Provider() string { return "clerk" }

func (v *ClerkVerifier) CookieNames() []string { return []string{ClerkCookie} }

// Verify validates signature, expiry and authorized party.
func (v *ClerkVerifier) Verify(token string) (*Identity, error) {
	claims := &clerkClaims{}
	_, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) { return v.key, nil },
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithLeeway(v.leeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrSessionExpired
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}

	if claims.Subject == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidSession)
	}
	if v.parties != nil && claims.AuthorizedParty != "" && !v.parties[claims.AuthorizedParty] {
		return nil, fmt.Errorf("%w: unauthorized party %q", ErrInvalidSession, claims.AuthorizedParty)
	}

	return &Identity{
		Provider: v.Provider(),
		Subject:  claims.Subject,
		Email:    claims.Email,
		Name:     claims.Name,
		Picture:  claims.ImageURL,
	}, nil
}
