// Package auth verifies identity-provider session cookies.
package auth

import (
	"errors"
	"net/http"
	"sort"
	"strconv"
	"strings"
)

var (
	ErrNoSession      = errors.New("no session cookie")
	ErrInvalidSession = errors.New("invalid session token")
	ErrSessionExpired = errors.New("session expired")
)

// Identity is the verified subject of a session cookie.
type Identity struct {
	Provider string
	Subject  string
	Email    string
	Name     string
	Picture  string
}

// Verifier validates one provider's session token.
type Verifier interface {
	Provider() string
	CookieNames() []string
	Verify(token string) (*Identity, error)
}

// FromRequest finds the first session cookie the verifier knows about and
// verifies it.
func FromRequest(v Verifier, r *http.Request) (*Identity, error) {
	for _, name := range v.CookieNames() {
		token := readCookie(r, name)
		if token == "" {
			continue
		}
		return v.Verify(token)
	}
	return nil, ErrNoSession
}

// readCookie returns the cookie value, reassembling "<name>.0", "<name>.1"...
// chunks when the provider split an oversized token.
func readCookie(r *http.Request, name string) string {
	if c, err := r.Cookie(name); err == nil && c.Value != "" {
		return c.Value
	}

	type chunk struct {
		idx   int
		value string
	}
	var chunks []chunk
	prefix := name + "."
	for _, c := range r.Cookies() {
		if !strings.HasPrefix(c.Name, prefix) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(c.Name, prefix))
		if err != nil || idx < 0 {
			continue
		}
		chunks = append(chunks, chunk{idx, c.Value})
	}
	if len(chunks) == 0 {
		return ""
	}

	sort.Slice(chunks, func(i, j int) bool { return chunks[i].idx < chunks[j].idx })
	var b strings.Builder
	for i, c := range chunks {
		if c.idx != i {
			return "" // gap in the sequence
		}
		b.WriteString(c.value)
	}
	return b.String()
}
