package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatdeck/internal/auth"
	"github.com/eldtechnologies/chatdeck/internal/metrics"
	"github.com/eldtechnologies/chatdeck/internal/models"
)

type contextKey string

const UserContextKey contextKey = "user"

// UserStore resolves verified identities to local users.
type UserStore interface {
	UpsertUser(ctx context.Context, u *models.User) (*models.User, error)
}

// SessionMiddleware gates routes on the identity provider's session cookie.
type SessionMiddleware struct {
	verifier  auth.Verifier
	users     UserStore
	signInURL string
	logger    zerolog.Logger
}

// NewSessionMiddleware creates the session gate. A nil verifier means the
// provider could not be initialized; gated routes then answer 500.
func NewSessionMiddleware(verifier auth.Verifier, users UserStore, signInURL string, logger zerolog.Logger) *SessionMiddleware {
	return &SessionMiddleware{
		verifier:  verifier,
		users:     users,
		signInURL: signInURL,
		logger:    logger,
	}
}

// RequireSession verifies the session cookie and loads the user into the
// request context. API callers get 401; browser navigations are redirected
// to the sign-in page.
func (m *SessionMiddleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.verifier == nil {
			jsonError(w, http.StatusInternalServerError, "authentication not configured")
			return
		}

		identity, err := auth.FromRequest(m.verifier, r)
		if err != nil {
			reason := failureReason(err)
			metrics.AuthFailures.WithLabelValues(reason).Inc()
			if reason != "missing" {
				m.logger.Warn().
					Str("type", "security").
					Str("event", "session_rejected").
					Str("reason", reason).
					Str("ip", RealIP(r)).
					Err(err).
					Msg("session cookie rejected")
			}
			m.deny(w, r)
			return
		}

		user, err := m.users.UpsertUser(r.Context(), &models.User{
			Provider:   identity.Provider,
			ExternalID: identity.Subject,
			Email:      identity.Email,
			Name:       identity.Name,
			ImageURL:   identity.Picture,
		})
		if err != nil || user == nil {
			m.logger.Error().Err(err).Str("subject", identity.Subject).Msg("failed to load user")
			jsonError(w, http.StatusInternalServerError, "failed to load user")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *SessionMiddleware) deny(w http.ResponseWriter, r *http.Request) {
	if wantsHTML(r) {
		http.Redirect(w, r, m.redirectURL(r), http.StatusFound)
		return
	}
	jsonError(w, http.StatusUnauthorized, "authentication required")
}

// redirectURL appends the original location so the sign-in page can return.
func (m *SessionMiddleware) redirectURL(r *http.Request) string {
	u, err := url.Parse(m.signInURL)
	if err != nil {
		return m.signInURL
	}
	q := u.Query()
	q.Set("redirect_url", r.URL.RequestURI())
	u.RawQuery = q.Encode()
	return u.String()
}

// wantsHTML reports whether the request is a browser page navigation.
func wantsHTML(r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		return false
	}
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrNoSession):
		return "missing"
	case errors.Is(err, auth.ErrSessionExpired):
		return "expired"
	default:
		return "invalid"
	}
}

func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// GetUserFromContext retrieves the authenticated user from the request context.
func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *models.User) context.Context {
	return context.WithValue(ctx, UserContextKey, user)
}

// PageGate applies RequireSession to paths under any of the protected
// prefixes and passes everything else through.
func (m *SessionMiddleware) PageGate(prefixes []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		gated := m.RequireSession(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isProtected(r.URL.Path, prefixes) {
				gated.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isProtected(path string, prefixes []string) bool {
	for _, p := range prefixes {
		p = strings.TrimSuffix(p, "/")
		if path == p || strings.HasPrefix(path, p+"/") {
			return true
		}
	}
	return false
}
