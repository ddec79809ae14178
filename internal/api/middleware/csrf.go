package middleware

import (
	"net/http"

	"github.com/eldtechnologies/chatdeck/internal/crypto"
	"github.com/eldtechnologies/chatdeck/internal/metrics"
)

// Double-submit names shared with the token endpoint.
const (
	CSRFCookie = "csrf_token"
	CSRFHeader = "X-CSRF-Token"
)

// CSRF rejects unsafe requests whose header token does not match the
// cookie token or carries a bad signature.
func CSRF(signer *crypto.CSRFSigner) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			switch r.Method {
			case http.MethodGet, http.MethodHead, http.MethodOptions:
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get(CSRFHeader)
			cookie, err := r.Cookie(CSRFCookie)
			if err != nil || header == "" || !crypto.TokensEqual(header, cookie.Value) || signer.Verify(header) != nil {
				metrics.CSRFRejections.Inc()
				jsonError(w, http.StatusForbidden, "invalid csrf token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
