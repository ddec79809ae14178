package handlers

import (
	"net/http"

	"github.com/eldtechnologies/chatdeck/internal/api/middleware"
)

// CSRFTokenResponse carries a freshly issued CSRF token.
type CSRFTokenResponse struct {
	Token string `json:"token"`
}

// CSRFToken issues a signed token and sets it as the double-submit cookie.
// The cookie is readable by scripts so clients can echo it in the header.
func (h *Handler) CSRFToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrf.Issue()
	if err != nil {
		h.internalError(w, r, err, "failed to issue csrf token")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.CSRFCookie,
		Value:    token,
		Path:     "/",
		SameSite: http.SameSiteStrictMode,
		Secure:   !h.cfg.IsDevelopment(),
	})

	h.JSON(w, http.StatusOK, CSRFTokenResponse{Token: token})
}
