package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/eldtechnologies/chatdeck/internal/api/middleware"
	"github.com/eldtechnologies/chatdeck/internal/config"
	"github.com/eldtechnologies/chatdeck/internal/crypto"
	"github.com/eldtechnologies/chatdeck/internal/models"
	"github.com/eldtechnologies/chatdeck/internal/realtime"
	"github.com/eldtechnologies/chatdeck/internal/store"
	"github.com/eldtechnologies/chatdeck/internal/telemetry"
	"github.com/eldtechnologies/chatdeck/internal/validate"
)

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	cfg       *config.Config
	data      store.DataStore
	live      store.LiveStore
	hub       *realtime.Hub
	csrf      *crypto.CSRFSigner
	reporter  *telemetry.Reporter
	analytics telemetry.Analytics
	now       func() time.Time
}

// NewHandler creates a new Handler with the given stores and services.
func NewHandler(
	cfg *config.Config,
	data store.DataStore,
	live store.LiveStore,
	hub *realtime.Hub,
	csrf *crypto.CSRFSigner,
	reporter *telemetry.Reporter,
	analytics telemetry.Analytics,
) *Handler {
	return &Handler{
		cfg:       cfg,
		data:      data,
		live:      live,
		hub:       hub,
		csrf:      csrf,
		reporter:  reporter,
		analytics: analytics,
		now:       time.Now,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// ValidationErrorResponse is the body of a 400 caused by invalid fields.
type ValidationErrorResponse struct {
	Error  string           `json:"error"`
	Issues []validate.Issue `json:"issues"`
}

// internalError reports err and answers 500 with message.
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error, message string) {
	h.reporter.Capture(r, err, message)
	h.Error(w, http.StatusInternalServerError, message)
}

// decode reads a JSON body into dst, answering 400/413 itself on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// valid checks struct tags on v, answering 400 with field issues on failure.
func (h *Handler) valid(w http.ResponseWriter, r *http.Request, v any, extra ...validate.Issue) bool {
	err := validate.Struct(v)
	if err == nil && len(extra) == 0 {
		return true
	}

	var verr *validate.Error
	switch {
	case err == nil:
		verr = &validate.Error{}
	case errors.As(err, &verr):
	default:
		h.internalError(w, r, err, "failed to validate request")
		return false
	}

	h.JSON(w, http.StatusBadRequest, ValidationErrorResponse{
		Error:  "validation failed",
		Issues: append(verr.Issues, extra...),
	})
	return false
}

// currentUser returns the session user or answers 401.
func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) *models.User {
	user := middleware.GetUserFromContext(r.Context())
	if user == nil {
		h.Error(w, http.StatusUnauthorized, "authentication required")
	}
	return user
}

// ownedChat loads the chat named by the {id} URL parameter. Chats owned by
// someone else are reported as missing.
func (h *Handler) ownedChat(w http.ResponseWriter, r *http.Request, user *models.User) *models.Chat {
	chatID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		h.Error(w, http.StatusBadRequest, "invalid chat ID format")
		return nil
	}

	chat, err := h.data.GetChat(r.Context(), chatID)
	if err != nil {
		h.internalError(w, r, err, "database error")
		return nil
	}
	if chat == nil || chat.UserID != user.ID {
		h.Error(w, http.StatusNotFound, "chat not found")
		return nil
	}
	return chat
}

// publish sends a chat event, logging failures without failing the request.
func (h *Handler) publish(r *http.Request, event models.ChatEvent) {
	if err := h.live.Publish(r.Context(), event); err != nil {
		h.reporter.Capture(r, err, "failed to publish chat event")
	}
}

// queryInt parses a non-negative integer query parameter, falling back to
// def and clamping to max when max > 0.
func queryInt(r *http.Request, name string, def, max int) int {
	n := def
	if raw := r.URL.Query().Get(name); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			n = v
		}
	}
	if max > 0 && n > max {
		n = max
	}
	return n
}

// sanitizeTitle trims a title and removes control characters.
func sanitizeTitle(title string) string {
	title = strings.TrimSpace(title)
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, title)
}
