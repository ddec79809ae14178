package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/eldtechnologies/chatdeck/internal/chat"
	"github.com/eldtechnologies/chatdeck/internal/crypto"
	"github.com/eldtechnologies/chatdeck/internal/metrics"
	"github.com/eldtechnologies/chatdeck/internal/models"
	"github.com/eldtechnologies/chatdeck/internal/store"
	"github.com/eldtechnologies/chatdeck/internal/validate"
)

// MaxMessageBytes bounds message content.
const MaxMessageBytes = 32000

// PostMessageRequest represents the post message request.
type PostMessageRequest struct {
	Content  string `json:"content" validate:"required"`
	Role     string `json:"role" validate:"required,oneof=user assistant"`
	Model    string `json:"model" validate:"max=200"`
	ClientID string `json:"client_id" validate:"max=64"`
}

// MessageListResponse represents the list messages response. When HasMore
// is set, NextBefore and NextBeforeID are the cursor for the older page.
type MessageListResponse struct {
	Messages     []models.Message `json:"messages"`
	HasMore      bool             `json:"has_more"`
	NextBefore   int64            `json:"next_before,omitempty"`
	NextBeforeID string           `json:"next_before_id,omitempty"`
}

// StatusResponse reports whether the chat waits on an assistant reply.
type StatusResponse struct {
	ChatID         string         `json:"chat_id"`
	Pending        bool           `json:"pending"`
	Since          int64          `json:"since,omitempty"`
	ElapsedSeconds float64        `json:"elapsed_seconds"`
	State          chat.WaitState `json:"state"`
}

// ListMessages returns a page of persisted messages. The newest page also
// includes staged messages that are still in flight.
func (h *Handler) ListMessages(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	c := h.ownedChat(w, r, user)
	if c == nil {
		return
	}

	limit := queryInt(r, "limit", 50, 200)
	if limit == 0 {
		limit = 50
	}

	var cursor store.MessageCursor
	q := r.URL.Query()
	if b, err := strconv.ParseInt(q.Get("before"), 10, 64); err == nil && b > 0 {
		cursor.Before = b
		if id := q.Get("before_id"); crypto.IsMessageID(id) {
			cursor.BeforeID = id
		}
	}

	// Fetch one extra row for the has_more check
	persisted, err := h.data.ListMessages(r.Context(), c.ID, limit+1, cursor)
	if err != nil {
		h.internalError(w, r, err, "failed to fetch messages")
		return
	}

	resp := MessageListResponse{HasMore: len(persisted) > limit}
	if resp.HasMore {
		persisted = persisted[1:]
		resp.NextBefore = persisted[0].CreatedAt
		resp.NextBeforeID = persisted[0].ID
	}

	var staged []models.Message
	if cursor.Before == 0 {
		staged, err = h.live.StagedMessages(r.Context(), c.ID.String())
		if err != nil {
			// Persisted history is still useful without in-flight messages
			h.reporter.Capture(r, err, "failed to fetch staged messages")
			staged = nil
		}
	}

	resp.Messages = chat.MergeMessages(persisted, staged)
	h.JSON(w, http.StatusOK, resp)
}

// PostMessage stores a message. The message is staged and announced before
// it is persisted so other tabs can render it immediately.
//
// A ULID client_id becomes the message ID. Posting the same client_id to the
// same chat again returns the stored message with 200. A client_id already
// used in another chat is ignored and a fresh ID is assigned.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	c := h.ownedChat(w, r, user)
	if c == nil {
		return
	}

	var req PostMessageRequest
	if !h.decode(w, r, &req) {
		return
	}
	var extra []validate.Issue
	if len(req.Content) > MaxMessageBytes {
		extra = append(extra, validate.Issue{
			Field:   "content",
			Message: "must be at most " + strconv.Itoa(MaxMessageBytes) + " bytes",
		})
	}
	if !h.valid(w, r, &req, extra...) {
		return
	}

	ctx := r.Context()
	chatID := c.ID.String()
	now := h.now()

	msg := &models.Message{
		ChatID:    chatID,
		Role:      req.Role,
		Content:   req.Content,
		Model:     req.Model,
		CreatedAt: now.UnixMilli(),
	}
	if crypto.IsMessageID(req.ClientID) {
		existing, err := h.data.GetMessage(ctx, req.ClientID)
		if err != nil {
			h.internalError(w, r, err, "failed to store message")
			return
		}
		if existing == nil {
			msg.ID = req.ClientID
		} else if existing.ChatID == chatID {
			h.JSON(w, http.StatusOK, existing)
			return
		}
	}
	if msg.ID == "" {
		msg.ID = crypto.NewMessageID()
	}

	announced := false
	if err := h.live.StageMessage(ctx, msg); err != nil {
		h.reporter.Capture(r, err, "failed to stage message")
	} else {
		staged := *msg
		staged.Staged = true
		h.publish(r, models.ChatEvent{Type: models.EventMessageStaged, ChatID: chatID, Message: &staged})
		announced = true
	}

	if err := h.data.CreateMessage(ctx, msg); err != nil {
		if uerr := h.live.UnstageMessage(ctx, chatID, msg.ID); uerr != nil {
			h.reporter.Capture(r, uerr, "failed to unstage message")
		}
		// A concurrent retry of the same post stored it first
		if errors.Is(err, store.ErrDuplicateID) {
			if existing, gerr := h.data.GetMessage(ctx, msg.ID); gerr == nil && existing != nil && existing.ChatID == chatID {
				h.JSON(w, http.StatusOK, existing)
				return
			}
		}
		if announced {
			h.publish(r, models.ChatEvent{Type: models.EventMessageDiscarded, ChatID: chatID, Message: msg})
		}
		h.internalError(w, r, err, "failed to store message")
		return
	}

	if err := h.data.TouchChat(ctx, c.ID); err != nil {
		h.reporter.Capture(r, err, "failed to touch chat")
	}
	if err := h.live.UnstageMessage(ctx, chatID, msg.ID); err != nil {
		h.reporter.Capture(r, err, "failed to unstage message")
	}
	h.publish(r, models.ChatEvent{Type: models.EventMessageCreated, ChatID: chatID, Message: msg})

	var err error
	switch msg.Role {
	case models.RoleUser:
		err = h.live.MarkReplyPending(ctx, chatID, now)
	case models.RoleAssistant:
		err = h.live.ClearReplyPending(ctx, chatID)
	}
	if err != nil {
		h.reporter.Capture(r, err, "failed to update reply marker")
	}

	metrics.MessagesPosted.WithLabelValues(msg.Role).Inc()
	h.analytics.Track(user.ID.String(), "message_sent", map[string]any{
		"chat_id": chatID,
		"role":    msg.Role,
		"model":   msg.Model,
		"bytes":   len(msg.Content),
	})

	h.JSON(w, http.StatusCreated, msg)
}

// Status reports how long the chat has been waiting for a reply.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	c := h.ownedChat(w, r, user)
	if c == nil {
		return
	}

	chatID := c.ID.String()
	since, err := h.live.ReplyPendingSince(r.Context(), chatID)
	if err != nil {
		h.internalError(w, r, err, "failed to read chat status")
		return
	}

	resp := StatusResponse{ChatID: chatID, State: chat.WaitNormal}
	if !since.IsZero() {
		elapsed := h.now().Sub(since)
		if elapsed < 0 {
			elapsed = 0
		}
		resp.Pending = true
		resp.Since = since.UnixMilli()
		resp.ElapsedSeconds = elapsed.Round(time.Millisecond).Seconds()
		resp.State = chat.ClassifyWait(elapsed)
	}

	h.JSON(w, http.StatusOK, resp)
}
