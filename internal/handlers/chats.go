package handlers

import (
	"net/http"

	"github.com/eldtechnologies/chatdeck/internal/metrics"
	"github.com/eldtechnologies/chatdeck/internal/models"
)

const defaultChatTitle = "New chat"

// CreateChatRequest represents the chat creation request.
type CreateChatRequest struct {
	Title string `json:"title" validate:"max=200"`
	Model string `json:"model" validate:"required,max=200"`
}

// RenameChatRequest represents the chat rename request.
type RenameChatRequest struct {
	Title string `json:"title" validate:"required,min=1,max=200"`
}

// ChatListResponse represents the chat list response.
type ChatListResponse struct {
	Chats  []models.Chat `json:"chats"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// ListChats lists the user's chats, most recently updated first.
func (h *Handler) ListChats(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	limit := queryInt(r, "limit", 20, 100)
	if limit == 0 {
		limit = 20
	}
	offset := queryInt(r, "offset", 0, 0)

	chats, total, err := h.data.ListChats(r.Context(), user.ID, limit, offset)
	if err != nil {
		h.internalError(w, r, err, "database error")
		return
	}

	h.JSON(w, http.StatusOK, ChatListResponse{
		Chats:  chats,
		Total:  total,
		Limit:  limit,
		Offset: offset,
	})
}

// CreateChat creates a chat for the user.
func (h *Handler) CreateChat(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}

	var req CreateChatRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Title = sanitizeTitle(req.Title)
	if !h.valid(w, r, &req) {
		return
	}
	if req.Title == "" {
		req.Title = defaultChatTitle
	}

	chat, err := h.data.CreateChat(r.Context(), user.ID, req.Title, req.Model)
	if err != nil {
		h.internalError(w, r, err, "failed to create chat")
		return
	}

	metrics.ChatsCreated.Inc()
	h.analytics.Track(user.ID.String(), "chat_created", map[string]any{
		"chat_id": chat.ID.String(),
		"model":   chat.Model,
	})

	h.JSON(w, http.StatusCreated, chat)
}

// GetChat returns a single chat.
func (h *Handler) GetChat(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	chat := h.ownedChat(w, r, user)
	if chat == nil {
		return
	}
	h.JSON(w, http.StatusOK, chat)
}

// RenameChat changes a chat's title.
func (h *Handler) RenameChat(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	chat := h.ownedChat(w, r, user)
	if chat == nil {
		return
	}

	var req RenameChatRequest
	if !h.decode(w, r, &req) {
		return
	}
	req.Title = sanitizeTitle(req.Title)
	if !h.valid(w, r, &req) {
		return
	}

	if err := h.data.RenameChat(r.Context(), chat.ID, req.Title); err != nil {
		h.internalError(w, r, err, "failed to rename chat")
		return
	}

	updated, err := h.data.GetChat(r.Context(), chat.ID)
	if err != nil {
		h.internalError(w, r, err, "database error")
		return
	}
	if updated == nil {
		h.Error(w, http.StatusNotFound, "chat not found")
		return
	}

	h.publish(r, models.ChatEvent{
		Type:   models.EventChatRenamed,
		ChatID: chat.ID.String(),
		Title:  updated.Title,
	})

	h.JSON(w, http.StatusOK, updated)
}

// DeleteChat removes a chat and its messages.
func (h *Handler) DeleteChat(w http.ResponseWriter, r *http.Request) {
	user := h.currentUser(w, r)
	if user == nil {
		return
	}
	chat := h.ownedChat(w, r, user)
	if chat == nil {
		return
	}

	if err := h.data.DeleteChat(r.Context(), chat.ID); err != nil {
		h.internalError(w, r, err, "failed to delete chat")
		return
	}

	chatID := chat.ID.String()
	if err := h.live.ClearReplyPending(r.Context(), chatID); err != nil {
		h.reporter.Capture(r, err, "failed to clear reply marker")
	}
	h.publish(r, models.ChatEvent{Type: models.EventChatDeleted, ChatID: chatID})

	w.WriteHeader(http.StatusNoContent)
}
