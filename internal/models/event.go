package models

// Chat event types pushed to realtime subscribers.
const (
	EventMessageStaged  = "message.staged"
	EventMessageCreated = "message.created"
	// Sent when a staged message could not be stored.
	EventMessageDiscarded = "message.discarded"
	EventChatRenamed      = "chat.renamed"
	EventChatDeleted      = "chat.deleted"
)

// ChatEvent is a change notification for a single chat.
type ChatEvent struct {
	Type    string   `json:"type"`
	ChatID  string   `json:"chat_id"`
	Message *Message `json:"message,omitempty"`
	Title   string   `json:"title,omitempty"`
}
