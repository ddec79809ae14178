package models

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message represents a chat message.
type Message struct {
	ID        string `json:"id"` // ULID
	ChatID    string `json:"chat_id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	Model     string `json:"model,omitempty"`
	CreatedAt int64  `json:"ts"`               // Unix ms
	Staged    bool   `json:"staged,omitempty"` // not yet persisted
}
