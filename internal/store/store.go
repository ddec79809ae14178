package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/eldtechnologies/chatdeck/internal/models"
)

// Limits shared by the store implementations and handlers.
const (
	MaxFavoriteModels = 20
	stagedTTL         = 10 * time.Minute
	replyPendingTTL   = 5 * time.Minute
)

// ErrDuplicateID is returned by CreateMessage when the message ID is taken.
var ErrDuplicateID = errors.New("message id already exists")

// MessageCursor marks where a message page ends. ListMessages returns
// messages strictly older than (Before, BeforeID) in (created_at, id) order.
// The zero cursor starts at the newest message.
type MessageCursor struct {
	Before   int64
	BeforeID string
}

func (c MessageCursor) bounds() (int64, string) {
	if c.Before <= 0 {
		return 1<<63 - 1, ""
	}
	return c.Before, c.BeforeID
}

// DataStore defines the interface for persistent storage of users, chats,
// messages and favorites. Both PostgresStore and SQLiteStore implement it.
// Lookups return (nil, nil) when the record does not exist.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	UpsertUser(ctx context.Context, u *models.User) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	CountUsers(ctx context.Context) (int64, error)

	// Chat operations
	CreateChat(ctx context.Context, userID uuid.UUID, title, model string) (*models.Chat, error)
	GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error)
	ListChats(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Chat, int, error)
	RenameChat(ctx context.Context, id uuid.UUID, title string) error
	DeleteChat(ctx context.Context, id uuid.UUID) error
	TouchChat(ctx context.Context, id uuid.UUID) error

	// Message operations
	CreateMessage(ctx context.Context, msg *models.Message) error
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListMessages(ctx context.Context, chatID uuid.UUID, limit int, cursor MessageCursor) ([]models.Message, error)

	// Favorites
	GetFavoriteModels(ctx context.Context, userID uuid.UUID) (*models.FavoriteModels, error)
	SetFavoriteModels(ctx context.Context, userID uuid.UUID, list []string) (*models.FavoriteModels, error)
}

// LiveStore holds short-lived chat state: staged (not yet persisted)
// messages, pending-reply markers and the chat event bus. RedisStore and
// MemoryStore implement it.
type LiveStore interface {
	Close() error
	Ping(ctx context.Context) error

	StageMessage(ctx context.Context, msg *models.Message) error
	UnstageMessage(ctx context.Context, chatID, msgID string) error
	StagedMessages(ctx context.Context, chatID string) ([]models.Message, error)

	MarkReplyPending(ctx context.Context, chatID string, since time.Time) error
	ClearReplyPending(ctx context.Context, chatID string) error
	// ReplyPendingSince returns the zero time when no reply is pending.
	ReplyPendingSince(ctx context.Context, chatID string) (time.Time, error)

	Publish(ctx context.Context, event models.ChatEvent) error
	// Subscribe delivers every published event until ctx is cancelled.
	Subscribe(ctx context.Context) (<-chan models.ChatEvent, error)
}
