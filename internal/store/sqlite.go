package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/eldtechnologies/chatdeck/internal/crypto"
	"github.com/eldtechnologies/chatdeck/internal/models"
)

// SQLiteStore handles SQLite database operations for local development.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store.
// If dbPath is empty, defaults to "./data/chatdeck.db"
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = "./data/chatdeck.db"
	}

	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}

	// Initialize schema
	if err := store.initSchema(ctx); err != nil {
		return nil, err
	}

	return store, nil
}

// initSchema creates tables if they don't exist.
func (s *SQLiteStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		provider TEXT NOT NULL,
		external_id TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		UNIQUE (provider, external_id)
	);

	CREATE TABLE IF NOT EXISTS chats (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		title TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		role TEXT NOT NULL CHECK (role IN ('user', 'assistant', 'system')),
		content TEXT NOT NULL,
		model TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS favorite_models (
		user_id TEXT PRIMARY KEY REFERENCES users(id) ON DELETE CASCADE,
		models TEXT NOT NULL DEFAULT '[]',
		updated_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chats_user_updated ON chats(user_id, updated_at);
	CREATE INDEX IF NOT EXISTS idx_messages_chat_cursor ON messages(chat_id, created_at, id);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the database connection.
func (s *SQLiteStore) Close() {
	s.db.Close()
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func now() time.Time {
	return time.Now().UTC()
}

// UpsertUser inserts the user or refreshes its profile fields.
func (s *SQLiteStore) UpsertUser(ctx context.Context, u *models.User) (*models.User, error) {
	ts := now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, provider, external_id, email, name, image_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (provider, external_id) DO UPDATE
		SET email = excluded.email, name = excluded.name, image_url = excluded.image_url, updated_at = excluded.updated_at
		WHERE users.email != excluded.email OR users.name != excluded.name OR users.image_url != excluded.image_url
	`, crypto.NewUUIDv7().String(), u.Provider, u.ExternalID, u.Email, u.Name, u.ImageURL, ts, ts)
	if err != nil {
		return nil, err
	}

	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, provider, external_id, email, name, image_url, created_at, updated_at
		FROM users WHERE provider = ? AND external_id = ?
	`, u.Provider, u.ExternalID))
}

// GetUserByID retrieves a user by ID.
func (s *SQLiteStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, provider, external_id, email, name, image_url, created_at, updated_at
		FROM users WHERE id = ?
	`, id.String()))
}

func (s *SQLiteStore) scanUser(row *sql.Row) (*models.User, error) {
	u := &models.User{}
	var idStr string
	err := row.Scan(
		&idStr,
		&u.Provider,
		&u.ExternalID,
		&u.Email,
		&u.Name,
		&u.ImageURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.ID = uuid.MustParse(idStr)
	return u, nil
}

// CountUsers returns the total number of users.
func (s *SQLiteStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

// CreateChat creates a new chat owned by userID.
func (s *SQLiteStore) CreateChat(ctx context.Context, userID uuid.UUID, title, model string) (*models.Chat, error) {
	id := crypto.NewUUIDv7()
	ts := now()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chats (id, user_id, title, model, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id.String(), userID.String(), title, model, ts, ts)
	if err != nil {
		return nil, err
	}

	return s.GetChat(ctx, id)
}

// GetChat retrieves a chat by ID.
func (s *SQLiteStore) GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	chat := &models.Chat{}
	var idStr, userStr string
	err := s.db.QueryRowContext(ctx, `
		SELECT id, user_id, title, model, created_at, updated_at
		FROM chats WHERE id = ?
	`, id.String()).Scan(
		&idStr,
		&userStr,
		&chat.Title,
		&chat.Model,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	chat.ID = uuid.MustParse(idStr)
	chat.UserID = uuid.MustParse(userStr)
	return chat, nil
}

// ListChats retrieves a user's chats, most recently updated first.
func (s *SQLiteStore) ListChats(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Chat, int, error) {
	var total int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chats WHERE user_id = ?`, userID.String()).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, title, model, created_at, updated_at
		FROM chats
		WHERE user_id = ?
		ORDER BY updated_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, userID.String(), limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	chats := make([]models.Chat, 0, limit)
	for rows.Next() {
		var chat models.Chat
		var idStr, userStr string
		if err := rows.Scan(
			&idStr,
			&userStr,
			&chat.Title,
			&chat.Model,
			&chat.CreatedAt,
			&chat.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		chat.ID = uuid.MustParse(idStr)
		chat.UserID = uuid.MustParse(userStr)
		chats = append(chats, chat)
	}

	return chats, total, rows.Err()
}

// RenameChat sets a chat's title.
func (s *SQLiteStore) RenameChat(ctx context.Context, id uuid.UUID, title string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE chats SET title = ?, updated_at = ? WHERE id = ?
	`, title, now(), id.String())
	return err
}

// DeleteChat removes a chat and, by cascade, its messages.
func (s *SQLiteStore) DeleteChat(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, id.String())
	return err
}

// TouchChat bumps updated_at.
func (s *SQLiteStore) TouchChat(ctx context.Context, id uuid.UUID) error {
	_, err := s.db.ExecContext(ctx, `UPDATE chats SET updated_at = ? WHERE id = ?`, now(), id.String())
	return err
}

// CreateMessage stores a message. ID and timestamp are filled in when empty.
func (s *SQLiteStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	if msg.ID == "" {
		msg.ID = crypto.NewMessageID()
	}
	if msg.CreatedAt == 0 {
		msg.CreatedAt = time.Now().UnixMilli()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, chat_id, role, content, model, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.ChatID, msg.Role, msg.Content, msg.Model, msg.CreatedAt)
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey {
		return ErrDuplicateID
	}
	return err
}

// GetMessage retrieves a message by ID.
func (s *SQLiteStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	msg := &models.Message{}
	err := s.db.QueryRowContext(ctx, `
		SELECT id, chat_id, role, content, model, created_at FROM messages WHERE id = ?
	`, id).Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &msg.Model, &msg.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// ListMessages returns up to limit messages older than the cursor, in
// ascending (created_at, id) order.
func (s *SQLiteStore) ListMessages(ctx context.Context, chatID uuid.UUID, limit int, cursor MessageCursor) ([]models.Message, error) {
	before, beforeID := cursor.bounds()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, chat_id, role, content, model, created_at FROM (
			SELECT id, chat_id, role, content, model, created_at
			FROM messages
			WHERE chat_id = ? AND (created_at, id) < (?, ?)
			ORDER BY created_at DESC, id DESC
			LIMIT ?
		)
		ORDER BY created_at ASC, id ASC
	`, chatID.String(), before, beforeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0, limit)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content, &msg.Model, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// GetFavoriteModels returns the user's favorites, or an empty list.
func (s *SQLiteStore) GetFavoriteModels(ctx context.Context, userID uuid.UUID) (*models.FavoriteModels, error) {
	fav := &models.FavoriteModels{UserID: userID, Models: []string{}}
	var raw string
	err := s.db.QueryRowContext(ctx, `
		SELECT models, updated_at FROM favorite_models WHERE user_id = ?
	`, userID.String()).Scan(&raw, &fav.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fav, nil
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(raw), &fav.Models); err != nil {
		return nil, err
	}
	return fav, nil
}

// SetFavoriteModels replaces the user's favorites.
func (s *SQLiteStore) SetFavoriteModels(ctx context.Context, userID uuid.UUID, list []string) (*models.FavoriteModels, error) {
	if list == nil {
		list = []string{}
	}
	raw, err := json.Marshal(list)
	if err != nil {
		return nil, err
	}

	ts := now()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO favorite_models (user_id, models, updated_at)
		VALUES (?, ?, ?)
		ON CONFLICT (user_id) DO UPDATE SET models = excluded.models, updated_at = excluded.updated_at
	`, userID.String(), string(raw), ts)
	if err != nil {
		return nil, err
	}

	return &models.FavoriteModels{UserID: userID, Models: list, UpdatedAt: ts}, nil
}
