package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/eldtechnologies/chatdeck/internal/crypto"
	"github.com/eldtechnologies/chatdeck/internal/metrics"
	"github.com/eldtechnologies/chatdeck/internal/models"
)

// uniqueViolation is the SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// PostgresStore handles PostgreSQL database operations.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates a new PostgreSQL store with a connection pool.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

// Close closes the database connection pool.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Ping checks the database connection.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func observe(start time.Time) {
	metrics.StoreLatency.WithLabelValues("postgres").Observe(time.Since(start).Seconds())
}

const userColumns = `id, provider, external_id, email, name, image_url, created_at, updated_at`

func scanUser(row pgx.Row) (*models.User, error) {
	u := &models.User{}
	err := row.Scan(
		&u.ID,
		&u.Provider,
		&u.ExternalID,
		&u.Email,
		&u.Name,
		&u.ImageURL,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return u, nil
}

// UpsertUser inserts the user or refreshes its profile fields. Rows are only
// rewritten when a profile field actually changed.
func (s *PostgresStore) UpsertUser(ctx context.Context, u *models.User) (*models.User, error) {
	defer observe(time.Now())

	user, err := scanUser(s.pool.QueryRow(ctx, `
		INSERT INTO users (id, provider, external_id, email, name, image_url)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (provider, external_id) DO UPDATE
		SET email = EXCLUDED.email, name = EXCLUDED.name, image_url = EXCLUDED.image_url, updated_at = NOW()
		WHERE (users.email, users.name, users.image_url)
			IS DISTINCT FROM (EXCLUDED.email, EXCLUDED.name, EXCLUDED.image_url)
		RETURNING `+userColumns,
		crypto.NewUUIDv7(), u.Provider, u.ExternalID, u.Email, u.Name, u.ImageURL,
	))
	if err != nil || user != nil {
		return user, err
	}

	// Nothing changed, so RETURNING produced no row
	return scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE provider = $1 AND external_id = $2
	`, u.Provider, u.ExternalID))
}

// GetUserByID retrieves a user by ID.
func (s *PostgresStore) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	defer observe(time.Now())
	return scanUser(s.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
}

// CountUsers returns the total number of users.
func (s *PostgresStore) CountUsers(ctx context.Context) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
	return count, err
}

const chatColumns = `id, user_id, title, model, created_at, updated_at`

func scanChat(row pgx.Row) (*models.Chat, error) {
	chat := &models.Chat{}
	err := row.Scan(
		&chat.ID,
		&chat.UserID,
		&chat.Title,
		&chat.Model,
		&chat.CreatedAt,
		&chat.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return chat, nil
}

// CreateChat creates a new chat owned by userID.
func (s *PostgresStore) CreateChat(ctx context.Context, userID uuid.UUID, title, model string) (*models.Chat, error) {
	defer observe(time.Now())
	return scanChat(s.pool.QueryRow(ctx, `
		INSERT INTO chats (id, user_id, title, model)
		VALUES ($1, $2, $3, $4)
		RETURNING `+chatColumns,
		crypto.NewUUIDv7(), userID, title, model,
	))
}

// GetChat retrieves a chat by ID.
func (s *PostgresStore) GetChat(ctx context.Context, id uuid.UUID) (*models.Chat, error) {
	defer observe(time.Now())
	return scanChat(s.pool.QueryRow(ctx, `SELECT `+chatColumns+` FROM chats WHERE id = $1`, id))
}

// ListChats retrieves a user's chats, most recently updated first.
func (s *PostgresStore) ListChats(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Chat, int, error) {
	defer observe(time.Now())

	var total int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM chats WHERE user_id = $1`, userID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+chatColumns+`
		FROM chats
		WHERE user_id = $1
		ORDER BY updated_at DESC, id DESC
		LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	chats := make([]models.Chat, 0, limit)
	for rows.Next() {
		var chat models.Chat
		if err := rows.Scan(
			&chat.ID,
			&chat.UserID,
			&chat.Title,
			&chat.Model,
			&chat.CreatedAt,
			&chat.UpdatedAt,
		); err != nil {
			return nil, 0, err
		}
		chats = append(chats, chat)
	}

	return chats, total, rows.Err()
}

// RenameChat sets a chat's title.
func (s *PostgresStore) RenameChat(ctx context.Context, id uuid.UUID, title string) error {
	defer observe(time.Now())
	_, err := s.pool.Exec(ctx, `
		UPDATE chats SET title = $2, updated_at = NOW() WHERE id = $1
	`, id, title)
	return err
}

// DeleteChat removes a chat and, by cascade, its messages.
func (s *PostgresStore) DeleteChat(ctx context.Context, id uuid.UUID) error {
	defer observe(time.Now())
	_, err := s.pool.Exec(ctx, `DELETE FROM chats WHERE id = $1`, id)
	return err
}

// TouchChat bumps updated_at.
func (s *PostgresStore) TouchChat(ctx context.Context, id uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `UPDATE chats SET updated_at = NOW() WHERE id = $1`, id)
	return err
}

// CreateMessage stores a message. ID and timestamp are filled in when empty.
func (s *PostgresStore) CreateMessage(ctx context.Context, msg *models.Message) error {
	defer observe(time.Now())

	if msg.ID == "" {
		msg.ID = crypto.NewMessageID()
	}
	if msg.CreatedAt == 0 {
		msg.CreatedAt = time.Now().UnixMilli()
	}

	chatID, err := uuid.Parse(msg.ChatID)
	if err != nil {
		return err
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO messages (id, chat_id, role, content, model, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, msg.ID, chatID, msg.Role, msg.Content, msg.Model, msg.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "messages_pkey" {
		return ErrDuplicateID
	}
	return err
}

// GetMessage retrieves a message by ID.
func (s *PostgresStore) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	defer observe(time.Now())

	var msg models.Message
	var cid uuid.UUID
	err := s.pool.QueryRow(ctx, `
		SELECT id, chat_id, role, content, model, created_at FROM messages WHERE id = $1
	`, id).Scan(&msg.ID, &cid, &msg.Role, &msg.Content, &msg.Model, &msg.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	msg.ChatID = cid.String()
	return &msg, nil
}

// ListMessages returns up to limit messages older than the cursor, in
// ascending (created_at, id) order.
func (s *PostgresStore) ListMessages(ctx context.Context, chatID uuid.UUID, limit int, cursor MessageCursor) ([]models.Message, error) {
	defer observe(time.Now())

	before, beforeID := cursor.bounds()

	rows, err := s.pool.Query(ctx, `
		SELECT id, chat_id, role, content, model, created_at FROM (
			SELECT id, chat_id, role, content, model, created_at
			FROM messages
			WHERE chat_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		) recent
		ORDER BY created_at ASC, id ASC
	`, chatID, before, beforeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0, limit)
	for rows.Next() {
		var msg models.Message
		var cid uuid.UUID
		if err := rows.Scan(&msg.ID, &cid, &msg.Role, &msg.Content, &msg.Model, &msg.CreatedAt); err != nil {
			return nil, err
		}
		msg.ChatID = cid.String()
		messages = append(messages, msg)
	}

	return messages, rows.Err()
}

// GetFavoriteModels returns the user's favorites, or an empty list.
func (s *PostgresStore) GetFavoriteModels(ctx context.Context, userID uuid.UUID) (*models.FavoriteModels, error) {
	fav := &models.FavoriteModels{UserID: userID, Models: []string{}}
	err := s.pool.QueryRow(ctx, `
		SELECT models, updated_at FROM favorite_models WHERE user_id = $1
	`, userID).Scan(&fav.Models, &fav.UpdatedAt)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	return fav, nil
}

// SetFavoriteModels replaces the user's favorites.
func (s *PostgresStore) SetFavoriteModels(ctx context.Context, userID uuid.UUID, list []string) (*models.FavoriteModels, error) {
	if list == nil {
		list = []string{}
	}
	fav := &models.FavoriteModels{UserID: userID}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO favorite_models (user_id, models, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (user_id) DO UPDATE SET models = EXCLUDED.models, updated_at = NOW()
		RETURNING models, updated_at
	`, userID, list).Scan(&fav.Models, &fav.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return fav, nil
}
