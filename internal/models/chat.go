package models

import (
	"time"

	"github.com/google/uuid"
)

// Chat is a conversation owned by a single user.
type Chat struct {
	ID        uuid.UUID `json:"id"`
	UserID    uuid.UUID `json:"user_id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FavoriteModels is a user's ordered list of pinned model ids.
type FavoriteModels struct {
	UserID    uuid.UUID `json:"user_id"`
	Models    []string  `json:"models"`
	UpdatedAt time.Time `json:"updated_at"`
}
