package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the local record for an identity-provider account.
// (Provider, ExternalID) is unique.
type User struct {
	ID         uuid.UUID `json:"id"`
	Provider   string    `json:"provider"`
	ExternalID string    `json:"external_id"`
	Email      string    `json:"email,omitempty"`
	Name       string    `json:"name,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
