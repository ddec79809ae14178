package crypto

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewUUIDv7 generates a time-ordered UUID v7.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}

// NewMessageID generates a ULID for a chat message.
func NewMessageID() string {
	return ulid.Make().String()
}

// IsMessageID reports whether s is a canonical ULID.
func IsMessageID(s string) bool {
	_, err := ulid.ParseStrict(s)
	return err == nil
}
