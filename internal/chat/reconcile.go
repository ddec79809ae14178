// Package chat holds the pure message and wait-time rules shared by the
// HTTP handlers and the realtime hub.
package chat

import (
	"sort"

	"github.com/eldtechnologies/chatdeck/internal/models"
)

type confirmKey struct {
	role string
	ts   int64
}

// MergeMessages reconciles persisted messages with optimistic (staged) ones.
//
// Every persisted message appears once. An optimistic message is dropped when
// a persisted message carries the same ID, or the same role and timestamp.
// The result is sorted by timestamp, then ID, and is never nil.
func MergeMessages(persisted, optimistic []models.Message) []models.Message {
	out := make([]models.Message, 0, len(persisted)+len(optimistic))
	ids := make(map[string]bool, len(persisted)+len(optimistic))
	confirmed := make(map[confirmKey]bool, len(persisted))

	for _, msg := range persisted {
		if ids[msg.ID] {
			continue
		}
		ids[msg.ID] = true
		confirmed[confirmKey{msg.Role, msg.CreatedAt}] = true
		out = append(out, msg)
	}

	for _, msg := range optimistic {
		if ids[msg.ID] || confirmed[confirmKey{msg.Role, msg.CreatedAt}] {
			continue
		}
		ids[msg.ID] = true
		out = append(out, msg)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt < out[j].CreatedAt
		}
		return out[i].ID < out[j].ID
	})

	return out
}
