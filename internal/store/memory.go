package store

import (
	"context"
	"sync"
	"time"

	"github.com/eldtechnologies/chatdeck/internal/models"
)

type stagedEntry struct {
	msg     models.Message
	expires time.Time
}

// MemoryStore is a single-instance LiveStore used when Redis is not
// configured. Events only reach subscribers in the same process.
type MemoryStore struct {
	mu      sync.Mutex
	staged  map[string]map[string]stagedEntry // chatID -> msgID -> entry
	pending map[string]time.Time              // chatID -> since
	subs    map[chan models.ChatEvent]struct{}
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory live store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		staged:  make(map[string]map[string]stagedEntry),
		pending: make(map[string]time.Time),
		subs:    make(map[chan models.ChatEvent]struct{}),
		now:     time.Now,
	}
}

// Close drops all subscribers.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for ch := range s.subs {
		close(ch)
		delete(s.subs, ch)
	}
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// StageMessage records a message that has not been persisted yet.
func (s *MemoryStore) StageMessage(ctx context.Context, msg *models.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.staged[msg.ChatID]
	if !ok {
		chat = make(map[string]stagedEntry)
		s.staged[msg.ChatID] = chat
	}
	staged := *msg
	staged.Staged = true
	chat[msg.ID] = stagedEntry{msg: staged, expires: s.now().Add(stagedTTL)}
	return nil
}

// UnstageMessage removes a staged message once it is persisted.
func (s *MemoryStore) UnstageMessage(ctx context.Context, chatID, msgID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if chat, ok := s.staged[chatID]; ok {
		delete(chat, msgID)
		if len(chat) == 0 {
			delete(s.staged, chatID)
		}
	}
	return nil
}

// StagedMessages returns unexpired staged messages for a chat.
func (s *MemoryStore) StagedMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	chat := s.staged[chatID]
	messages := make([]models.Message, 0, len(chat))
	for id, entry := range chat {
		if now.After(entry.expires) {
			delete(chat, id)
			continue
		}
		messages = append(messages, entry.msg)
	}
	return messages, nil
}

// MarkReplyPending records when the chat started waiting for a reply.
func (s *MemoryStore) MarkReplyPending(ctx context.Context, chatID string, since time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending[chatID] = since
	return nil
}

// ClearReplyPending removes the pending-reply marker.
func (s *MemoryStore) ClearReplyPending(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.pending, chatID)
	return nil
}

// ReplyPendingSince returns when the pending reply started, or the zero time.
func (s *MemoryStore) ReplyPendingSince(ctx context.Context, chatID string) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	since, ok := s.pending[chatID]
	if !ok {
		return time.Time{}, nil
	}
	if s.now().Sub(since) > replyPendingTTL {
		delete(s.pending, chatID)
		return time.Time{}, nil
	}
	return since, nil
}

// Publish delivers the event to every subscriber, dropping it for
// subscribers whose buffer is full.
func (s *MemoryStore) Publish(ctx context.Context, event models.ChatEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for ch := range s.subs {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

// Subscribe streams published events until ctx is done.
func (s *MemoryStore) Subscribe(ctx context.Context) (<-chan models.ChatEvent, error) {
	ch := make(chan models.ChatEvent, 64)

	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[ch]; ok {
			delete(s.subs, ch)
			close(ch)
		}
	}()

	return ch, nil
}
