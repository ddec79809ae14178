package store

import (
	"context"
	"testing"
	"time"

	"github.com/eldtechnologies/chatdeck/internal/models"
)

func TestMemoryStagedMessages(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	msg := &models.Message{ID: "m1", ChatID: "c1", Role: models.RoleUser, Content: "hi", CreatedAt: 1}
	if err := s.StageMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}
	if msg.Staged {
		t.Fatal("StageMessage must not mutate its argument")
	}

	staged, _ := s.StagedMessages(ctx, "c1")
	if len(staged) != 1 || !staged[0].Staged {
		t.Fatalf("expected one staged message, got %+v", staged)
	}

	s.UnstageMessage(ctx, "c1", "m1")
	if staged, _ := s.StagedMessages(ctx, "c1"); len(staged) != 0 {
		t.Fatal("expected message to be unstaged")
	}
}

func TestMemoryStagedMessagesExpire(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	base := time.Now()
	s.now = func() time.Time { return base }

	s.StageMessage(ctx, &models.Message{ID: "m1", ChatID: "c1"})
	s.now = func() time.Time { return base.Add(stagedTTL + time.Second) }

	if staged, _ := s.StagedMessages(ctx, "c1"); len(staged) != 0 {
		t.Fatal("expected expired message to be dropped")
	}
}

func TestMemoryReplyPending(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	since, _ := s.ReplyPendingSince(ctx, "c1")
	if !since.IsZero() {
		t.Fatal("expected zero time before marking")
	}

	mark := time.UnixMilli(time.Now().UnixMilli())
	s.MarkReplyPending(ctx, "c1", mark)
	since, _ = s.ReplyPendingSince(ctx, "c1")
	if !since.Equal(mark) {
		t.Fatalf("expected %v, got %v", mark, since)
	}

	s.ClearReplyPending(ctx, "c1")
	since, _ = s.ReplyPendingSince(ctx, "c1")
	if !since.IsZero() {
		t.Fatal("expected marker to be cleared")
	}
}

func TestMemoryPublishSubscribe(t *testing.T) {
	s := NewMemoryStore()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	events, err := s.Subscribe(ctx)
	if err != nil {
		t.Fatal(err)
	}

	s.Publish(ctx, models.ChatEvent{Type: models.EventChatRenamed, ChatID: "c1", Title: "x"})

	select {
	case ev := <-events:
		if ev.ChatID != "c1" || ev.Type != models.EventChatRenamed {
			t.Fatalf("unexpected event %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	cancel()
	select {
	case _, ok := <-events:
		if ok {
			t.Fatal("expected channel to close after cancel")
		}
	case <-time.After(time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
