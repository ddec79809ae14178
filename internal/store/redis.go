package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/chatdeck/internal/metrics"
	"github.com/eldtechnologies/chatdeck/internal/models"
)

// eventsChannel is the pub/sub channel carrying chat events between instances.
const eventsChannel = "chatdeck:events"

// RedisStore handles Redis operations for staged messages, reply markers and
// the chat event bus.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying client for the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	defer observeRedis(time.Now())
	return s.client.Ping(ctx).Err()
}

func observeRedis(start time.Time) {
	metrics.StoreLatency.WithLabelValues("redis").Observe(time.Since(start).Seconds())
}

// stagedKey returns the key for a chat's staged message hash.
func stagedKey(chatID string) string {
	return fmt.Sprintf("chat:%s:staged", chatID)
}

// replyPendingKey returns the key for a chat's pending-reply marker.
func replyPendingKey(chatID string) string {
	return fmt.Sprintf("chat:%s:reply_pending", chatID)
}

// StageMessage records a message that has not been persisted yet.
func (s *RedisStore) StageMessage(ctx context.Context, msg *models.Message) error {
	defer observeRedis(time.Now())

	staged := *msg
	staged.Staged = true
	data, err := json.Marshal(staged)
	if err != nil {
		return err
	}

	key := stagedKey(msg.ChatID)
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, msg.ID, data)
	pipe.Expire(ctx, key, stagedTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// UnstageMessage removes a staged message once it is persisted.
func (s *RedisStore) UnstageMessage(ctx context.Context, chatID, msgID string) error {
	defer observeRedis(time.Now())
	return s.client.HDel(ctx, stagedKey(chatID), msgID).Err()
}

// StagedMessages returns all staged messages for a chat.
func (s *RedisStore) StagedMessages(ctx context.Context, chatID string) ([]models.Message, error) {
	defer observeRedis(time.Now())

	results, err := s.client.HVals(ctx, stagedKey(chatID)).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(results))
	for _, data := range results {
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// MarkReplyPending records when the chat started waiting for a reply.
func (s *RedisStore) MarkReplyPending(ctx context.Context, chatID string, since time.Time) error {
	defer observeRedis(time.Now())
	return s.client.Set(ctx, replyPendingKey(chatID), since.UnixMilli(), replyPendingTTL).Err()
}

// ClearReplyPending removes the pending-reply marker.
func (s *RedisStore) ClearReplyPending(ctx context.Context, chatID string) error {
	defer observeRedis(time.Now())
	return s.client.Del(ctx, replyPendingKey(chatID)).Err()
}

// ReplyPendingSince returns when the pending reply started, or the zero time.
func (s *RedisStore) ReplyPendingSince(ctx context.Context, chatID string) (time.Time, error) {
	defer observeRedis(time.Now())

	val, err := s.client.Get(ctx, replyPendingKey(chatID)).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}

	ms, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

// Publish sends an event to every subscribed instance.
func (s *RedisStore) Publish(ctx context.Context, event models.ChatEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return s.client.Publish(ctx, eventsChannel, data).Err()
}

// Subscribe streams events from the pub/sub channel until ctx is done.
func (s *RedisStore) Subscribe(ctx context.Context) (<-chan models.ChatEvent, error) {
	sub := s.client.Subscribe(ctx, eventsChannel)
	// Wait for the subscription confirmation so no event is missed
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, err
	}

	out := make(chan models.ChatEvent, 64)
	go func() {
		defer close(out)
		defer sub.Close()

		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var event models.ChatEvent
				if err := json.Unmarshal([]byte(m.Payload), &event); err != nil {
					continue
				}
				select {
				case out <- event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}
