package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/mentorlink/realtime/internal/models"
)

const (
	historyTTL = 30 * 24 * time.Hour
)

// RedisStore backs the session cache and chat history.
// History is a sorted set per chat, scored by message timestamp in unix ms,
// so range reads come back in delivery order.
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

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// chatMessagesKey returns the key for a chat's message sorted set.
func chatMessagesKey(chatID string) string {
	return fmt.Sprintf("chat:%s:messages", chatID)
}

// sessionKey returns the key for an access token session.
func sessionKey(tokenHash string) string {
	return fmt.Sprintf("session:%s", tokenHash)
}

// AddMessage stores a message in the chat's history.
// A missing MessageID gets a ULID; a missing timestamp gets the current time.
func (s *RedisStore) AddMessage(ctx context.Context, msg *models.LiveMessage) error {
	if msg.MessageID == "" {
		msg.MessageID = ulid.Make().String()
	}

	ts := parseWireTimestamp(msg.Timestamp)
	if ts == 0 {
		ts = time.Now().UnixMilli()
		msg.Timestamp = time.UnixMilli(ts).UTC().Format(time.RFC3339Nano)
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := chatMessagesKey(msg.ChatID)

	err = s.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(ts),
		Member: string(data),
	}).Err()
	if err != nil {
		return err
	}

	s.client.Expire(ctx, key, historyTTL)
	return nil
}

// GetChatMessages retrieves up to limit messages for a chat, newest last.
// When before > 0 only messages strictly older than it are returned.
func (s *RedisStore) GetChatMessages(ctx context.Context, chatID string, limit int, before int64) ([]models.LiveMessage, error) {
	key := chatMessagesKey(chatID)

	maxScore := "+inf"
	if before > 0 {
		maxScore = fmt.Sprintf("(%d", before) // exclusive
	}

	raw, err := s.client.ZRevRangeByScore(ctx, key, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   maxScore,
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, err
	}

	// Reverse into ascending timestamp order
	messages := make([]models.LiveMessage, 0, len(raw))
	for i := len(raw) - 1; i >= 0; i-- {
		var msg models.LiveMessage
		if err := json.Unmarshal([]byte(raw[i]), &msg); err != nil {
			continue // skip corrupt entries rather than fail the read
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// PutSession stores an access token session with a TTL.
func (s *RedisStore) PutSession(ctx context.Context, tokenHash string, userID uuid.UUID, ttl time.Duration) error {
	return s.client.Set(ctx, sessionKey(tokenHash), userID.String(), ttl).Err()
}

// GetSession looks up the user behind an access token hash.
func (s *RedisStore) GetSession(ctx context.Context, tokenHash string) (uuid.UUID, bool, error) {
	val, err := s.client.Get(ctx, sessionKey(tokenHash)).Result()
	if err == redis.Nil {
		return uuid.Nil, false, nil
	}
	if err != nil {
		return uuid.Nil, false, err
	}
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, false, err
	}
	return id, true, nil
}

// DeleteSession removes an access token session.
func (s *RedisStore) DeleteSession(ctx context.Context, tokenHash string) error {
	return s.client.Del(ctx, sessionKey(tokenHash)).Err()
}

// parseWireTimestamp converts an RFC 3339 wire timestamp to unix ms,
// returning 0 when absent or malformed.
func parseWireTimestamp(s string) int64 {
	if s == "" {
		return 0
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0
	}
	return t.UnixMilli()
}
