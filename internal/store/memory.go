package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"

	"github.com/mentorlink/realtime/internal/models"
)

// MemoryStore is an in-process SessionCache and HistoryStore used when no
// REDIS_URL is configured, and by tests.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	history  map[string][]models.LiveMessage
}

type memorySession struct {
	userID    uuid.UUID
	expiresAt time.Time
}

// NewMemoryStore creates an empty in-process store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memorySession),
		history:  make(map[string][]models.LiveMessage),
	}
}

// PutSession stores an access token session with a TTL.
func (s *MemoryStore) PutSession(_ context.Context, tokenHash string, userID uuid.UUID, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[tokenHash] = memorySession{userID: userID, expiresAt: time.Now().Add(ttl)}
	return nil
}

// GetSession looks up the user behind an access token hash.
func (s *MemoryStore) GetSession(_ context.Context, tokenHash string) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[tokenHash]
	if !ok {
		return uuid.Nil, false, nil
	}
	if time.Now().After(sess.expiresAt) {
		delete(s.sessions, tokenHash)
		return uuid.Nil, false, nil
	}
	return sess.userID, true, nil
}

// DeleteSession removes an access token session.
func (s *MemoryStore) DeleteSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tokenHash)
	return nil
}

// AddMessage appends a message to the chat's history, keeping timestamp order.
func (s *MemoryStore) AddMessage(_ context.Context, msg *models.LiveMessage) error {
	if msg.MessageID == "" {
		msg.MessageID = ulid.Make().String()
	}
	if parseWireTimestamp(msg.Timestamp) == 0 {
		msg.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	list := append(s.history[msg.ChatID], *msg)
	sort.SliceStable(list, func(i, j int) bool {
		return parseWireTimestamp(list[i].Timestamp) < parseWireTimestamp(list[j].Timestamp)
	})
	s.history[msg.ChatID] = list
	return nil
}

// GetChatMessages retrieves up to limit messages for a chat, newest last.
func (s *MemoryStore) GetChatMessages(_ context.Context, chatID string, limit int, before int64) ([]models.LiveMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := s.history[chatID]
	out := make([]models.LiveMessage, 0, limit)
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		if before > 0 && parseWireTimestamp(list[i].Timestamp) >= before {
			continue
		}
		out = append(out, list[i])
	}
	// Reverse into ascending timestamp order
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}
