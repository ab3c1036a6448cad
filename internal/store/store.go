package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mentorlink/realtime/internal/models"
)

// DataStore defines the interface for persistent storage of users and
// refresh tokens. Both PostgresStore and SQLiteStore implement this
// interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, email, passwordHash, name, role string) (*models.User, error)
	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	SetUserBlocked(ctx context.Context, id uuid.UUID, blocked bool) error

	// Refresh token operations. Tokens are stored hashed; rotation deletes
	// the presented hash and inserts the replacement in one call path.
	CreateRefreshToken(ctx context.Context, userID uuid.UUID, tokenHash string, expiresAt time.Time) error
	GetRefreshToken(ctx context.Context, tokenHash string) (*models.RefreshToken, error)
	DeleteRefreshToken(ctx context.Context, tokenHash string) error
	DeleteUserRefreshTokens(ctx context.Context, userID uuid.UUID) error
}

// SessionCache holds short-lived access token sessions.
// RedisStore backs it in deployment, MemoryStore in development and tests.
type SessionCache interface {
	PutSession(ctx context.Context, tokenHash string, userID uuid.UUID, ttl time.Duration) error
	GetSession(ctx context.Context, tokenHash string) (uuid.UUID, bool, error)
	DeleteSession(ctx context.Context, tokenHash string) error
}

// HistoryStore keeps per-conversation message history ordered by timestamp.
type HistoryStore interface {
	AddMessage(ctx context.Context, msg *models.LiveMessage) error
	GetChatMessages(ctx context.Context, chatID string, limit int, before int64) ([]models.LiveMessage, error)
}
