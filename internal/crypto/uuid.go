package crypto

import (
	"github.com/google/uuid"
)

// NewUUIDv7 generates a time-ordered UUID v7, used for user IDs.
func NewUUIDv7() uuid.UUID {
	return uuid.Must(uuid.NewV7())
}
