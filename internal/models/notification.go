package models

// Notification is a server-pushed notification event.
type Notification struct {
	ID        string `json:"id"` // ULID
	UserID    string `json:"user_id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Timestamp int64  `json:"ts"` // Unix ms
}

// SessionStarted announces that a booked mentorship session has begun.
type SessionStarted struct {
	SessionID string `json:"session_id"`
	ChatID    string `json:"chat_id"`
	MentorID  string `json:"mentor_id"`
	MenteeID  string `json:"mentee_id"`
	Timestamp int64  `json:"ts"` // Unix ms
}
