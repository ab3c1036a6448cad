package models

// MessageType identifies the content kind of a live message.
type MessageType string

const (
	MessageTypeText  MessageType = "TEXT"
	MessageTypeFile  MessageType = "FILE"
	MessageTypeImage MessageType = "IMAGE"
)

// Valid reports whether t is one of the known message types.
func (t MessageType) Valid() bool {
	switch t {
	case MessageTypeText, MessageTypeFile, MessageTypeImage:
		return true
	}
	return false
}

// Attachment describes a file or image carried by a message.
type Attachment struct {
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	FileType string `json:"fileType"`
}

// LiveMessage is the wire payload for a chat message, both directions.
// Outbound messages carry a client-generated MessageID; the server echo
// keeps that ID so senders can reconcile their optimistic copy.
type LiveMessage struct {
	ChatID     string      `json:"chatId"`
	SenderID   string      `json:"senderId"`
	SenderName string      `json:"senderName"`
	ReceiverID string      `json:"receiverId"`
	MessageID  string      `json:"messageId"`
	Body       string      `json:"message"`
	Type       MessageType `json:"type"`
	Timestamp  string      `json:"timestamp"` // RFC 3339, millisecond precision
	Attachment *Attachment `json:"attachment,omitempty"`
}
