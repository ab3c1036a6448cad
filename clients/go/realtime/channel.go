package realtime

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/mentorlink/realtime/internal/models"
)

// Status is the delivery state of a message.
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusRead    Status = "read"
	StatusFailed  Status = "failed"
)

// statusRank orders the pending → sent → read progression. Failed is a
// terminal branch off pending.
func statusRank(s Status) int {
	switch s {
	case StatusPending:
		return 0
	case StatusSent:
		return 1
	case StatusRead:
		return 2
	}
	return -1
}

// Message is one chat message in a channel's history.
type Message struct {
	ID         string
	ChatID     string
	SenderID   string
	SenderName string
	ReceiverID string
	Body       string
	Type       models.MessageType
	Timestamp  time.Time
	Attachment *models.Attachment
	Status     Status
	Own        bool
}

// Channel is the live view of one conversation: ordered, deduplicated
// history with optimistic local echo of outgoing messages.
type Channel struct {
	chatID   string
	peerID   string
	transp   *Transport
	session  *Session
	log      zerolog.Logger
	onUpdate func() // nil-able; called after every history change

	mu      sync.Mutex
	history []Message
	detach  func()
}

// NewChannel creates a channel for the conversation with peerID.
// onUpdate, when non-nil, fires after every history change.
func NewChannel(t *Transport, s *Session, chatID, peerID string, onUpdate func()) *Channel {
	return &Channel{
		chatID:   chatID,
		peerID:   peerID,
		transp:   t,
		session:  s,
		log:      t.log.With().Str("component", "channel").Str("chat_id", chatID).Logger(),
		onUpdate: onUpdate,
	}
}

// Attach subscribes to inbound messages for this conversation and returns
// a detach handle. Idempotent: a second Attach returns the existing handle
// without duplicating the subscription.
func (ch *Channel) Attach() (detach func()) {
	ch.mu.Lock()
	if ch.detach != nil {
		d := ch.detach
		ch.mu.Unlock()
		return d
	}
	ch.mu.Unlock()

	cancel := ch.transp.Subscribe(ch.onEvent)
	wrapped := func() {
		ch.mu.Lock()
		if ch.detach == nil {
			ch.mu.Unlock()
			return
		}
		ch.detach = nil
		ch.mu.Unlock()
		cancel()
	}

	ch.mu.Lock()
	if ch.detach != nil {
		// Lost the race to another Attach
		d := ch.detach
		ch.mu.Unlock()
		cancel()
		return d
	}
	ch.detach = wrapped
	ch.mu.Unlock()
	return wrapped
}

// Hydrate seeds history from stored messages, typically fetched over HTTP
// before attaching. Entries already present are skipped.
func (ch *Channel) Hydrate(stored []models.LiveMessage) {
	self := ch.session.User().ID

	ch.mu.Lock()
	for i := range stored {
		wire := &stored[i]
		if wire.ChatID != ch.chatID || ch.indexOfLocked(wire.MessageID) >= 0 {
			continue
		}
		ch.insertLocked(messageFromWire(wire, self, StatusSent))
	}
	ch.mu.Unlock()
	ch.notifyUpdate()
}

// Send appends an optimistic pending message and emits it. When the
// transport has no connection it returns the pending message together with
// ErrNotConnected; the entry stays pending for the caller to retry or fail.
func (ch *Channel) Send(body string, typ models.MessageType, att *models.Attachment) (Message, error) {
	user := ch.session.User()
	now := time.Now().UTC()

	msg := Message{
		ID:         uuid.NewString(),
		ChatID:     ch.chatID,
		SenderID:   user.ID,
		SenderName: user.Name,
		ReceiverID: ch.peerID,
		Body:       body,
		Type:       typ,
		Timestamp:  now,
		Attachment: att,
		Status:     StatusPending,
		Own:        true,
	}

	ch.mu.Lock()
	ch.insertLocked(msg)
	ch.mu.Unlock()
	ch.notifyUpdate()

	frame, err := models.NewFrame(models.EventLiveMessage, &models.LiveMessage{
		ChatID:     msg.ChatID,
		SenderID:   msg.SenderID,
		SenderName: msg.SenderName,
		ReceiverID: msg.ReceiverID,
		MessageID:  msg.ID,
		Body:       msg.Body,
		Type:       msg.Type,
		Timestamp:  now.Format(time.RFC3339Nano),
		Attachment: att,
	})
	if err != nil {
		ch.MarkFailed(msg.ID)
		return msg, err
	}

	if err := ch.transp.Send(frame); err != nil {
		ch.log.Warn().Err(err).Str("message_id", msg.ID).Msg("send failed")
		return msg, err
	}
	return msg, nil
}

// MarkFailed moves a pending message to failed. No-op for any other state.
func (ch *Channel) MarkFailed(messageID string) {
	ch.mu.Lock()
	i := ch.indexOfLocked(messageID)
	changed := i >= 0 && ch.history[i].Status == StatusPending
	if changed {
		ch.history[i].Status = StatusFailed
	}
	ch.mu.Unlock()
	if changed {
		ch.notifyUpdate()
	}
}

// MarkRead advances a sent message to read. The progression is monotonic:
// read never regresses and pending cannot jump past sent.
func (ch *Channel) MarkRead(messageID string) {
	ch.mu.Lock()
	i := ch.indexOfLocked(messageID)
	changed := i >= 0 &&
		ch.history[i].Status == StatusSent &&
		statusRank(StatusRead) > statusRank(ch.history[i].Status)
	if changed {
		ch.history[i].Status = StatusRead
	}
	ch.mu.Unlock()
	if changed {
		ch.notifyUpdate()
	}
}

// History returns a copy of the ordered message history.
func (ch *Channel) History() []Message {
	ch.mu.Lock()
	defer ch.mu.Unlock()
	out := make([]Message, len(ch.history))
	copy(out, ch.history)
	return out
}

// onEvent handles inbound transport events for this conversation.
func (ch *Channel) onEvent(ev Event) {
	if ev.Kind != EventLiveMessage || ev.Message.ChatID != ch.chatID {
		return
	}

	wire := ev.Message
	self := ch.session.User().ID
	own := wire.SenderID == self
	ts := parseTimestamp(wire.Timestamp)

	ch.mu.Lock()
	// Server echo of an optimistic send reconciles instead of duplicating.
	if own && ch.reconcileLocked(wire.MessageID, ts) {
		ch.mu.Unlock()
		ch.notifyUpdate()
		return
	}
	if ch.indexOfLocked(wire.MessageID) >= 0 {
		ch.mu.Unlock()
		return
	}
	ch.insertLocked(messageFromWire(wire, self, StatusSent))
	ch.mu.Unlock()
	ch.notifyUpdate()
}

// reconcileLocked flips a pending local message to sent and adopts the
// server timestamp, repositioning if that changed its order.
func (ch *Channel) reconcileLocked(messageID string, ts time.Time) bool {
	i := ch.indexOfLocked(messageID)
	if i < 0 || ch.history[i].Status != StatusPending {
		return false
	}

	msg := ch.history[i]
	msg.Status = StatusSent
	if !ts.IsZero() {
		msg.Timestamp = ts
	}
	ch.history = append(ch.history[:i], ch.history[i+1:]...)
	ch.insertLocked(msg)
	return true
}

// insertLocked places msg by ascending timestamp. Messages normally arrive
// in order, so the scan starts from the tail; ties keep arrival order.
func (ch *Channel) insertLocked(msg Message) {
	i := len(ch.history)
	for i > 0 && ch.history[i-1].Timestamp.After(msg.Timestamp) {
		i--
	}
	ch.history = append(ch.history, Message{})
	copy(ch.history[i+1:], ch.history[i:])
	ch.history[i] = msg
}

func (ch *Channel) indexOfLocked(messageID string) int {
	for i := range ch.history {
		if ch.history[i].ID == messageID {
			return i
		}
	}
	return -1
}

func (ch *Channel) notifyUpdate() {
	if ch.onUpdate != nil {
		ch.onUpdate()
	}
}

func messageFromWire(wire *models.LiveMessage, selfID string, status Status) Message {
	return Message{
		ID:         wire.MessageID,
		ChatID:     wire.ChatID,
		SenderID:   wire.SenderID,
		SenderName: wire.SenderName,
		ReceiverID: wire.ReceiverID,
		Body:       wire.Body,
		Type:       wire.Type,
		Timestamp:  parseTimestamp(wire.Timestamp),
		Attachment: wire.Attachment,
		Status:     status,
		Own:        wire.SenderID == selfID,
	}
}

// parseTimestamp converts a wire timestamp, zero time when malformed.
func parseTimestamp(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
