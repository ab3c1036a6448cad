package realtime

import (
	"encoding/json"
	"fmt"

	"github.com/mentorlink/realtime/internal/models"
)

// EventKind enumerates the closed set of transport events. There is no
// wildcard: frames with unknown event names are rejected at decode.
type EventKind int

const (
	// EventConnected fires once per established connection.
	EventConnected EventKind = iota
	// EventDisconnected fires once per lost or closed connection.
	EventDisconnected
	// EventConnectError fires per failed dial attempt.
	EventConnectError
	// EventLiveMessage carries an inbound chat message.
	EventLiveMessage
	// EventNotification carries a server-pushed notification.
	EventNotification
	// EventSessionStarted announces a mentorship session beginning.
	EventSessionStarted
)

func (k EventKind) String() string {
	switch k {
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventConnectError:
		return "connect_error"
	case EventLiveMessage:
		return "live_message"
	case EventNotification:
		return "notification"
	case EventSessionStarted:
		return "session_started"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event is one transport event. Exactly one payload field is set,
// matching Kind.
type Event struct {
	Kind         EventKind
	Message      *models.LiveMessage
	Notification *models.Notification
	Session      *models.SessionStarted
	Err          error
}

// decodeFrame is the single boundary where wire frames become typed events.
func decodeFrame(data []byte) (Event, error) {
	var frame models.Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		return Event{}, fmt.Errorf("malformed frame: %w", err)
	}

	switch frame.Event {
	case models.EventLiveMessage:
		var msg models.LiveMessage
		if err := json.Unmarshal(frame.Data, &msg); err != nil {
			return Event{}, fmt.Errorf("malformed live message: %w", err)
		}
		return Event{Kind: EventLiveMessage, Message: &msg}, nil

	case models.EventNotificationNew:
		var n models.Notification
		if err := json.Unmarshal(frame.Data, &n); err != nil {
			return Event{}, fmt.Errorf("malformed notification: %w", err)
		}
		return Event{Kind: EventNotification, Notification: &n}, nil

	case models.EventSessionStarted:
		var s models.SessionStarted
		if err := json.Unmarshal(frame.Data, &s); err != nil {
			return Event{}, fmt.Errorf("malformed session event: %w", err)
		}
		return Event{Kind: EventSessionStarted, Session: &s}, nil

	default:
		return Event{}, fmt.Errorf("unknown event %q", frame.Event)
	}
}
