package models

import "encoding/json"

// Wire event names. The set is closed: frames carrying any other name are
// rejected at the decode boundary on both ends.
const (
	EventLiveMessage     = "live_message"
	EventNotificationNew = "notification:new"
	EventSessionStarted  = "session:started"
)

// Frame is the envelope for every websocket message.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// NewFrame marshals data into a Frame with the given event name.
func NewFrame(event string, data any) (*Frame, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return &Frame{Event: event, Data: raw}, nil
}
