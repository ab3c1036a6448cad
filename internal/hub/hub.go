// Package hub routes live messages and notifications between connected
// websocket clients.
package hub

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mentorlink/realtime/internal/metrics"
	"github.com/mentorlink/realtime/internal/models"
	"github.com/mentorlink/realtime/internal/store"
)

// Hub tracks connected clients by user and fans frames out to them.
type Hub struct {
	log      zerolog.Logger
	history  store.HistoryStore
	upgrader websocket.Upgrader

	mu      sync.RWMutex
	clients map[string]map[*client]struct{} // user ID -> connections
}

// New creates a hub persisting routed messages into history.
func New(log zerolog.Logger, history store.HistoryStore) *Hub {
	return &Hub{
		log:     log.With().Str("component", "hub").Logger(),
		history: history,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Auth rides on the session cookie; origin policy is enforced
			// by the CORS layer on the rest of the API.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[string]map[*client]struct{}),
	}
}

// ServeWS upgrades the request and runs the connection's pumps.
// The caller must have authenticated user already.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, user *models.User) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	c := &client{
		hub:  h,
		conn: conn,
		user: user,
		send: make(chan *models.Frame, 64),
		log:  h.log.With().Str("user_id", user.ID.String()).Logger(),
	}

	h.register(c)

	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	id := c.user.ID.String()
	if h.clients[id] == nil {
		h.clients[id] = make(map[*client]struct{})
	}
	h.clients[id][c] = struct{}{}
	h.mu.Unlock()

	metrics.SocketsConnected.Inc()
	c.log.Info().Msg("client connected")
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	id := c.user.ID.String()
	if conns, ok := h.clients[id]; ok {
		if _, ok := conns[c]; ok {
			delete(conns, c)
			close(c.send)
			if len(conns) == 0 {
				delete(h.clients, id)
			}
			metrics.SocketsConnected.Dec()
			c.log.Info().Msg("client disconnected")
		}
	}
	h.mu.Unlock()
}

// route dispatches one inbound frame. Unknown event names are dropped here,
// the single decode boundary on the server side.
func (h *Hub) route(c *client, frame *models.Frame) {
	switch frame.Event {
	case models.EventLiveMessage:
		h.routeLiveMessage(c, frame.Data)
	default:
		c.log.Warn().Str("event", frame.Event).Msg("unknown event dropped")
	}
}

// routeLiveMessage persists an inbound chat message and delivers it to the
// receiver and back to the sender. The echo carries the client's message ID
// and the server-assigned timestamp, which is what the sender reconciles on.
func (h *Hub) routeLiveMessage(c *client, data json.RawMessage) {
	var msg models.LiveMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		c.log.Warn().Err(err).Msg("malformed live message dropped")
		return
	}
	if !msg.Type.Valid() || msg.ChatID == "" || msg.ReceiverID == "" {
		c.log.Warn().Str("chat_id", msg.ChatID).Msg("invalid live message dropped")
		return
	}

	// Sender identity comes from the authenticated connection, never the payload.
	msg.SenderID = c.user.ID.String()
	msg.SenderName = c.user.Name
	msg.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := h.history.AddMessage(ctx, &msg); err != nil {
		c.log.Error().Err(err).Str("chat_id", msg.ChatID).Msg("history write failed")
		// Delivery still proceeds; history is best-effort for live traffic.
	}

	frame, err := models.NewFrame(models.EventLiveMessage, &msg)
	if err != nil {
		c.log.Error().Err(err).Msg("frame encode failed")
		return
	}

	metrics.MessagesDelivered.WithLabelValues(string(msg.Type)).Inc()
	h.deliver(msg.ReceiverID, frame)
	h.deliver(msg.SenderID, frame)
}

// deliver sends a frame to every connection a user holds. Slow clients are
// dropped rather than allowed to block the hub.
func (h *Hub) deliver(userID string, frame *models.Frame) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[userID] {
		select {
		case c.send <- frame:
		default:
			c.log.Warn().Msg("send buffer full, dropping frame")
		}
	}
}

// PushNotification delivers a notification event to one user.
func (h *Hub) PushNotification(userID uuid.UUID, n models.Notification) {
	frame, err := models.NewFrame(models.EventNotificationNew, &n)
	if err != nil {
		h.log.Error().Err(err).Msg("frame encode failed")
		return
	}
	metrics.NotificationsPushed.Inc()
	h.deliver(userID.String(), frame)
}

// PushSessionStarted tells both participants their mentorship session began.
func (h *Hub) PushSessionStarted(ev models.SessionStarted) {
	frame, err := models.NewFrame(models.EventSessionStarted, &ev)
	if err != nil {
		h.log.Error().Err(err).Msg("frame encode failed")
		return
	}
	h.deliver(ev.MentorID, frame)
	h.deliver(ev.MenteeID, frame)
}

// Connected reports how many connections a user currently holds.
func (h *Hub) Connected(userID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[userID.String()])
}
