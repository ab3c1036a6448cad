package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mentorlink/realtime/internal/models"
)

// wsServer is a minimal messaging server for transport tests: it upgrades,
// tracks connections, and echoes live_message frames to every client.
type wsServer struct {
	srv       *httptest.Server
	dials     int32
	rejecting int32

	mu    sync.Mutex
	conns []*websocket.Conn
}

func newWSServer(t *testing.T) *wsServer {
	t.Helper()

	s := &wsServer{}
	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}

	s.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&s.dials, 1)
		if atomic.LoadInt32(&s.rejecting) != 0 {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.mu.Lock()
		s.conns = append(s.conns, conn)
		s.mu.Unlock()

		go func() {
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return
				}
				var frame models.Frame
				if json.Unmarshal(data, &frame) == nil && frame.Event == models.EventLiveMessage {
					s.broadcastRaw(data)
				}
			}
		}()
	}))
	t.Cleanup(s.srv.Close)
	return s
}

func (s *wsServer) url() string {
	return "ws" + strings.TrimPrefix(s.srv.URL, "http")
}

func (s *wsServer) dialCount() int {
	return int(atomic.LoadInt32(&s.dials))
}

func (s *wsServer) reject(v bool) {
	if v {
		atomic.StoreInt32(&s.rejecting, 1)
	} else {
		atomic.StoreInt32(&s.rejecting, 0)
	}
}

func (s *wsServer) openConns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.conns {
		if c != nil {
			n++
		}
	}
	return n
}

func (s *wsServer) broadcastRaw(data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.conns {
		_ = c.WriteMessage(websocket.TextMessage, data)
	}
}

// push sends a frame from the server to all connected clients.
func (s *wsServer) push(t *testing.T, event string, payload any) {
	t.Helper()
	frame, err := models.NewFrame(event, payload)
	if err != nil {
		t.Fatal(err)
	}
	data, err := json.Marshal(frame)
	if err != nil {
		t.Fatal(err)
	}
	s.broadcastRaw(data)
}

// pushRaw sends arbitrary bytes, for malformed-frame tests.
func (s *wsServer) pushRaw(data []byte) {
	s.broadcastRaw(data)
}

// recorder collects transport events for assertions.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Kind
	}
	return out
}

func (r *recorder) count(kind EventKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, ev := range r.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func loggedInSession() *Session {
	s := NewSession()
	s.SetUser(User{ID: "u-self", Name: "Ada", Role: "mentor"})
	return s
}

func newTestTransport(s *wsServer, session *Session) *Transport {
	return NewTransport(session, TransportOptions{
		URL:         s.url(),
		MaxAttempts: 2,
		RetryDelay:  10 * time.Millisecond,
	})
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
