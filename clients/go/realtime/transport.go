package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/mentorlink/realtime/internal/metrics"
	"github.com/mentorlink/realtime/internal/models"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 16384

	defaultMaxAttempts = 5
	defaultRetryDelay  = 2000 * time.Millisecond
)

var errDialAborted = errors.New("dial aborted by disconnect")

// State is the transport connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	// StateUnavailable is entered after the retry budget is exhausted.
	// A later Connect call starts a fresh budget.
	StateUnavailable
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateUnavailable:
		return "unavailable"
	}
	return "unknown"
}

// TransportOptions configures a Transport.
type TransportOptions struct {
	// URL is the ws:// or wss:// endpoint.
	URL string
	// Jar carries the session cookies; share it with the HTTP client so the
	// handshake is credentialed.
	Jar http.CookieJar
	// MaxAttempts is the dial budget per Connect call. Default 5.
	MaxAttempts int
	// RetryDelay is the fixed pause between dial attempts. Default 2s.
	// The policy is a constant delay, not exponential backoff.
	RetryDelay time.Duration
	Logger     zerolog.Logger
}

// wsConn is one live websocket with its pump plumbing. Teardown runs at
// most once per connection, so subscribers see exactly one disconnect.
type wsConn struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

// Transport owns the single live connection to the messaging server.
// Other components subscribe to its events and ask it to send; only the
// transport ever opens or closes the socket.
type Transport struct {
	opts    TransportOptions
	session *Session
	log     zerolog.Logger

	mu      sync.Mutex
	state   State
	cur     *wsConn
	dialGen int // bumped by Disconnect to abort an in-flight dial

	subMu   sync.Mutex
	subs    map[int]func(Event)
	nextSub int

	unsubSession func()
}

// NewTransport creates a transport gated by session. Logging out
// disconnects automatically; connecting is always explicit.
func NewTransport(session *Session, opts TransportOptions) *Transport {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = defaultMaxAttempts
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = defaultRetryDelay
	}

	t := &Transport{
		opts:    opts,
		session: session,
		log:     opts.Logger.With().Str("component", "transport").Logger(),
		subs:    make(map[int]func(Event)),
	}

	t.unsubSession = session.Subscribe(func(state SessionState) {
		if !state.LoggedIn {
			t.Disconnect()
		}
	})

	return t
}

// State returns the current connection state.
func (t *Transport) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Subscribe registers fn for transport events and returns a cancel func.
// The registry outlives individual connections, so subscriptions survive
// reconnects without re-binding.
func (t *Transport) Subscribe(fn func(Event)) (cancel func()) {
	t.subMu.Lock()
	id := t.nextSub
	t.nextSub++
	t.subs[id] = fn
	t.subMu.Unlock()

	return func() {
		t.subMu.Lock()
		delete(t.subs, id)
		t.subMu.Unlock()
	}
}

func (t *Transport) publish(ev Event) {
	t.subMu.Lock()
	fns := make([]func(Event), 0, len(t.subs))
	for _, fn := range t.subs {
		fns = append(fns, fn)
	}
	t.subMu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// Connect dials the server, retrying up to the attempt budget with a fixed
// delay. It blocks until connected, the budget is exhausted, or ctx ends.
// Failures are logged and surfaced as state transitions and ConnectError
// events, never returned: a no-op when already connected or connecting,
// refused when the session is logged out.
func (t *Transport) Connect(ctx context.Context) {
	t.mu.Lock()
	if t.state == StateConnected || t.state == StateConnecting {
		t.mu.Unlock()
		t.log.Debug().Stringer("state", t.state).Msg("connect ignored")
		return
	}
	if !t.session.LoggedIn() {
		t.mu.Unlock()
		t.log.Warn().Msg("connect refused: session not logged in")
		return
	}
	t.state = StateConnecting
	t.dialGen++
	gen := t.dialGen
	t.mu.Unlock()

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: 10 * time.Second,
		Jar:              t.opts.Jar,
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(t.opts.RetryDelay), uint64(t.opts.MaxAttempts-1)),
		ctx,
	)

	var conn *websocket.Conn
	err := backoff.Retry(func() error {
		if t.dialAborted(gen) {
			return backoff.Permanent(errDialAborted)
		}
		c, resp, err := dialer.DialContext(ctx, t.opts.URL, nil)
		if err != nil {
			status := 0
			if resp != nil {
				status = resp.StatusCode
			}
			metrics.ConnectAttempts.WithLabelValues("error").Inc()
			t.log.Warn().Err(err).Int("status", status).Msg("dial failed")
			t.publish(Event{Kind: EventConnectError, Err: err})
			return err
		}
		conn = c
		return nil
	}, policy)

	t.mu.Lock()
	if gen != t.dialGen || t.state != StateConnecting {
		// Disconnected while dialing
		t.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return
	}
	if err != nil {
		t.state = StateUnavailable
		t.mu.Unlock()
		t.log.Error().Err(err).Int("attempts", t.opts.MaxAttempts).Msg("transport unavailable")
		return
	}

	c := &wsConn{
		conn: conn,
		send: make(chan []byte, 64),
		done: make(chan struct{}),
	}
	t.cur = c
	t.state = StateConnected
	t.mu.Unlock()

	metrics.ConnectAttempts.WithLabelValues("ok").Inc()
	t.log.Info().Str("url", t.opts.URL).Msg("connected")
	t.publish(Event{Kind: EventConnected})

	go t.readPump(c)
	go t.writePump(c)
}

func (t *Transport) dialAborted(gen int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return gen != t.dialGen || t.state != StateConnecting
}

// Disconnect closes the connection if one exists and always clears the
// stored reference. Safe to call at any time, any number of times.
func (t *Transport) Disconnect() {
	t.mu.Lock()
	c := t.cur
	t.cur = nil
	t.dialGen++ // aborts a dial in progress
	t.state = StateDisconnected
	t.mu.Unlock()

	if c == nil {
		return
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	t.teardown(c)
}

// Reconnect performs exactly one disconnect followed by exactly one connect.
func (t *Transport) Reconnect(ctx context.Context) {
	t.Disconnect()
	t.Connect(ctx)
}

// Close releases the session subscription and drops the connection.
func (t *Transport) Close() {
	if t.unsubSession != nil {
		t.unsubSession()
		t.unsubSession = nil
	}
	t.Disconnect()
}

// Send emits one frame over the live connection. Returns ErrNotConnected
// when there is none; in-flight sends against a connection that closes
// underneath them fail the same way instead of hanging.
func (t *Transport) Send(frame *models.Frame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	t.mu.Lock()
	c := t.cur
	connected := t.state == StateConnected
	t.mu.Unlock()

	if !connected || c == nil {
		return ErrNotConnected
	}

	select {
	case c.send <- data:
		return nil
	case <-c.done:
		return ErrNotConnected
	}
}

// teardown closes one connection exactly once: pumps stop, the stored
// reference is cleared if still current, and one Disconnected event fires.
func (t *Transport) teardown(c *wsConn) {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()

		t.mu.Lock()
		if t.cur == c {
			t.cur = nil
			if t.state == StateConnected {
				t.state = StateDisconnected
			}
		}
		t.mu.Unlock()

		t.publish(Event{Kind: EventDisconnected})
	})
}

// readPump decodes inbound frames into typed events. A connection has one
// reader, so subscribers observe events in arrival order.
func (t *Transport) readPump(c *wsConn) {
	defer t.teardown(c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				t.log.Warn().Err(err).Msg("read error")
			}
			return
		}

		ev, err := decodeFrame(data)
		if err != nil {
			t.log.Warn().Err(err).Msg("frame rejected")
			continue
		}
		t.publish(ev)
	}
}

func (t *Transport) writePump(c *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		t.teardown(c)
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				t.log.Warn().Err(err).Msg("write error")
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
