package realtime

import "sync"

// User is the authenticated identity as seen by the client.
type User struct {
	ID    string
	Email string
	Name  string
	Role  string
}

// SessionState is a snapshot of the session gate.
type SessionState struct {
	LoggedIn bool
	User     User
}

// Session is the auth gate every other component reads. Only the owner
// (login/logout flows, the HTTP client on terminal auth failures) mutates
// it; the transport and channels treat it as read-only.
type Session struct {
	mu    sync.RWMutex
	state SessionState

	subMu   sync.Mutex
	subs    map[int]func(SessionState)
	nextSub int
}

// NewSession creates a logged-out session.
func NewSession() *Session {
	return &Session{subs: make(map[int]func(SessionState))}
}

// LoggedIn reports whether a user is authenticated.
func (s *Session) LoggedIn() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.LoggedIn
}

// User returns the current user. Zero value when logged out.
func (s *Session) User() User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.User
}

// State returns a snapshot of the session.
func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// SetUser marks the session logged in as u and notifies subscribers.
func (s *Session) SetUser(u User) {
	s.mu.Lock()
	s.state = SessionState{LoggedIn: true, User: u}
	state := s.state
	s.mu.Unlock()
	s.notify(state)
}

// Clear logs the session out and notifies subscribers.
// Idempotent: clearing a logged-out session notifies nobody.
func (s *Session) Clear() {
	s.mu.Lock()
	if !s.state.LoggedIn {
		s.mu.Unlock()
		return
	}
	s.state = SessionState{}
	state := s.state
	s.mu.Unlock()
	s.notify(state)
}

// Subscribe registers fn for session changes and returns a cancel func.
func (s *Session) Subscribe(fn func(SessionState)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Session) notify(state SessionState) {
	s.subMu.Lock()
	fns := make([]func(SessionState), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(state)
	}
}
