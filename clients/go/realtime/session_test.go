package realtime

import "testing"

func TestSessionLifecycle(t *testing.T) {
	s := NewSession()
	if s.LoggedIn() {
		t.Fatal("new session must be logged out")
	}

	s.SetUser(User{ID: "u1", Name: "Ada", Role: "mentor"})
	if !s.LoggedIn() || s.User().ID != "u1" {
		t.Fatalf("unexpected state after SetUser: %+v", s.State())
	}

	s.Clear()
	if s.LoggedIn() || s.User() != (User{}) {
		t.Fatalf("unexpected state after Clear: %+v", s.State())
	}
}

func TestSessionNotifiesSubscribers(t *testing.T) {
	s := NewSession()

	var states []SessionState
	cancel := s.Subscribe(func(st SessionState) { states = append(states, st) })

	s.SetUser(User{ID: "u1"})
	s.Clear()
	s.Clear() // already logged out, no extra notification

	if len(states) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(states))
	}
	if !states[0].LoggedIn || states[1].LoggedIn {
		t.Fatalf("unexpected notification sequence: %+v", states)
	}

	cancel()
	s.SetUser(User{ID: "u2"})
	if len(states) != 2 {
		t.Fatal("cancelled subscriber still notified")
	}
}
