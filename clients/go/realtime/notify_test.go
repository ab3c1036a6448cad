package realtime

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mentorlink/realtime/internal/models"
)

type notifyLog struct {
	mu            sync.Mutex
	notifications []models.Notification
	sessions      []models.SessionStarted
}

func (l *notifyLog) onNotification(n models.Notification) {
	l.mu.Lock()
	l.notifications = append(l.notifications, n)
	l.mu.Unlock()
}

func (l *notifyLog) onSession(ev models.SessionStarted) {
	l.mu.Lock()
	l.sessions = append(l.sessions, ev)
	l.mu.Unlock()
}

func (l *notifyLog) counts() (int, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.notifications), len(l.sessions)
}

func TestListenerForwardsBothEventKinds(t *testing.T) {
	srv := newWSServer(t)
	tr := newTestTransport(srv, loggedInSession())
	defer tr.Close()
	tr.Connect(context.Background())

	log := &notifyLog{}
	l := NewNotificationListener(tr, log.onNotification, log.onSession)
	l.Start()
	defer l.Stop()

	srv.push(t, models.EventNotificationNew, &models.Notification{ID: "n1", Title: "Booking request"})
	srv.push(t, models.EventSessionStarted, &models.SessionStarted{SessionID: "s1", ChatID: "c1"})

	waitFor(t, time.Second, func() bool {
		n, s := log.counts()
		return n == 1 && s == 1
	}, "forwarded events")
}

func TestListenerSurvivesReconnect(t *testing.T) {
	srv := newWSServer(t)
	tr := newTestTransport(srv, loggedInSession())
	defer tr.Close()

	ctx := context.Background()
	tr.Connect(ctx)

	log := &notifyLog{}
	l := NewNotificationListener(tr, log.onNotification, nil)
	l.Start()
	defer l.Stop()

	srv.push(t, models.EventNotificationNew, &models.Notification{ID: "n1"})
	waitFor(t, time.Second, func() bool { n, _ := log.counts(); return n == 1 }, "first notification")

	tr.Reconnect(ctx)

	srv.push(t, models.EventNotificationNew, &models.Notification{ID: "n2"})
	waitFor(t, time.Second, func() bool { n, _ := log.counts(); return n == 2 }, "notification after reconnect")
}

func TestListenerStartStopIdempotent(t *testing.T) {
	srv := newWSServer(t)
	tr := newTestTransport(srv, loggedInSession())
	defer tr.Close()

	log := &notifyLog{}
	l := NewNotificationListener(tr, log.onNotification, nil)

	l.Start()
	l.Start()

	tr.subMu.Lock()
	subs := len(tr.subs)
	tr.subMu.Unlock()
	if subs != 1 {
		t.Fatalf("expected 1 subscription after double start, got %d", subs)
	}

	l.Stop()
	l.Stop()

	tr.subMu.Lock()
	subs = len(tr.subs)
	tr.subMu.Unlock()
	if subs != 0 {
		t.Fatalf("expected 0 subscriptions after stop, got %d", subs)
	}
}
