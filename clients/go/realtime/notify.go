package realtime

import (
	"sync"

	"github.com/mentorlink/realtime/internal/models"
)

// NotificationListener forwards server-pushed notification and
// session-started events to registered callbacks for the lifetime of the
// transport. Because the transport's subscriber registry survives
// individual connections, the binding holds across reconnects without
// re-subscribing the way a raw per-socket listener registry would require.
type NotificationListener struct {
	transp           *Transport
	onNotification   func(models.Notification)
	onSessionStarted func(models.SessionStarted)

	mu     sync.Mutex
	cancel func()
}

// NewNotificationListener creates a listener; either callback may be nil.
func NewNotificationListener(t *Transport, onNotification func(models.Notification), onSessionStarted func(models.SessionStarted)) *NotificationListener {
	return &NotificationListener{
		transp:           t,
		onNotification:   onNotification,
		onSessionStarted: onSessionStarted,
	}
}

// Start begins forwarding events. Idempotent.
func (l *NotificationListener) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel != nil {
		return
	}
	l.cancel = l.transp.Subscribe(l.onEvent)
}

// Stop ends forwarding. Idempotent.
func (l *NotificationListener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.cancel == nil {
		return
	}
	l.cancel()
	l.cancel = nil
}

func (l *NotificationListener) onEvent(ev Event) {
	switch ev.Kind {
	case EventNotification:
		if l.onNotification != nil {
			l.onNotification(*ev.Notification)
		}
	case EventSessionStarted:
		if l.onSessionStarted != nil {
			l.onSessionStarted(*ev.Session)
		}
	}
}
