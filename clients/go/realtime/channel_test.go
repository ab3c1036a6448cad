package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mentorlink/realtime/internal/models"
)

func newTestChannel(t *testing.T) (*Channel, *Transport) {
	t.Helper()
	srv := newWSServer(t)
	tr := newTestTransport(srv, loggedInSession())
	t.Cleanup(tr.Close)
	return NewChannel(tr, tr.session, "c1", "u-peer", nil), tr
}

func inboundEvent(id, sender, body string, ts time.Time) Event {
	return Event{Kind: EventLiveMessage, Message: &models.LiveMessage{
		ChatID:    "c1",
		SenderID:  sender,
		MessageID: id,
		Body:      body,
		Type:      models.MessageTypeText,
		Timestamp: ts.Format(time.RFC3339Nano),
	}}
}

func historyIDs(ch *Channel) []string {
	msgs := ch.History()
	ids := make([]string, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

func TestOutOfOrderArrivalIsSortedByTimestamp(t *testing.T) {
	ch, _ := newTestChannel(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ch.onEvent(inboundEvent("m3", "u-peer", "third", base.Add(3*time.Second)))
	ch.onEvent(inboundEvent("m1", "u-peer", "first", base.Add(1*time.Second)))
	ch.onEvent(inboundEvent("m2", "u-peer", "second", base.Add(2*time.Second)))

	got := historyIDs(ch)
	want := []string{"m1", "m2", "m3"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("order mismatch: got %v, want %v", got, want)
		}
	}
}

func TestEqualTimestampsKeepArrivalOrder(t *testing.T) {
	ch, _ := newTestChannel(t)
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ch.onEvent(inboundEvent("ma", "u-peer", "a", ts))
	ch.onEvent(inboundEvent("mb", "u-peer", "b", ts))
	ch.onEvent(inboundEvent("mc", "u-peer", "c", ts))

	got := historyIDs(ch)
	want := []string{"ma", "mb", "mc"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tie order mismatch: got %v, want %v", got, want)
		}
	}
}

func TestDuplicateInboundIgnored(t *testing.T) {
	ch, _ := newTestChannel(t)
	ts := time.Now().UTC()

	ch.onEvent(inboundEvent("m1", "u-peer", "hello", ts))
	ch.onEvent(inboundEvent("m1", "u-peer", "hello", ts))

	if n := len(ch.History()); n != 1 {
		t.Fatalf("expected 1 message, got %d", n)
	}
}

func TestOtherChatsAreFiltered(t *testing.T) {
	ch, _ := newTestChannel(t)

	ev := inboundEvent("m1", "u-peer", "hello", time.Now().UTC())
	ev.Message.ChatID = "some-other-chat"
	ch.onEvent(ev)

	if n := len(ch.History()); n != 0 {
		t.Fatalf("expected empty history, got %d messages", n)
	}
}

func TestSendWithoutConnectionStaysPending(t *testing.T) {
	ch, _ := newTestChannel(t)

	msg, err := ch.Send("hello", models.MessageTypeText, nil)
	if !errors.Is(err, ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	history := ch.History()
	if len(history) != 1 {
		t.Fatalf("expected the optimistic entry to remain, got %d messages", len(history))
	}
	if history[0].ID != msg.ID || history[0].Status != StatusPending {
		t.Fatalf("expected pending entry for %s, got %+v", msg.ID, history[0])
	}
}

func TestServerEchoReconcilesOptimisticSend(t *testing.T) {
	ch, _ := newTestChannel(t)

	msg, _ := ch.Send("hello", models.MessageTypeText, nil)

	serverTS := time.Now().UTC().Add(500 * time.Millisecond).Truncate(time.Millisecond)
	ch.onEvent(inboundEvent(msg.ID, "u-self", "hello", serverTS))

	history := ch.History()
	if len(history) != 1 {
		t.Fatalf("echo must reconcile, not duplicate: got %d messages", len(history))
	}
	if history[0].Status != StatusSent {
		t.Fatalf("expected sent, got %s", history[0].Status)
	}
	if !history[0].Timestamp.Equal(serverTS) {
		t.Fatalf("expected server timestamp %v, got %v", serverTS, history[0].Timestamp)
	}
}

func TestReconcileRepositionsByServerTimestamp(t *testing.T) {
	ch, _ := newTestChannel(t)
	base := time.Now().UTC()

	msg, _ := ch.Send("mine", models.MessageTypeText, nil)
	ch.onEvent(inboundEvent("m-peer", "u-peer", "theirs", base.Add(time.Minute)))

	// The server stamps the echo after the peer's message.
	ch.onEvent(inboundEvent(msg.ID, "u-self", "mine", base.Add(2*time.Minute)))

	got := historyIDs(ch)
	if got[0] != "m-peer" || got[1] != msg.ID {
		t.Fatalf("expected reposition after reconcile, got %v", got)
	}
}

func TestHydrateSkipsKnownMessages(t *testing.T) {
	ch, _ := newTestChannel(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	ch.onEvent(inboundEvent("m2", "u-peer", "live", base.Add(2*time.Second)))

	ch.Hydrate([]models.LiveMessage{
		{ChatID: "c1", SenderID: "u-peer", MessageID: "m1", Body: "stored",
			Type: models.MessageTypeText, Timestamp: base.Add(time.Second).Format(time.RFC3339Nano)},
		{ChatID: "c1", SenderID: "u-peer", MessageID: "m2", Body: "live",
			Type: models.MessageTypeText, Timestamp: base.Add(2 * time.Second).Format(time.RFC3339Nano)},
		{ChatID: "other", SenderID: "u-peer", MessageID: "m9", Body: "noise",
			Type: models.MessageTypeText, Timestamp: base.Format(time.RFC3339Nano)},
	})

	got := historyIDs(ch)
	if len(got) != 2 || got[0] != "m1" || got[1] != "m2" {
		t.Fatalf("unexpected history after hydrate: %v", got)
	}
}

func TestStatusProgressionIsMonotonic(t *testing.T) {
	ch, _ := newTestChannel(t)

	msg, _ := ch.Send("hello", models.MessageTypeText, nil)

	// Read requires sent first.
	ch.MarkRead(msg.ID)
	if ch.History()[0].Status != StatusPending {
		t.Fatal("pending must not jump to read")
	}

	ch.onEvent(inboundEvent(msg.ID, "u-self", "hello", time.Now().UTC()))
	ch.MarkRead(msg.ID)
	if got := ch.History()[0].Status; got != StatusRead {
		t.Fatalf("expected read, got %s", got)
	}

	// Terminal states stay put.
	ch.MarkFailed(msg.ID)
	if got := ch.History()[0].Status; got != StatusRead {
		t.Fatalf("read must not regress, got %s", got)
	}
}

func TestMarkFailedOnlyFromPending(t *testing.T) {
	ch, _ := newTestChannel(t)

	msg, _ := ch.Send("hello", models.MessageTypeText, nil)
	ch.MarkFailed(msg.ID)
	if got := ch.History()[0].Status; got != StatusFailed {
		t.Fatalf("expected failed, got %s", got)
	}

	// A late echo must not resurrect a failed message.
	ch.onEvent(inboundEvent(msg.ID, "u-self", "hello", time.Now().UTC()))
	if got := ch.History()[0].Status; got != StatusFailed {
		t.Fatalf("failed must be terminal, got %s", got)
	}
	if n := len(ch.History()); n != 1 {
		t.Fatalf("late echo duplicated the message: %d entries", n)
	}
}

func TestAttachIsIdempotent(t *testing.T) {
	ch, tr := newTestChannel(t)

	d1 := ch.Attach()
	d2 := ch.Attach()

	tr.subMu.Lock()
	subs := len(tr.subs)
	tr.subMu.Unlock()
	if subs != 1 {
		t.Fatalf("expected a single subscription, got %d", subs)
	}

	d1()
	d2() // second detach is a no-op

	tr.subMu.Lock()
	subs = len(tr.subs)
	tr.subMu.Unlock()
	if subs != 0 {
		t.Fatalf("expected no subscriptions after detach, got %d", subs)
	}
}

func TestDetachedChannelReceivesNothing(t *testing.T) {
	srv := newWSServer(t)
	tr := newTestTransport(srv, loggedInSession())
	defer tr.Close()
	tr.Connect(context.Background())

	ch := NewChannel(tr, tr.session, "c1", "u-peer", nil)
	detach := ch.Attach()

	srv.push(t, models.EventLiveMessage, &models.LiveMessage{
		ChatID: "c1", SenderID: "u-peer", MessageID: "m1", Body: "hi",
		Type: models.MessageTypeText, Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	waitFor(t, time.Second, func() bool { return len(ch.History()) == 1 }, "attached delivery")

	detach()

	srv.push(t, models.EventLiveMessage, &models.LiveMessage{
		ChatID: "c1", SenderID: "u-peer", MessageID: "m2", Body: "again",
		Type: models.MessageTypeText, Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	})
	time.Sleep(100 * time.Millisecond)
	if n := len(ch.History()); n != 1 {
		t.Fatalf("detached channel received a message: %d entries", n)
	}
}

func TestOnUpdateFiresOnHistoryChanges(t *testing.T) {
	srv := newWSServer(t)
	tr := newTestTransport(srv, loggedInSession())
	defer tr.Close()

	updates := 0
	ch := NewChannel(tr, tr.session, "c1", "u-peer", func() { updates++ })

	ch.onEvent(inboundEvent("m1", "u-peer", "hi", time.Now().UTC()))
	if updates != 1 {
		t.Fatalf("expected 1 update after insert, got %d", updates)
	}

	// Duplicates change nothing and stay silent.
	ch.onEvent(inboundEvent("m1", "u-peer", "hi", time.Now().UTC()))
	if updates != 1 {
		t.Fatalf("expected no update for duplicate, got %d", updates)
	}
}
