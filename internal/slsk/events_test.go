package slsk

import "testing"

func TestEventAdapterDeliversDisconnect(t *testing.T) {
	a := NewEventAdapter(4)
	a.OnDisconnect("alice", CauseUnexpected, nil)

	ev := <-a.Events()
	if ev.Kind != EventDisconnected || ev.Username != "alice" {
		t.Fatalf("got %+v", ev)
	}
	if !ev.Cause.ShouldReconnect() {
		t.Fatalf("CauseUnexpected should reconnect")
	}
}

func TestDisconnectCauseClassification(t *testing.T) {
	cases := []struct {
		cause         DisconnectCause
		shouldReconn  bool
		fatal         bool
	}{
		{CauseUnexpected, true, false},
		{CauseShuttingDown, false, false},
		{CauseIntentional, false, false},
		{CauseLoginRejected, false, true},
		{CauseKickedFromServer, false, true},
	}
	for _, c := range cases {
		if got := c.cause.ShouldReconnect(); got != c.shouldReconn {
			t.Fatalf("%v.ShouldReconnect() = %v, want %v", c.cause, got, c.shouldReconn)
		}
		if got := c.cause.IsFatal(); got != c.fatal {
			t.Fatalf("%v.IsFatal() = %v, want %v", c.cause, got, c.fatal)
		}
	}
}

func TestEventAdapterDropsOldestOnOverflow(t *testing.T) {
	a := NewEventAdapter(1)
	a.OnDiagnostic("first")
	a.OnDiagnostic("second")

	ev := <-a.Events()
	if ev.Message != "second" {
		t.Fatalf("expected overflow to drop the oldest event, got %q", ev.Message)
	}
}
