package state

import "testing"

func TestNewDefaultsToStopped(t *testing.T) {
	s := New("1.2.3")
	snap := s.Snapshot()
	if snap.ConnectionState != "stopped" {
		t.Fatalf("expected initial connection state 'stopped', got %q", snap.ConnectionState)
	}
	if snap.Version != "1.2.3" {
		t.Fatalf("expected version 1.2.3, got %q", snap.Version)
	}
	if snap.PendingRestart || snap.PendingReconnect {
		t.Fatalf("expected no pending flags set initially: %+v", snap)
	}
}

func TestSettersArePublishedToSnapshot(t *testing.T) {
	s := New("dev")
	s.SetConnectionState("connected")
	s.SetPendingRestart(true)
	s.SetPendingReconnect(true)

	snap := s.Snapshot()
	if snap.ConnectionState != "connected" {
		t.Fatalf("expected connection state 'connected', got %q", snap.ConnectionState)
	}
	if !snap.PendingRestart || !snap.PendingReconnect {
		t.Fatalf("expected both pending flags set: %+v", snap)
	}

	s.ClearPendingRestart()
	s.ClearPendingReconnect()
	snap = s.Snapshot()
	if snap.PendingRestart || snap.PendingReconnect {
		t.Fatalf("expected both pending flags cleared: %+v", snap)
	}
}
