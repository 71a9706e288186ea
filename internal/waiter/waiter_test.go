package waiter

import (
	"context"
	"testing"
	"time"
)

func TestCompleteResolvesWaiter(t *testing.T) {
	w := New()
	key := Key{"get_file_stream", "agentA", "123"}

	f, err := WaitIndefinitely[string](w, key)
	if err != nil {
		t.Fatalf("WaitIndefinitely: %v", err)
	}
	if !w.IsWaitingFor(key) {
		t.Fatalf("expected IsWaitingFor true")
	}

	if err := Complete(w, key, "payload"); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	v, err := f.Wait(context.Background())
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if v != "payload" {
		t.Fatalf("got %q, want %q", v, "payload")
	}
	if w.IsWaitingFor(key) {
		t.Fatalf("registration should be removed after Complete")
	}
}

func TestDoubleWaitIsError(t *testing.T) {
	w := New()
	key := Key{"x"}
	if _, err := WaitIndefinitely[int](w, key); err != nil {
		t.Fatalf("first Wait: %v", err)
	}
	if _, err := WaitIndefinitely[int](w, key); err != ErrAlreadyWaiting {
		t.Fatalf("second Wait: got %v, want ErrAlreadyWaiting", err)
	}
}

func TestTimeout(t *testing.T) {
	w := New()
	key := Key{"timeout-key"}
	f, err := Wait[int](w, key, 20*time.Millisecond)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	_, err = f.Wait(context.Background())
	if err != ErrTimeout {
		t.Fatalf("got %v, want ErrTimeout", err)
	}
	if w.IsWaitingFor(key) {
		t.Fatalf("timed-out registration should be removed")
	}
}

func TestThrow(t *testing.T) {
	w := New()
	key := Key{"err-key"}
	f, err := WaitIndefinitely[int](w, key)
	if err != nil {
		t.Fatalf("Wait: %v", err)
	}
	boom := errTest("boom")
	if err := Throw(w, key, boom); err != nil {
		t.Fatalf("Throw: %v", err)
	}
	_, err = f.Wait(context.Background())
	if err != boom {
		t.Fatalf("got %v, want %v", err, boom)
	}
}

func TestReentrantWaitAfterComplete(t *testing.T) {
	w := New()
	key := Key{"reentrant"}

	f, _ := WaitIndefinitely[int](w, key)
	done := make(chan struct{})
	go func() {
		f.Wait(context.Background())
		// Re-entrant wait on the same key must succeed since the
		// registration was removed before the waiter was woken.
		if _, err := WaitIndefinitely[int](w, key); err != nil {
			t.Errorf("re-entrant Wait: %v", err)
		}
		close(done)
	}()
	Complete(w, key, 1)
	<-done
}

func TestCompleteUnknownKey(t *testing.T) {
	w := New()
	if err := Complete(w, Key{"nope"}, 1); err != ErrNotWaiting {
		t.Fatalf("got %v, want ErrNotWaiting", err)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }
