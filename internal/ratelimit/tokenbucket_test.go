package ratelimit

import (
	"testing"
	"time"
)

func TestGetDecrementsAndClamps(t *testing.T) {
	tb := New(10, time.Hour)
	defer tb.Stop()

	if got := tb.Get(4); got != 4 {
		t.Fatalf("got %d, want 4", got)
	}
	if got := tb.Current(); got != 6 {
		t.Fatalf("current = %d, want 6", got)
	}
	if got := tb.Get(100); got != 6 {
		t.Fatalf("got %d, want 6 (clamped to remaining)", got)
	}
}

func TestReturnClampsToCapacity(t *testing.T) {
	tb := New(5, time.Hour)
	defer tb.Stop()

	tb.Get(5)
	tb.Return(100)
	if got := tb.Current(); got != 5 {
		t.Fatalf("current = %d, want 5 (clamped)", got)
	}
	tb.Return(0)
	tb.Return(-1)
	if got := tb.Current(); got != 5 {
		t.Fatalf("non-positive Return must be a no-op, got %d", got)
	}
}

func TestGetBlocksUntilTick(t *testing.T) {
	tb := New(1, 30*time.Millisecond)
	defer tb.Stop()

	tb.Get(1)
	start := time.Now()
	got := tb.Get(1)
	elapsed := time.Since(start)
	if got != 1 {
		t.Fatalf("got %d, want 1", got)
	}
	if elapsed < 10*time.Millisecond {
		t.Fatalf("Get returned too quickly (%v), expected to wait for tick", elapsed)
	}
}

func TestSetCapacityRetainsMin(t *testing.T) {
	tb := New(10, time.Hour)
	defer tb.Stop()

	tb.Get(2) // current = 8
	tb.SetCapacity(5)
	if got := tb.Current(); got != 5 {
		t.Fatalf("current = %d, want 5", got)
	}

	tb.SetCapacity(20)
	if got := tb.Current(); got != 5 {
		t.Fatalf("current = %d, want 5 (unchanged on capacity increase)", got)
	}
}
