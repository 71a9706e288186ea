package uploadqueue

import (
	"context"
	"testing"
	"time"
)

type fakeUsers map[string]string

func (f fakeUsers) GroupFor(username string) string { return f[username] }

func newTestScheduler(users fakeUsers, specs []GroupSpec) *Scheduler {
	s := NewScheduler(users, specs, 0)
	return s
}

// fakeClock lets tests control "now" the way Sia's renter tests stub time
// for deterministic heap ordering.
type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time { return c.t }
func (c *fakeClock) advance(d time.Duration) {
	c.t = c.t.Add(d)
}

func TestS1PriorityVsStrategy(t *testing.T) {
	users := fakeUsers{"alice": GroupPrivileged, "bob": GroupDefault}
	specs := []GroupSpec{
		{Name: GroupPrivileged, Priority: 0, Slots: 1, Strategy: FIFO},
		{Name: GroupDefault, Priority: 1, Slots: 1, Strategy: FIFO},
	}
	s := newTestScheduler(users, specs)
	clock := &fakeClock{t: time.Unix(0, 0)}
	s.now = clock.now

	s.Enqueue("alice", "a.mp3")
	clock.advance(time.Second)
	s.Enqueue("bob", "b.mp3")

	got := s.Process()
	if got == nil || got.Username != "alice" || got.Filename != "a.mp3" {
		t.Fatalf("expected alice/a.mp3 released first, got %+v", got)
	}
	if err := s.Complete("alice", "a.mp3"); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	got = s.Process()
	if got == nil || got.Username != "bob" || got.Filename != "b.mp3" {
		t.Fatalf("expected bob/b.mp3 released after alice completes, got %+v", got)
	}
}

func TestS2RoundRobinFairness(t *testing.T) {
	users := fakeUsers{"u1": "rr", "u2": "rr"}
	specs := []GroupSpec{{Name: "rr", Priority: 0, Slots: 1, Strategy: RoundRobin}}
	s := newTestScheduler(users, specs)
	clock := &fakeClock{t: time.Unix(0, 0)}
	s.now = clock.now

	s.Enqueue("u1", "f1")
	clock.advance(time.Second)
	s.Enqueue("u1", "f2")
	clock.advance(time.Second)
	s.Enqueue("u2", "f3")
	clock.advance(time.Second)

	var order []string
	for i := 0; i < 3; i++ {
		got := s.Process()
		if got == nil {
			t.Fatalf("round %d: expected a release", i)
		}
		order = append(order, got.Filename)
		if err := s.Complete(got.Username, got.Filename); err != nil {
			t.Fatalf("Complete: %v", err)
		}
		clock.advance(time.Second)
	}

	want := []string{"f1", "f3", "f2"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("release order = %v, want %v", order, want)
		}
	}
}

func TestEnqueueIdempotent(t *testing.T) {
	users := fakeUsers{"u": GroupDefault}
	s := newTestScheduler(users, []GroupSpec{{Name: GroupDefault, Priority: 0, Slots: 1}})
	if got := s.Enqueue("u", "f"); got != Enqueued {
		t.Fatalf("first Enqueue = %v, want Enqueued", got)
	}
	if got := s.Enqueue("u", "f"); got != AlreadyQueued {
		t.Fatalf("second Enqueue = %v, want AlreadyQueued", got)
	}
}

func TestCompleteUnknownIsError(t *testing.T) {
	s := newTestScheduler(fakeUsers{}, nil)
	if err := s.Complete("nobody", "nofile"); err == nil {
		t.Fatalf("expected error for unknown user/file")
	}
}

func TestAwaitStartResolvesOnRelease(t *testing.T) {
	users := fakeUsers{"u": GroupDefault}
	s := newTestScheduler(users, []GroupSpec{{Name: GroupDefault, Priority: 0, Slots: 1}})
	s.Enqueue("u", "f")

	f, err := s.AwaitStart("u", "f")
	if err != nil {
		t.Fatalf("AwaitStart: %v", err)
	}

	done := make(chan struct{})
	go func() {
		f.Wait(context.Background())
		close(done)
	}()

	released := s.Process()
	if released == nil {
		t.Fatalf("expected a release")
	}
	<-done
}

func TestReconfigurePreservesUsedSlotsAndReassignsVanishedGroup(t *testing.T) {
	users := fakeUsers{"u": "custom"}
	s := newTestScheduler(users, []GroupSpec{
		{Name: GroupDefault, Priority: 1, Slots: 5},
		{Name: "custom", Priority: 0, Slots: 1},
	})
	s.Enqueue("u", "f")
	released := s.Process()
	if released == nil || released.AssignedGroup != "custom" {
		t.Fatalf("expected release into custom group, got %+v", released)
	}

	// custom disappears on reconfigure; its running upload is
	// re-bucketed into default for accounting only.
	s.Reconfigure([]GroupSpec{
		{Name: GroupDefault, Priority: 1, Slots: 5},
	}, 0)

	stats := s.Stats()
	if stats[GroupDefault][0] != 1 {
		t.Fatalf("expected default.usedSlots=1 after reassignment, got %+v", stats)
	}
}
