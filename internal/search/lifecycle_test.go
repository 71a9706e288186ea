package search

import (
	"context"
	"testing"
	"time"

	"github.com/slskd/slskd/internal/shareindex"
)

type fakePeers struct {
	broadcastErr error
	calls        int
}

func (p *fakePeers) BroadcastSearch(ctx context.Context, token int32, text string) error {
	p.calls++
	return p.broadcastErr
}

func newTestLifecycle(t *testing.T, peers PeerClient, limits Limits) *Lifecycle {
	t.Helper()
	st, err := OpenStore(":memory:")
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	l := NewLifecycle(st, peers, limits)
	l.now = func() time.Time { return time.Unix(0, 0) }
	return l
}

func TestCreateTransitionsToInProgress(t *testing.T) {
	l := newTestLifecycle(t, &fakePeers{}, Limits{})
	rec, err := l.Create(context.Background(), "beatles", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.State != InProgress {
		t.Fatalf("state = %v, want InProgress", rec.State)
	}
}

func TestCreateErrorsOnBroadcastFailure(t *testing.T) {
	l := newTestLifecycle(t, &fakePeers{broadcastErr: errTest("offline")}, Limits{})
	rec, err := l.Create(context.Background(), "beatles", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if rec.State != CompletedErrored {
		t.Fatalf("state = %v, want CompletedErrored", rec.State)
	}
	found, err := l.Find(rec.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if found.State != CompletedErrored {
		t.Fatalf("persisted state = %v, want CompletedErrored", found.State)
	}
}

type errTest string

func (e errTest) Error() string { return string(e) }

func TestOnResponseAccumulatesAndCapsAtMaxResponses(t *testing.T) {
	l := newTestLifecycle(t, &fakePeers{}, Limits{MaxResponses: 2})
	rec, err := l.Create(context.Background(), "beatles", "")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	resp := PeerResponse{Username: "peer1", Files: []shareindex.File{{Path: "a"}}}
	if err := l.OnResponse(rec.ID, resp); err != nil {
		t.Fatalf("OnResponse: %v", err)
	}
	mid, err := l.Find(rec.ID)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if mid.State != InProgress {
		t.Fatalf("state after 1 response = %v, want InProgress", mid.State)
	}

	resp.Username = "peer2"
	if err := l.OnResponse(rec.ID, resp); err != nil {
		t.Fatalf("OnResponse: %v", err)
	}

	final, err := l.store.Find(rec.ID)
	if err != nil {
		t.Fatalf("store.Find: %v", err)
	}
	if final.State != CompletedResponseLimitReached {
		t.Fatalf("state = %v, want CompletedResponseLimitReached", final.State)
	}
	if len(final.ResponseList) != 2 {
		t.Fatalf("expected 2 persisted responses, got %d", len(final.ResponseList))
	}
}

func TestOnResponseIgnoredAfterTerminal(t *testing.T) {
	l := newTestLifecycle(t, &fakePeers{}, Limits{})
	rec, _ := l.Create(context.Background(), "beatles", "")
	if err := l.Cancel(rec.ID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if err := l.OnResponse(rec.ID, PeerResponse{Username: "late"}); err != nil {
		t.Fatalf("OnResponse after terminal should be a no-op, got err: %v", err)
	}
	final, err := l.store.Find(rec.ID)
	if err != nil {
		t.Fatalf("store.Find: %v", err)
	}
	if final.State != CompletedCancelled {
		t.Fatalf("state = %v, want CompletedCancelled (unchanged by late response)", final.State)
	}
}

func TestCancelOnAlreadyTerminalIsConflict(t *testing.T) {
	l := newTestLifecycle(t, &fakePeers{}, Limits{})
	rec, _ := l.Create(context.Background(), "beatles", "")
	if err := l.Cancel(rec.ID); err != nil {
		t.Fatalf("first Cancel: %v", err)
	}
	if err := l.Cancel(rec.ID); err == nil {
		t.Fatalf("expected error cancelling an already-terminal search")
	}
}

func TestFileLimitTakesPriorityOverResponseLimit(t *testing.T) {
	l := newTestLifecycle(t, &fakePeers{}, Limits{MaxResponses: 100, MaxFiles: 1})
	rec, _ := l.Create(context.Background(), "beatles", "")
	if err := l.OnResponse(rec.ID, PeerResponse{Username: "peer1", Files: []shareindex.File{{Path: "a"}}}); err != nil {
		t.Fatalf("OnResponse: %v", err)
	}
	final, err := l.store.Find(rec.ID)
	if err != nil {
		t.Fatalf("store.Find: %v", err)
	}
	if final.State != CompletedFileLimitReached {
		t.Fatalf("state = %v, want CompletedFileLimitReached", final.State)
	}
}
