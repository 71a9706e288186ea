/*
Copyright 2026 The slskd Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package search

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/slskd/slskd/internal/slskderrors"
)

// PeerClient is the narrow slice of the out-of-scope peer-protocol
// transport the lifecycle needs: a way to actually put a search token on
// the wire. Everything downstream of that — responses trickling back in,
// the eventual terminal outcome — is delivered to the lifecycle by the
// transport calling OnResponse/Complete, not pulled by it.
type PeerClient interface {
	BroadcastSearch(ctx context.Context, token int32, text string) error
}

// Limits bounds one outgoing search (§4.C2 "Completed" edge cases).
type Limits struct {
	MaxResponses int
	MaxFiles     int
	Timeout      time.Duration
}

// liveSearch is the lifecycle's in-memory working copy of a search still
// in flight. Nothing here is read once the search goes terminal; at that
// point the store record is authoritative.
type liveSearch struct {
	rec       *Search
	responses []PeerResponse
	timer     *time.Timer
}

// Lifecycle drives the outgoing-search state machine of §4.C2: Requested
// -> InProgress -> one of the Completed* terminal states. Grounded on
// perkeep's pkg/search query-deadline handling for the timeout path and
// on its in-memory-index-plus-persisted-corpus split for the store
// relationship.
type Lifecycle struct {
	mu      sync.Mutex
	store   *Store
	peers   PeerClient
	limits  Limits
	live    map[string]*liveSearch
	now     func() time.Time
	afterFn func(d time.Duration, f func()) *time.Timer
}

// NewLifecycle builds a Lifecycle backed by store, issuing searches
// through peers and bounding them by limits.
func NewLifecycle(store *Store, peers PeerClient, limits Limits) *Lifecycle {
	return &Lifecycle{
		store:  store,
		peers:  peers,
		limits: limits,
		live:   make(map[string]*liveSearch),
		now:    time.Now,
		afterFn: func(d time.Duration, f func()) *time.Timer {
			return time.AfterFunc(d, f)
		},
	}
}

// Create starts a new outgoing search for text within scope and returns
// its initial record. The search transitions Requested -> InProgress as
// soon as the token is broadcast; a broadcast failure completes it
// Errored immediately.
func (l *Lifecycle) Create(ctx context.Context, text, scope string) (*Search, error) {
	id := uuid.NewString()
	token := rand.Int31()
	now := l.now()

	rec := &Search{
		ID:        id,
		Text:      text,
		Scope:     scope,
		Token:     token,
		State:     Requested,
		StartedAt: now,
	}
	if err := l.store.Insert(rec); err != nil {
		return nil, err
	}

	l.mu.Lock()
	ls := &liveSearch{rec: rec}
	l.live[id] = ls
	l.mu.Unlock()

	if err := l.peers.BroadcastSearch(ctx, token, text); err != nil {
		l.finalize(id, CompletedErrored)
		rec.State = CompletedErrored
		return rec, nil
	}

	rec.State = InProgress
	if l.limits.Timeout > 0 {
		ls.timer = l.afterFn(l.limits.Timeout, func() { l.finalize(id, CompletedTimedOut) })
	}
	return rec, nil
}

// OnResponse records one peer's reply. Responses that arrive after a
// search has already gone terminal are silently dropped — the remote
// agent may keep streaming results past a local timeout/cancel, and
// that is not an error condition.
func (l *Lifecycle) OnResponse(id string, resp PeerResponse) error {
	l.mu.Lock()
	ls, ok := l.live[id]
	if !ok {
		l.mu.Unlock()
		return nil
	}
	ls.responses = append(ls.responses, resp)
	files := 0
	locked := 0
	for _, r := range ls.responses {
		files += len(r.Files)
		locked += r.LockedFileCount
	}
	responses := len(ls.responses)
	l.mu.Unlock()

	if err := l.store.UpdateCounters(id, responses, files, locked); err != nil {
		return err
	}

	if l.limits.MaxFiles > 0 && files >= l.limits.MaxFiles {
		l.finalize(id, CompletedFileLimitReached)
		return nil
	}
	if l.limits.MaxResponses > 0 && responses >= l.limits.MaxResponses {
		l.finalize(id, CompletedResponseLimitReached)
		return nil
	}
	return nil
}

// Cancel ends id early with CompletedCancelled. Returns a Conflict error
// if the search is already terminal.
func (l *Lifecycle) Cancel(id string) error {
	l.mu.Lock()
	_, ok := l.live[id]
	l.mu.Unlock()
	if !ok {
		return slskderrors.Wrap("search.Lifecycle.Cancel", slskderrors.KindConflict,
			fmt.Errorf("search %s is not in progress", id))
	}
	return l.finalize(id, CompletedCancelled)
}

// finalize transitions id to state exactly once, persisting its final
// response list and dropping it from the live set.
func (l *Lifecycle) finalize(id string, state State) error {
	l.mu.Lock()
	ls, ok := l.live[id]
	if !ok {
		l.mu.Unlock()
		return nil
	}
	delete(l.live, id)
	if ls.timer != nil {
		ls.timer.Stop()
	}
	responses := ls.responses
	l.mu.Unlock()

	return l.store.Finalize(id, state, responses, l.now())
}

// Find returns the current record for id, consulting the live set first
// so in-progress counters are fresh.
func (l *Lifecycle) Find(id string) (*Search, error) {
	l.mu.Lock()
	if ls, ok := l.live[id]; ok {
		rec := *ls.rec
		rec.Responses = len(ls.responses)
		rec.Files, rec.LockedFiles = 0, 0
		for _, r := range ls.responses {
			rec.Files += len(r.Files)
			rec.LockedFiles += r.LockedFileCount
		}
		l.mu.Unlock()
		return &rec, nil
	}
	l.mu.Unlock()
	return l.store.Find(id)
}

// List returns every search this lifecycle knows about, delegating to
// the persisted store.
func (l *Lifecycle) List() ([]*Search, error) {
	return l.store.List()
}
