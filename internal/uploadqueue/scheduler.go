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

package uploadqueue

import (
	"sort"
	"sync"
	"time"

	"github.com/slskd/slskd/internal/slskderrors"
	"github.com/slskd/slskd/internal/waiter"
)

// userList is the per-user ordered residence list: every Upload the user
// currently has queued or started, in enqueue order.
type userList struct {
	uploads []*Upload
}

// Scheduler is the C1 UploadQueue. A single mutex guards the user map and
// the group table (§5); Process never performs I/O under the lock, and the
// readiness signal for a released upload is completed only after the lock
// is released.
type Scheduler struct {
	users UserService

	mu          sync.Mutex
	byUser      map[string]*userList
	groups      map[string]*group
	groupOrder  []string // insertion order, for priority ties
	globalSlots int

	// fairness tracks, per (group, user), the RoundRobin bump clock
	// described in §4.C1 step 3: initialised to the user's oldest
	// queued enqueued-at in that group, bumped to now() on release.
	fairness map[string]map[string]time.Time

	w   *waiter.Waiter
	now func() time.Time
}

// NewScheduler constructs a Scheduler with the given initial group table
// and global slot cap. users resolves usernames to group names at release
// time.
func NewScheduler(users UserService, specs []GroupSpec, globalSlots int) *Scheduler {
	s := &Scheduler{
		users:       users,
		byUser:      make(map[string]*userList),
		groups:      make(map[string]*group),
		fairness:    make(map[string]map[string]time.Time),
		w:           waiter.New(),
		now:         time.Now,
		globalSlots: globalSlots,
	}
	s.installGroups(specs)
	return s
}

func (s *Scheduler) installGroups(specs []GroupSpec) {
	prior := s.groups
	s.groups = make(map[string]*group)
	s.groupOrder = nil
	for _, spec := range specs {
		capacity := spec.Slots
		if s.globalSlots > 0 && capacity > s.globalSlots {
			capacity = s.globalSlots
		}
		g := &group{spec: spec, capacity: capacity}
		if old, ok := prior[spec.Name]; ok {
			g.usedSlots = old.usedSlots
		}
		s.groups[spec.Name] = g
		s.groupOrder = append(s.groupOrder, spec.Name)
	}
	// Groups that disappeared have their running uploads reassigned to
	// "default" for accounting only (§4.C1 "Reconfiguration hand-off");
	// they keep running to completion, so we only need to fix up the
	// bookkeeping counters and each upload's AssignedGroup.
	defaultGroup := s.groups[GroupDefault]
	for name, old := range prior {
		if _, stillExists := s.groups[name]; stillExists || old.usedSlots == 0 {
			continue
		}
		if defaultGroup != nil {
			defaultGroup.usedSlots += old.usedSlots
		}
	}
	for _, ul := range s.byUser {
		for _, u := range ul.uploads {
			if u.started {
				if _, exists := s.groups[u.AssignedGroup]; !exists && defaultGroup != nil {
					u.AssignedGroup = GroupDefault
				}
			}
		}
	}
}

// Reconfigure rebuilds the group table from a new snapshot (§4.C1
// "Reconfiguration hand-off"). Capacity is min(group.slots, globalSlots)
// for every group; used-slots is preserved for groups whose name persists.
// No upload is cancelled.
func (s *Scheduler) Reconfigure(specs []GroupSpec, globalSlots int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.globalSlots = globalSlots
	s.installGroups(specs)
}

// Enqueue appends a new Upload to user's list, creating the user entry on
// demand. Idempotent for a (user, filename) pair already present.
func (s *Scheduler) Enqueue(username, filename string) EnqueueResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	ul, ok := s.byUser[username]
	if !ok {
		ul = &userList{}
		s.byUser[username] = ul
	}
	for _, u := range ul.uploads {
		if u.Filename == filename {
			return AlreadyQueued
		}
	}
	ul.uploads = append(ul.uploads, &Upload{
		ID:         username + "\x1f" + filename,
		Username:   username,
		Filename:   filename,
		EnqueuedAt: s.now(),
	})
	return Enqueued
}

// AwaitStart returns the upload's readiness future, failing if no such
// upload is queued or started.
func (s *Scheduler) AwaitStart(username, filename string) (*waiter.Future[struct{}], error) {
	s.mu.Lock()
	_, _, found := s.find(username, filename)
	s.mu.Unlock()
	if !found {
		return nil, slskderrors.Wrap("uploadqueue.await_start", slskderrors.KindNotFound, nil)
	}
	f, err := waiter.WaitIndefinitely[struct{}](s.w, readyKey(username, filename))
	if err == waiter.ErrAlreadyWaiting {
		return nil, slskderrors.Wrap("uploadqueue.await_start", slskderrors.KindConflict, err)
	}
	return f, err
}

func readyKey(username, filename string) waiter.Key {
	return waiter.Key{"await_start", username, filename}
}

// find returns the user's list and the upload's index within it.
func (s *Scheduler) find(username, filename string) (*userList, int, bool) {
	ul, ok := s.byUser[username]
	if !ok {
		return nil, 0, false
	}
	for i, u := range ul.uploads {
		if u.Filename == filename {
			return ul, i, true
		}
	}
	return nil, 0, false
}

// Complete removes the upload, decrementing the used-slots counter of its
// assigned group (the group at release time, not enqueue time), and drops
// the user entry once its list is empty.
func (s *Scheduler) Complete(username, filename string) error {
	s.mu.Lock()
	ul, idx, found := s.find(username, filename)
	if !found {
		s.mu.Unlock()
		return slskderrors.Wrap("uploadqueue.complete", slskderrors.KindNotFound, nil)
	}
	u := ul.uploads[idx]
	ul.uploads = append(ul.uploads[:idx], ul.uploads[idx+1:]...)
	if len(ul.uploads) == 0 {
		delete(s.byUser, username)
	}
	if u.started {
		if g, ok := s.groups[u.AssignedGroup]; ok && g.usedSlots > 0 {
			g.usedSlots--
		}
	}
	s.mu.Unlock()
	return nil
}

// Process selects at most one upload to release, per the §4.C1 algorithm,
// and returns it (or nil if nothing could be released). The readiness
// signal is completed after the lock is released (§5).
func (s *Scheduler) Process() *Upload {
	s.mu.Lock()
	released := s.selectAndMark()
	s.mu.Unlock()

	if released != nil {
		waiter.Complete(s.w, readyKey(released.Username, released.Filename), struct{}{})
	}
	return released
}

// orderedGroupNames returns group names ascending by priority, ties
// broken by insertion order (privileged < default < leechers < user
// groups by declaration order, since those are installed in that order).
func (s *Scheduler) orderedGroupNames() []string {
	names := append([]string{}, s.groupOrder...)
	sort.SliceStable(names, func(i, j int) bool {
		gi, gj := s.groups[names[i]], s.groups[names[j]]
		return gi.spec.Priority < gj.spec.Priority
	})
	return names
}

func (s *Scheduler) selectAndMark() *Upload {
	for _, name := range s.orderedGroupNames() {
		g := s.groups[name]
		if g.usedSlots >= g.capacity {
			continue
		}
		candidate := s.selectCandidate(g)
		if candidate == nil {
			continue
		}
		now := s.now()
		candidate.AssignedGroup = name
		candidate.ReadyAt = now
		candidate.StartedAt = now
		candidate.started = true
		g.usedSlots++
		s.bumpFairness(name, candidate.Username, now)
		return candidate
	}
	return nil
}

// selectCandidate picks the winning not-yet-started upload within group g,
// per g's strategy, or nil if no user currently maps to g has a queued
// candidate.
func (s *Scheduler) selectCandidate(g *group) *Upload {
	switch g.spec.Strategy {
	case RoundRobin:
		return s.selectRoundRobin(g)
	default:
		return s.selectFIFO(g)
	}
}

func (s *Scheduler) groupMembers(groupName string) []string {
	var members []string
	for username := range s.byUser {
		if s.users.GroupFor(username) == groupName {
			members = append(members, username)
		}
	}
	return members
}

func (s *Scheduler) selectFIFO(g *group) *Upload {
	var best *Upload
	for _, username := range s.groupMembers(g.spec.Name) {
		ul := s.byUser[username]
		for _, u := range ul.uploads {
			if u.started {
				continue
			}
			if betterCandidate(u, best) {
				best = u
			}
		}
	}
	return best
}

func (s *Scheduler) selectRoundRobin(g *group) *Upload {
	var best *Upload
	var bestClock time.Time
	for _, username := range s.groupMembers(g.spec.Name) {
		head := headOfQueue(s.byUser[username])
		if head == nil {
			continue
		}
		clock := s.fairnessClock(g.spec.Name, username, head.EnqueuedAt)
		if best == nil || clock.Before(bestClock) ||
			(clock.Equal(bestClock) && lexLess(head, best)) {
			best, bestClock = head, clock
		}
	}
	return best
}

func headOfQueue(ul *userList) *Upload {
	if ul == nil {
		return nil
	}
	for _, u := range ul.uploads {
		if !u.started {
			return u
		}
	}
	return nil
}

func (s *Scheduler) fairnessClock(groupName, username string, enqueuedAt time.Time) time.Time {
	byUser, ok := s.fairness[groupName]
	if !ok {
		byUser = make(map[string]time.Time)
		s.fairness[groupName] = byUser
	}
	clock, ok := byUser[username]
	if !ok {
		clock = enqueuedAt
		byUser[username] = clock
	}
	return clock
}

func (s *Scheduler) bumpFairness(groupName, username string, at time.Time) {
	byUser, ok := s.fairness[groupName]
	if !ok {
		byUser = make(map[string]time.Time)
		s.fairness[groupName] = byUser
	}
	byUser[username] = at
}

// betterCandidate reports whether a is a better FIFO pick than the current
// best (nil best always loses): minimum enqueued-at, ties broken by
// (user, enqueued-at, filename) lex order.
func betterCandidate(a, best *Upload) bool {
	if best == nil {
		return true
	}
	if a.EnqueuedAt.Before(best.EnqueuedAt) {
		return true
	}
	if a.EnqueuedAt.After(best.EnqueuedAt) {
		return false
	}
	return lexLess(a, best)
}

func lexLess(a, b *Upload) bool {
	if a.Username != b.Username {
		return a.Username < b.Username
	}
	if !a.EnqueuedAt.Equal(b.EnqueuedAt) {
		return a.EnqueuedAt.Before(b.EnqueuedAt)
	}
	return a.Filename < b.Filename
}

// Stats returns a snapshot of (usedSlots, capacity) per group name, for
// diagnostics.
func (s *Scheduler) Stats() map[string][2]int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][2]int, len(s.groups))
	for name, g := range s.groups {
		out[name] = [2]int{g.usedSlots, g.capacity}
	}
	return out
}

// QueueLength returns the total number of queued (not-yet-started)
// uploads across all users, for the resolver's SearchResponse queue
// length (§4.C2).
func (s *Scheduler) QueueLength() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ul := range s.byUser {
		for _, u := range ul.uploads {
			if !u.started {
				n++
			}
		}
	}
	return n
}

// HasFreeNonLeecherSlot reports whether any group other than "leechers"
// currently has used-slots < capacity, for the resolver's freeUploadSlots
// flag (§4.C2).
func (s *Scheduler) HasFreeNonLeecherSlot() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, g := range s.groups {
		if name == GroupLeechers {
			continue
		}
		if g.usedSlots < g.capacity {
			return true
		}
	}
	return false
}
