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

// Package state holds the process's observable snapshot (§9 G):
// pending-restart, pending-reconnect, peer-connection state, uptime, and
// version. It replaces the teacher's server-state globals with an
// explicit constructor-injected collaborator that C3 and C5 publish
// into and the HTTP API reads from.
package state

import (
	"sync"
	"time"
)

// Snapshot is an immutable point-in-time read of the store.
type Snapshot struct {
	Version          string
	StartedAt        time.Time
	Uptime           time.Duration
	ConnectionState  string
	PendingRestart   bool
	PendingReconnect bool
}

// Store is the single observable-state holder for the running process.
// Every setter is safe for concurrent use; C3's watchdog callback and
// C5's reload plane both publish into it from their own goroutines.
type Store struct {
	mu sync.RWMutex

	version   string
	startedAt time.Time
	now       func() time.Time

	connectionState  string
	pendingRestart   bool
	pendingReconnect bool
}

// New builds a Store stamped with the given version string, started now.
func New(version string) *Store {
	return &Store{
		version:   version,
		startedAt: time.Now(),
		now:       time.Now,
		connectionState: "stopped",
	}
}

// SetConnectionState records the peer-connection's current state, as
// reported by watchdog.OnStateChange (e.g. "stopped", "connecting",
// "connected").
func (s *Store) SetConnectionState(v string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connectionState = v
}

// SetPendingRestart implements config.StateObserver.
func (s *Store) SetPendingRestart(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingRestart = v
}

// SetPendingReconnect implements config.StateObserver.
func (s *Store) SetPendingReconnect(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pendingReconnect = v
}

// ClearPendingRestart resets the flag once an operator has acted on it
// (e.g. after the process actually restarts).
func (s *Store) ClearPendingRestart() { s.SetPendingRestart(false) }

// ClearPendingReconnect resets the flag once the peer client has
// reconnected successfully.
func (s *Store) ClearPendingReconnect() { s.SetPendingReconnect(false) }

// Snapshot returns a consistent read of the whole observable state, for
// GET /application (§6.1).
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Version:          s.version,
		StartedAt:        s.startedAt,
		Uptime:           s.now().Sub(s.startedAt),
		ConnectionState:  s.connectionState,
		PendingRestart:   s.pendingRestart,
		PendingReconnect: s.pendingReconnect,
	}
}
