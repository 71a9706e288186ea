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

package config

import (
	"log"
	"sync"
)

// PeerConfigPatcher applies a partial soulseek.* patch to the live
// peer-protocol client (§4.C5 step 3). patch maps a dotted soulseek.*
// path (with the "soulseek." prefix stripped) to its new value.
// pendingReconnect is true if applying the patch requires the peer
// client to drop and re-establish its server connection.
type PeerConfigPatcher interface {
	ApplyPatch(patch map[string]any) (pendingReconnect bool, err error)
}

// StateObserver receives the reload plane's side effects so they surface
// in G's observable snapshot.
type StateObserver interface {
	SetPendingRestart(bool)
	SetPendingReconnect(bool)
}

// ReloadPlane reconciles configuration changes onto the running process
// (§4.C5). A single writer lock serialises every reconcile call, per §5's
// "Reconciliation is serialised behind a single writer lock."
type ReloadPlane struct {
	mu      sync.Mutex
	current Options
	patcher PeerConfigPatcher
	state   StateObserver
	log     *log.Logger
}

// NewReloadPlane builds a ReloadPlane seeded with the initial snapshot.
func NewReloadPlane(initial Options, patcher PeerConfigPatcher, state StateObserver, logger *log.Logger) *ReloadPlane {
	if logger == nil {
		logger = log.Default()
	}
	return &ReloadPlane{current: initial, patcher: patcher, state: state, log: logger}
}

// Current returns the plane's last-reconciled snapshot.
func (p *ReloadPlane) Current() Options {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Reconcile diffs next against the plane's current snapshot and applies
// it. A duplicate invocation carrying an unchanged snapshot (the
// underlying file watcher is noisy and may fire more than once per edit)
// produces no diffs and is a no-op, per §4.C5 step 4.
func (p *ReloadPlane) Reconcile(next Options) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	diffs := DiffOptions(p.current, next)
	if len(diffs) == 0 {
		return nil
	}

	requiresRestart := false
	patch := make(map[string]any)
	for _, d := range diffs {
		p.log.Printf("config: %s changed %v -> %v (requiresRestart=%v)", d.Path, d.Before, d.After, d.RequiresRestart)
		if d.RequiresRestart {
			requiresRestart = true
		}
		if d.SoulseekScoped {
			patch[soulseekRelativePath(d.Path)] = d.After
		}
	}

	if requiresRestart && p.state != nil {
		p.state.SetPendingRestart(true)
	}

	if len(patch) > 0 && p.patcher != nil {
		pendingReconnect, err := p.patcher.ApplyPatch(patch)
		if err != nil {
			return err
		}
		if pendingReconnect && p.state != nil {
			p.state.SetPendingReconnect(true)
		}
	}

	p.current = next
	return nil
}

func soulseekRelativePath(path string) string {
	const prefix = "soulseek."
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		return path[len(prefix):]
	}
	return path
}
