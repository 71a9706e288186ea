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

// Package search implements both halves of §4.C2: the synchronous
// Resolver that answers remote peers' search requests out of a
// shareindex.ShareIndex, and the Lifecycle state machine for searches an
// operator initiates through the API, persisted in a sqlite-backed store.
package search

import (
	"time"

	"github.com/slskd/slskd/internal/shareindex"
)

// State is a Search's lifecycle state (§3 "Search"). Terminal states are
// sticky: no transition ever leaves a Completed* state (§8).
type State int

const (
	Requested State = iota
	InProgress
	CompletedTimedOut
	CompletedResponseLimitReached
	CompletedFileLimitReached
	CompletedErrored
	CompletedCancelled
)

func (s State) String() string {
	switch s {
	case Requested:
		return "requested"
	case InProgress:
		return "in_progress"
	case CompletedTimedOut:
		return "completed_timed_out"
	case CompletedResponseLimitReached:
		return "completed_response_limit_reached"
	case CompletedFileLimitReached:
		return "completed_file_limit_reached"
	case CompletedErrored:
		return "completed_errored"
	case CompletedCancelled:
		return "completed_cancelled"
	default:
		return "unknown"
	}
}

// IsTerminal reports whether s is one of the Completed* states.
func (s State) IsTerminal() bool {
	return s >= CompletedTimedOut
}

// PeerResponse is one peer's reply to an outgoing search, the unit the
// lifecycle streams into memory as responses arrive.
type PeerResponse struct {
	Username        string
	Token           int32
	FreeUploadSlots int
	UploadSpeed     int64
	QueueLength     int
	Files           []shareindex.File
	LockedFileCount int
}

// Search is the persisted record for one outgoing search (§3 "Search").
// ResponseList is write-once: it is populated exactly once, at the terminal
// transition, and is nil/empty before that (§4.C2 invariant). Responses,
// Files and LockedFiles are running counts.
type Search struct {
	ID           string
	Text         string
	Scope        string
	Token        int32
	State        State
	Responses    int
	Files        int
	LockedFiles  int
	StartedAt    time.Time
	EndedAt      time.Time
	ResponseList []PeerResponse
}
