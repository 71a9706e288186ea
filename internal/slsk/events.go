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

// Package slsk carries the narrow interfaces C1-C5 consume from the
// out-of-scope peer-protocol client (§1's "OUT OF SCOPE" list): framing,
// distributed-network messaging, and the client's own event-handler
// chains are never implemented here, only the seams this repository's
// core needs to depend on.
package slsk

// EventKind tags the normalised variant a raw peer-client callback is
// folded into (§9 DESIGN NOTES: "event-handler chains from the peer
// library... become channel-based fan-out from a single adapter that
// normalises event types into tagged variants").
type EventKind int

const (
	EventDisconnected EventKind = iota
	EventTransferState
	EventDiagnostic
)

func (k EventKind) String() string {
	switch k {
	case EventDisconnected:
		return "disconnected"
	case EventTransferState:
		return "transfer-state"
	case EventDiagnostic:
		return "diagnostic"
	default:
		return "unknown"
	}
}

// DisconnectCause classifies why the server connection ended, the
// discrimination §4.C3 requires before deciding whether to reconnect.
type DisconnectCause int

const (
	CauseUnexpected DisconnectCause = iota
	CauseShuttingDown
	CauseIntentional
	CauseLoginRejected
	CauseKickedFromServer
)

// ShouldReconnect reports whether a disconnect with this cause should be
// followed by a watchdog restart (§4.C3's reconnect policy: retry unless
// shutting-down, intentional-disconnect, login-rejected, or
// kicked-from-server).
func (c DisconnectCause) ShouldReconnect() bool { return c == CauseUnexpected }

// IsFatal reports whether this cause should park the watchdog and log at
// error level rather than silently staying Stopped.
func (c DisconnectCause) IsFatal() bool {
	return c == CauseLoginRejected || c == CauseKickedFromServer
}

// Event is the tagged variant every peer-client callback is normalised
// into before it reaches a subscriber. Fields not relevant to Kind are
// left zero.
type Event struct {
	Kind EventKind

	// EventDisconnected
	Username string
	Cause    DisconnectCause
	Err      error

	// EventTransferState
	TransferID int
	State      string

	// EventDiagnostic
	Message string
}

// EventAdapter is the single fan-out point every peer-client callback
// chain (OnDisconnect, OnTransferState, OnDiagnostic, ...) is wired
// into. Subscribers read off a channel instead of registering their own
// callback, so C3's watchdog and any future consumer never touch the
// peer client's own handler-chain API directly.
type EventAdapter struct {
	out chan Event
}

// NewEventAdapter builds an adapter buffering up to capacity events
// before a slow subscriber starts dropping the oldest ones.
func NewEventAdapter(capacity int) *EventAdapter {
	return &EventAdapter{out: make(chan Event, capacity)}
}

// Events returns the channel subscribers read normalised events from.
func (a *EventAdapter) Events() <-chan Event { return a.out }

// publish enqueues ev, dropping the oldest buffered event on overflow
// rather than blocking the peer client's own callback goroutine.
func (a *EventAdapter) publish(ev Event) {
	select {
	case a.out <- ev:
		return
	default:
	}
	select {
	case <-a.out:
	default:
	}
	select {
	case a.out <- ev:
	default:
	}
}

// OnDisconnect is wired directly as the peer client's disconnect
// callback.
func (a *EventAdapter) OnDisconnect(username string, cause DisconnectCause, err error) {
	a.publish(Event{Kind: EventDisconnected, Username: username, Cause: cause, Err: err})
}

// OnTransferState is wired directly as the peer client's transfer-state
// callback.
func (a *EventAdapter) OnTransferState(transferID int, state string) {
	a.publish(Event{Kind: EventTransferState, TransferID: transferID, State: state})
}

// OnDiagnostic is wired directly as the peer client's diagnostic-message
// callback.
func (a *EventAdapter) OnDiagnostic(message string) {
	a.publish(Event{Kind: EventDiagnostic, Message: message})
}
