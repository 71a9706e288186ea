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

package slsk

import "context"

// Client is the narrow slice of the peer-protocol client that C3 dials
// and C2 broadcasts searches through. It satisfies both
// internal/watchdog.Dialer (via Connect) and internal/search.PeerClient
// (via BroadcastSearch) so a single concrete adapter over the real wire
// library can be handed to both without this repository depending on the
// wire library's own types.
type Client interface {
	// Connect logs into the server and returns nil once the session is
	// established; the end of that session is reported later as an Event
	// carrying its DisconnectCause. A connect/login failure returns an
	// error instead, classified by the caller via the slskderrors
	// sentinels (Unauthorized, Kicked) rather than through
	// DisconnectCause, matching watchdog.Dialer's contract.
	Connect(ctx context.Context) error

	// BroadcastSearch sends the given query to the distributed network
	// under the given token, the call a Lifecycle makes at C2's
	// create-search step.
	BroadcastSearch(ctx context.Context, token int32, text string) error

	// Disconnect intentionally ends the current session, the
	// caller-initiated counterpart to an unexpected disconnect; its
	// resulting Event carries CauseIntentional.
	Disconnect() error
}
