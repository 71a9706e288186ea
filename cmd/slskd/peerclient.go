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

package main

import (
	"context"
	"sync"

	"github.com/slskd/slskd/internal/slsk"
)

// noopPeerClient is the integration seam slsk.Client documents: the
// actual wire protocol (framing, login, the distributed network) is out
// of scope for this repository, so this stands in for it. Connect
// returns as soon as the session is open; the session then stays open
// until Disconnect (reported as an intentional close) or ctx
// cancellation (reported as a shutdown). A real deployment replaces this with an
// adapter over the wire library, unchanged on both sides of the
// watchdog.Dialer / search.PeerClient seam.
type noopPeerClient struct {
	username string
	events   *slsk.EventAdapter

	mu   sync.Mutex
	stop chan struct{}
}

func newNoopPeerClient(username string, events *slsk.EventAdapter) *noopPeerClient {
	return &noopPeerClient{username: username, events: events}
}

func (c *noopPeerClient) Connect(ctx context.Context) error {
	c.mu.Lock()
	stop := make(chan struct{})
	c.stop = stop
	c.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			c.events.OnDisconnect(c.username, slsk.CauseShuttingDown, ctx.Err())
		case <-stop:
			c.events.OnDisconnect(c.username, slsk.CauseIntentional, nil)
		}
	}()
	return nil
}

func (c *noopPeerClient) BroadcastSearch(ctx context.Context, token int32, text string) error {
	return nil
}

func (c *noopPeerClient) Disconnect() error {
	c.mu.Lock()
	stop := c.stop
	c.mu.Unlock()
	if stop != nil {
		close(stop)
	}
	return nil
}
