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

// Package ratelimit implements the fixed-interval TokenBucket of §4.L2:
// capacity resets to full on every tick rather than leaking continuously,
// which is a different model from golang.org/x/time/rate's continuous
// refill and from third-party leaky-bucket libraries in the retrieval
// pack, so this is a small purpose-built type rather than a wrapped
// dependency (see DESIGN.md). The shape — a mutex-guarded counter plus a
// background ticker goroutine stopped via a done channel — follows the
// teacher's supervisor-goroutine idiom (pkg/search/websocket.go's wsHub.run).
package ratelimit

import (
	"sync"
	"time"
)

// TokenBucket hands out up to Capacity units of "budget" per Interval,
// suspending Get calls that arrive once the current tick is exhausted.
type TokenBucket struct {
	mu       sync.Mutex
	capacity int
	current  int
	interval time.Duration
	waiters  []chan struct{}

	stop chan struct{}
	once sync.Once
}

// New creates a TokenBucket with the given capacity (must be > 0) and
// refill interval, and starts its background tick goroutine.
func New(capacity int, interval time.Duration) *TokenBucket {
	if capacity <= 0 {
		panic("ratelimit: capacity must be > 0")
	}
	tb := &TokenBucket{
		capacity: capacity,
		current:  capacity,
		interval: interval,
		stop:     make(chan struct{}),
	}
	go tb.run()
	return tb
}

func (tb *TokenBucket) run() {
	ticker := time.NewTicker(tb.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			tb.mu.Lock()
			tb.current = tb.capacity
			woken := tb.waiters
			tb.waiters = nil
			tb.mu.Unlock()
			for _, ch := range woken {
				close(ch)
			}
		case <-tb.stop:
			return
		}
	}
}

// Stop terminates the background tick goroutine. Stop is idempotent.
func (tb *TokenBucket) Stop() {
	tb.once.Do(func() { close(tb.stop) })
}

// Get requests up to n units, blocking across tick boundaries until at
// least one unit is available, then returns min(n, current, capacity),
// decrementing the bucket by that amount.
func (tb *TokenBucket) Get(n int) int {
	if n <= 0 {
		return 0
	}
	for {
		tb.mu.Lock()
		if tb.current > 0 {
			got := n
			if got > tb.current {
				got = tb.current
			}
			if got > tb.capacity {
				got = tb.capacity
			}
			tb.current -= got
			tb.mu.Unlock()
			return got
		}
		ch := make(chan struct{})
		tb.waiters = append(tb.waiters, ch)
		tb.mu.Unlock()
		<-ch
	}
}

// Return credits k units back to the bucket, clamped to capacity.
// Non-positive k is a no-op.
func (tb *TokenBucket) Return(k int) {
	if k <= 0 {
		return
	}
	tb.mu.Lock()
	tb.current += k
	if tb.current > tb.capacity {
		tb.current = tb.capacity
	}
	tb.mu.Unlock()
}

// SetCapacity changes the bucket's capacity, retaining min(current, newC).
func (tb *TokenBucket) SetCapacity(newC int) {
	if newC <= 0 {
		panic("ratelimit: capacity must be > 0")
	}
	tb.mu.Lock()
	tb.capacity = newC
	if tb.current > newC {
		tb.current = newC
	}
	tb.mu.Unlock()
}

// Current returns the currently available budget, for diagnostics/tests.
func (tb *TokenBucket) Current() int {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.current
}
