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

// Package watchdog implements §4.C3's ConnectionWatchdog: it owns the
// Stopped/Connecting/Connected state machine for the single server
// connection and retries with the tabulated exponential backoff series,
// the way perkeep's client/android sync loop retries a dropped upload
// session rather than handing the retry policy to the caller.
package watchdog

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/slskd/slskd/internal/slskderrors"
)

// State is the watchdog's connection state (§3 "ConnectionState").
type State int

const (
	Stopped State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "stopped"
	}
}

// maxBackoff is the ceiling the series in §4.C3/S5 saturates at: 0, 1, 3,
// 7, 15, 31, 63, 127, 255, 300, 300, ... Each term is the prior term
// doubled plus one (d(n) = 2*d(n-1)+1), clamped at maxBackoff.
const maxBackoff = 300 * time.Second

// backoffFor returns the delay before attempt n (0-indexed), including a
// uniformly-random jitter in [0, base/4] per §4.C3.
func backoffFor(n int, jitter func(base time.Duration) time.Duration) time.Duration {
	base := time.Duration(0)
	for i := 0; i < n; i++ {
		base = 2*base + time.Second
		if base > maxBackoff {
			base = maxBackoff
			break
		}
	}
	if base == 0 {
		return 0
	}
	return base + jitter(base)
}

// Dialer is the narrow collaborator the watchdog needs: a way to make
// one connection attempt. A nil error return means the connection is up:
// the watchdog moves to Connected and its loop ends, so it does not redial
// by itself when that connection later drops. A FatalError (or an
// Unauthorized/Kicked error) means don't retry; any other error is
// retried with backoff.
type Dialer interface {
	Connect(ctx context.Context) error
}

// FatalError marks a Dialer failure as non-retryable (§4.C3 "fatal
// cause"): login rejection and being kicked from the server both end the
// watchdog in Stopped rather than retrying.
type FatalError struct {
	Err error
}

func (f *FatalError) Error() string { return f.Err.Error() }
func (f *FatalError) Unwrap() error { return f.Err }

// OnStateChange is invoked on every state transition, the hook the
// relay/reload planes use to propagate connection state into G's
// StateStore.
type OnStateChange func(State)

// Watchdog supervises one logical server connection, retrying failed
// connection attempts with backoff until one succeeds, it is stopped, or
// a fatal cause ends retries for good.
type Watchdog struct {
	dialer   Dialer
	onChange OnStateChange

	mu      sync.Mutex
	state   State
	cancel  context.CancelFunc
	done    chan struct{}
	attempt int

	now    func() time.Time
	jitter func(base time.Duration) time.Duration
	sleep  func(context.Context, time.Duration) bool
}

// New builds a Watchdog that dials through d.
func New(d Dialer, onChange OnStateChange) *Watchdog {
	w := &Watchdog{
		dialer:   d,
		onChange: onChange,
		state:    Stopped,
		now:      time.Now,
		jitter:   func(base time.Duration) time.Duration { return time.Duration(rand.Int63n(int64(base) / 4)) },
	}
	w.sleep = w.sleepImpl
	return w
}

func (w *Watchdog) sleepImpl(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}

// State returns the watchdog's current state.
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Start begins the connect/retry loop if it is not already running. It
// is a no-op if the watchdog is already Connecting or Connected.
func (w *Watchdog) Start() {
	w.mu.Lock()
	if w.state != Stopped {
		w.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	w.cancel = cancel
	w.done = make(chan struct{})
	w.attempt = 0
	w.mu.Unlock()

	w.setState(Connecting)
	go w.run(ctx, w.done)
}

// Restart stops any in-flight connection/backoff and starts again from
// attempt zero, the operator-initiated "reconnect now" path.
func (w *Watchdog) Restart() {
	w.Stop()
	w.Start()
}

// Stop cancels the retry loop and blocks until it has exited, leaving the
// watchdog Stopped. It is safe to call when already stopped.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	if w.state == Stopped {
		w.mu.Unlock()
		return
	}
	cancel := w.cancel
	done := w.done
	w.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	w.setState(Stopped)
}

func (w *Watchdog) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
	if w.onChange != nil {
		w.onChange(s)
	}
}

func (w *Watchdog) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		w.setState(Connecting)

		err := w.dialer.Connect(ctx)
		if ctx.Err() != nil {
			// Stop() is driving this shutdown and will set Stopped itself
			// once it observes done closed.
			return
		}
		if err == nil {
			w.setState(Connected)
			return
		}

		fatalCause := slskderrors.Is(err, slskderrors.KindUnauthorized) || slskderrors.Is(err, slskderrors.KindKicked)
		var fatal *FatalError
		if errors.As(err, &fatal) {
			fatalCause = true
		}
		if fatalCause {
			w.setState(Stopped)
			return
		}

		w.mu.Lock()
		n := w.attempt
		w.attempt++
		w.mu.Unlock()

		delay := backoffFor(n, w.jitter)
		if !w.sleep(ctx, delay) {
			return
		}
	}
}
