// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/trickstertwo/xclock"
)

// ManualClock is a clock that only moves when told to. Its tickers fire
// from Advance.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

// NewManualClock returns a clock stopped at start.
func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d and fires every ticker whose next
// tick is due. Like time.Ticker, a tick is dropped when the previous one
// has not been received yet.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
	for _, t := range c.tickers {
		t.fire(c.now)
	}
}

// NewTicker returns a ticker driven by Advance.
func (c *ManualClock) NewTicker(d time.Duration) xclock.Ticker {
	if d <= 0 {
		panic("testutil: non-positive ticker period")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTicker{
		clock:  c,
		c:      make(chan time.Time, 1),
		period: d,
		next:   c.now.Add(d),
	}
	c.tickers = append(c.tickers, t)
	return t
}

type manualTicker struct {
	clock   *ManualClock
	c       chan time.Time
	period  time.Duration
	next    time.Time
	stopped bool
}

// fire is called with the clock lock held.
func (t *manualTicker) fire(now time.Time) {
	if t.stopped || now.Before(t.next) {
		return
	}
	select {
	case t.c <- now:
	default:
	}
	for !t.next.After(now) {
		t.next = t.next.Add(t.period)
	}
}

func (t *manualTicker) C() <-chan time.Time { return t.c }

func (t *manualTicker) Stop() {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.stopped = true
}

func (t *manualTicker) Reset(d time.Duration) {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	t.period = d
	t.next = t.clock.now.Add(d)
	t.stopped = false
}

// ReplyTracker tracks requests sent and replies received by body.
type ReplyTracker struct {
	sent     map[string]time.Time
	received map[string]time.Time
	order    []string
	mu       sync.RWMutex
}

// NewReplyTracker creates a new reply tracker
func NewReplyTracker() *ReplyTracker {
	return &ReplyTracker{
		sent:     make(map[string]time.Time),
		received: make(map[string]time.Time),
	}
}

// MarkSent marks a request as sent
func (rt *ReplyTracker) MarkSent(id string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.sent[id] = time.Now()
}

// MarkReceived marks the reply to a request as received
func (rt *ReplyTracker) MarkReceived(id string) {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	rt.received[id] = time.Now()
	rt.order = append(rt.order, id)
}

// Order returns the ids in the order their replies arrived.
func (rt *ReplyTracker) Order() []string {
	rt.mu.RLock()
	defer rt.mu.RUnlock()
	return append([]string(nil), rt.order...)
}

// MaxLatency returns the slowest round trip seen so far.
func (rt *ReplyTracker) MaxLatency() time.Duration {
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	var worst time.Duration
	for id, sent := range rt.sent {
		if recv, ok := rt.received[id]; ok && recv.Sub(sent) > worst {
			worst = recv.Sub(sent)
		}
	}
	return worst
}

// VerifyDelivery verifies that every request got its reply
func (rt *ReplyTracker) VerifyDelivery(t testing.TB) {
	t.Helper()
	rt.mu.RLock()
	defer rt.mu.RUnlock()

	if len(rt.sent) != len(rt.received) {
		t.Errorf("Reply delivery mismatch: sent %d, received %d", len(rt.sent), len(rt.received))
	}
	for id := range rt.sent {
		if _, ok := rt.received[id]; !ok {
			t.Errorf("Request %s was sent but no reply was received", id)
		}
	}
}

// TestTimeoutContext creates a context with timeout for testing
func TestTimeoutContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// WaitWithTimeout waits for a condition with timeout
func WaitWithTimeout(t testing.TB, condition func() bool, timeout time.Duration, checkInterval time.Duration) {
	t.Helper()
	ctx, cancel := TestTimeoutContext(timeout)
	defer cancel()

	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.Fatalf("Timeout waiting for condition after %v", timeout)
		case <-ticker.C:
			if condition() {
				return
			}
		}
	}
}
