// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package testutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClockTicker(t *testing.T) {
	start := time.Unix(1700000000, 0)
	clock := NewManualClock(start)
	ticker := clock.NewTicker(time.Second)

	clock.Advance(999 * time.Millisecond)
	assert.Empty(t, ticker.C())

	clock.Advance(time.Millisecond)
	assert.Equal(t, start.Add(time.Second), <-ticker.C())

	// Unreceived ticks are dropped.
	clock.Advance(time.Second)
	clock.Advance(time.Second)
	assert.Len(t, ticker.C(), 1)
	assert.Equal(t, start.Add(2*time.Second), <-ticker.C())

	// A long jump fires once and keeps the phase.
	clock.Advance(2500 * time.Millisecond)
	assert.Equal(t, start.Add(5500*time.Millisecond), <-ticker.C())
	clock.Advance(500 * time.Millisecond)
	assert.Equal(t, start.Add(6*time.Second), <-ticker.C())

	ticker.Stop()
	clock.Advance(time.Minute)
	assert.Empty(t, ticker.C())

	ticker.Reset(time.Second)
	clock.Advance(time.Second)
	assert.Len(t, ticker.C(), 1)
}
