// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"time"

	"github.com/trickstertwo/xclock"
)

// Clock is the time source of the broker. The heartbeat tick comes from
// the same clock as the expiry deadlines it checks.
type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) xclock.Ticker
}

// defaultClock returns the process wide clock.
func defaultClock() Clock {
	return xclock.Default()
}
