// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"slices"
	"time"

	"github.com/rs/zerolog"
)

// heartbeat runs the waiting set sweep once the heartbeat deadline is
// reached. The deadline moves in whole intervals from the previous one, so
// loop latency does not push later sweeps back; missed deadlines collapse
// into a single sweep.
func (b *Broker) heartbeat() {
	now := b.clock.Now()
	if now.Before(b.heartbeatAt) {
		return
	}
	b.sweep(now)
	for !b.heartbeatAt.After(now) {
		b.heartbeatAt = b.heartbeatAt.Add(b.interval)
	}
}

// sweep evicts expired idle workers and sends a HEARTBEAT to the others.
// Busy workers are neither checked nor pinged.
func (b *Broker) sweep(now time.Time) {
	for _, w := range slices.Clone(b.waiting) {
		if w.IsExpired(now) {
			b.log.Info().
				Hex("worker", []byte(w.Address)).
				Str("service", w.Service.String()).
				Msg("worker expired")
			b.deleteWorker(w, false)
			b.stats.Expired++
			continue
		}
		b.send([]byte(w.Address), NewWorkerHeartbeat())
	}

	if b.log.GetLevel() > zerolog.DebugLevel {
		return
	}
	for _, name := range b.services.Names() {
		svc := b.services.Get(name)
		b.log.Debug().
			Str("service", name.String()).
			Int("pending", svc.Pending()).
			Int("idle", svc.Idle()).
			Msg("service queues")
	}
}
