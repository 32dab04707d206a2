// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import "context"

// Stats is a snapshot of the broker state.
type Stats struct {
	Workers  int            `json:"workers"`
	Waiting  int            `json:"waiting"`
	Services []ServiceStats `json:"services"`
	Counters
}

// ServiceStats reports the queue depths of one service.
type ServiceStats struct {
	Name    ServiceName `json:"name"`
	Pending int         `json:"pending"`
	Idle    int         `json:"idle"`
}

// Counters accumulate over the broker lifetime.
type Counters struct {
	Requests   uint64 `json:"requests"`   // client requests received
	Dispatched uint64 `json:"dispatched"` // requests handed to workers
	Replies    uint64 `json:"replies"`    // worker replies forwarded
	Expired    uint64 `json:"expired"`    // workers evicted by the sweep
	Dropped    uint64 `json:"dropped"`    // undecodable frame sets
}

// Stats returns a snapshot taken inside the event loop.
func (b *Broker) Stats(ctx context.Context) (Stats, error) {
	if !b.running.Load() {
		return Stats{}, ErrBrokerNotRunning
	}
	resp := make(chan Stats, 1)
	select {
	case b.statsCh <- resp:
	case <-b.done:
		return Stats{}, ErrBrokerNotRunning
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
	select {
	case s := <-resp:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

func (b *Broker) snapshot() Stats {
	s := Stats{
		Workers:  b.workers.Len(),
		Waiting:  len(b.waiting),
		Services: make([]ServiceStats, 0, b.services.Len()),
		Counters: b.stats,
	}
	for _, name := range b.services.Names() {
		svc := b.services.Get(name)
		s.Services = append(s.Services, ServiceStats{
			Name:    name,
			Pending: svc.Pending(),
			Idle:    svc.Idle(),
		})
	}
	return s
}
