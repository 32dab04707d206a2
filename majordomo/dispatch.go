// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

// enqueueRequest queues a client request at the tail of svc.
func (b *Broker) enqueueRequest(svc *Service, req *PendingRequest) {
	svc.requests = append(svc.requests, req)
}

// enqueueIdleWorker appends w to the idle queue of svc and to the broker
// waiting set. A worker that is already waiting keeps its place.
func (b *Broker) enqueueIdleWorker(svc *Service, w *BrokerWorker) {
	if w.waiting {
		return
	}
	w.waiting = true
	svc.waiting = append(svc.waiting, w)
	b.waiting = append(b.waiting, w)
}

// drain pairs queued requests with idle workers of svc, oldest first on
// both sides, until one of the queues is empty.
func (b *Broker) drain(svc *Service) {
	for len(svc.requests) > 0 && len(svc.waiting) > 0 {
		req := svc.requests[0]
		svc.requests[0] = nil
		svc.requests = svc.requests[1:]

		w := svc.waiting[0]
		svc.waiting[0] = nil
		svc.waiting = svc.waiting[1:]
		b.unwait(w)

		b.log.Debug().
			Hex("worker", []byte(w.Address)).
			Hex("client", req.Client).
			Str("service", svc.Name.String()).
			Msg("dispatch request")
		b.send([]byte(w.Address), NewWorkerRequest(req.Client, req.Body))
		b.stats.Dispatched++
	}
}

// unwait drops w from the broker waiting set.
func (b *Broker) unwait(w *BrokerWorker) {
	w.waiting = false
	for i, o := range b.waiting {
		if o == w {
			b.waiting = append(b.waiting[:i], b.waiting[i+1:]...)
			return
		}
	}
}

// deleteWorker removes w from every queue and from the registry,
// optionally telling it to disconnect first.
func (b *Broker) deleteWorker(w *BrokerWorker, disconnect bool) {
	if disconnect {
		b.send([]byte(w.Address), NewWorkerDisconnect())
	}
	if w.waiting {
		if svc := b.services.Get(w.Service); svc != nil {
			svc.removeWorker(w)
		}
		b.unwait(w)
	}
	b.workers.Remove(w.Address)
}
