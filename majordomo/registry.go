// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"sort"
	"time"
)

// BrokerWorker represents a connected worker from the broker's perspective.
// Service is a lookup key into the broker's ServiceRegistry and is empty
// until the worker sent READY.
type BrokerWorker struct {
	Address string
	Service ServiceName
	Expiry  time.Time

	waiting bool // member of its service's idle queue and the waiting set
}

// IsExpired reports whether the worker has been silent past its deadline.
func (w *BrokerWorker) IsExpired(now time.Time) bool {
	return now.After(w.Expiry)
}

// touch moves the expiry deadline forward; it never moves backwards.
func (w *BrokerWorker) touch(expiry time.Time) {
	if expiry.After(w.Expiry) {
		w.Expiry = expiry
	}
}

// PendingRequest is a client request queued until a worker is idle.
type PendingRequest struct {
	Client []byte
	Body   []byte
}

// Service represents a service with its request and idle worker queues.
type Service struct {
	Name ServiceName

	requests []*PendingRequest
	waiting  []*BrokerWorker
}

// Pending returns the number of queued requests.
func (s *Service) Pending() int { return len(s.requests) }

// Idle returns the number of idle workers.
func (s *Service) Idle() int { return len(s.waiting) }

func (s *Service) removeWorker(w *BrokerWorker) {
	for i, o := range s.waiting {
		if o == w {
			s.waiting = append(s.waiting[:i], s.waiting[i+1:]...)
			return
		}
	}
}

// WorkerRegistry maps peer addresses to workers.
type WorkerRegistry struct {
	clock    Clock
	lifetime time.Duration
	workers  map[string]*BrokerWorker
}

// NewWorkerRegistry returns an empty registry; new workers expire lifetime
// after their creation.
func NewWorkerRegistry(clock Clock, lifetime time.Duration) *WorkerRegistry {
	return &WorkerRegistry{
		clock:    clock,
		lifetime: lifetime,
		workers:  make(map[string]*BrokerWorker),
	}
}

// GetOrCreate returns the worker at address, creating it if absent.
func (r *WorkerRegistry) GetOrCreate(address string) *BrokerWorker {
	if w, ok := r.workers[address]; ok {
		return w
	}
	w := &BrokerWorker{
		Address: address,
		Expiry:  r.clock.Now().Add(r.lifetime),
	}
	r.workers[address] = w
	return w
}

// Get returns the worker at address, or nil.
func (r *WorkerRegistry) Get(address string) *BrokerWorker {
	return r.workers[address]
}

// Exists reports whether a worker is registered at address.
func (r *WorkerRegistry) Exists(address string) bool {
	_, ok := r.workers[address]
	return ok
}

// Remove drops the worker at address.
func (r *WorkerRegistry) Remove(address string) {
	delete(r.workers, address)
}

// Len returns the number of registered workers.
func (r *WorkerRegistry) Len() int { return len(r.workers) }

// ServiceRegistry maps names to services. Services are never removed.
type ServiceRegistry struct {
	services map[ServiceName]*Service
}

func NewServiceRegistry() *ServiceRegistry {
	return &ServiceRegistry{services: make(map[ServiceName]*Service)}
}

// GetOrCreate returns the named service, creating it if absent.
func (r *ServiceRegistry) GetOrCreate(name ServiceName) *Service {
	if s, ok := r.services[name]; ok {
		return s
	}
	s := &Service{Name: name}
	r.services[name] = s
	return s
}

// Get returns the named service, or nil.
func (r *ServiceRegistry) Get(name ServiceName) *Service {
	return r.services[name]
}

// Exists reports whether name is a known service.
func (r *ServiceRegistry) Exists(name ServiceName) bool {
	_, ok := r.services[name]
	return ok
}

// Len returns the number of known services.
func (r *ServiceRegistry) Len() int { return len(r.services) }

// Names returns the service names in sorted order.
func (r *ServiceRegistry) Names() []ServiceName {
	names := make([]ServiceName, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
