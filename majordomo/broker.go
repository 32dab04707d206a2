// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog"

	"github.com/destiny/mdbroker/logging"
)

// BrokerOptions configures MDP broker behavior
type BrokerOptions struct {
	HeartbeatInterval time.Duration // Heartbeat interval, also the poll bound
	HeartbeatLiveness int           // Heartbeat liveness factor

	Logger    *zerolog.Logger // nil selects a warn level console logger
	Clock     Clock           // nil selects xclock.Default()
	Transport Transport       // nil selects a ROUTER socket
}

// DefaultBrokerOptions returns default broker options
func DefaultBrokerOptions() *BrokerOptions {
	return &BrokerOptions{
		HeartbeatInterval: DefaultHeartbeatInterval,
		HeartbeatLiveness: DefaultHeartbeatLiveness,
	}
}

// Broker implements the MDP broker. All state is owned by the goroutine
// running Run; other goroutines only talk to it through channels.
type Broker struct {
	// Configuration
	endpoint string
	interval time.Duration
	liveness int
	expiry   time.Duration
	log      zerolog.Logger
	clock    Clock

	// Networking
	transport Transport
	bound     bool
	ctx       context.Context
	cancel    context.CancelFunc

	// State management
	workers     *WorkerRegistry
	services    *ServiceRegistry
	waiting     []*BrokerWorker // idle workers, oldest first
	heartbeatAt time.Time
	stats       Counters

	// Lifecycle
	started  atomic.Bool
	running  atomic.Bool
	statsCh  chan chan Stats
	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewBroker creates a new MDP broker for endpoint.
func NewBroker(endpoint string, options *BrokerOptions) *Broker {
	if options == nil {
		options = DefaultBrokerOptions()
	}
	interval := options.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	liveness := options.HeartbeatLiveness
	if liveness <= 0 {
		liveness = DefaultHeartbeatLiveness
	}
	clock := options.Clock
	if clock == nil {
		clock = defaultClock()
	}
	expiry := interval * time.Duration(liveness)

	ctx, cancel := context.WithCancel(context.Background())

	return &Broker{
		endpoint:    endpoint,
		interval:    interval,
		liveness:    liveness,
		expiry:      expiry,
		log:         logging.OrDefault(options.Logger).With().Str("component", "broker").Logger(),
		clock:       clock,
		transport:   options.Transport,
		ctx:         ctx,
		cancel:      cancel,
		workers:     NewWorkerRegistry(clock, expiry),
		services:    NewServiceRegistry(),
		heartbeatAt: clock.Now().Add(interval),
		statsCh:     make(chan chan Stats),
		stopCh:      make(chan struct{}),
		done:        make(chan struct{}),
	}
}

// Bind binds the broker transport to its endpoint.
func (b *Broker) Bind() error {
	if b.bound {
		return fmt.Errorf("mdp: broker already bound to %s", b.endpoint)
	}
	if b.transport == nil {
		b.transport = NewRouterTransport(b.ctx)
	}
	if err := b.transport.Listen(b.endpoint); err != nil {
		return fmt.Errorf("mdp: failed to bind broker socket: %w", err)
	}
	b.bound = true
	b.log.Info().Str("endpoint", b.endpoint).Msg("broker bound")
	return nil
}

// Run binds the transport if needed and processes messages until ctx is
// done or Stop is called. Queued requests and idle workers are discarded on
// return. A broker runs at most once.
func (b *Broker) Run(ctx context.Context) error {
	if !b.started.CompareAndSwap(false, true) {
		return fmt.Errorf("mdp: broker already started")
	}
	defer close(b.done)
	defer b.cancel()

	if !b.bound {
		if err := b.Bind(); err != nil {
			return err
		}
	}

	msgs := make(chan zmq4.Msg)
	errs := make(chan error, 1)
	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pump(b.transport.Recv, msgs, errs, quit)
	}()

	// Anchor the deadline before starting the ticker so every tick lands on
	// or after a deadline.
	b.heartbeatAt = b.clock.Now().Add(b.interval)
	ticker := b.clock.NewTicker(b.interval)
	defer ticker.Stop()

	b.running.Store(true)
	b.log.Info().
		Dur("heartbeat", b.interval).
		Int("liveness", b.liveness).
		Msg("broker running")

	var err error
loop:
	for {
		select {
		case msg := <-msgs:
			b.handle(msg)
		case rerr := <-errs:
			err = fmt.Errorf("mdp: broker receive: %w", rerr)
			b.log.Error().Err(rerr).Msg("receive failed")
			break loop
		case resp := <-b.statsCh:
			resp <- b.snapshot()
		case <-ticker.C():
		case <-ctx.Done():
			err = ctx.Err()
			break loop
		case <-b.stopCh:
			break loop
		}
		b.heartbeat()
	}

	b.running.Store(false)
	close(quit)
	if cerr := b.transport.Close(); cerr != nil {
		b.log.Error().Err(cerr).Msg("failed to close broker socket")
	}
	wg.Wait()

	b.log.Info().
		Int("workers", b.workers.Len()).
		Uint64("requests", b.stats.Requests).
		Msg("broker stopped")
	return err
}

// Stop makes Run return. It is safe to call more than once and from any
// goroutine.
func (b *Broker) Stop() {
	b.stopOnce.Do(func() { close(b.stopCh) })
}

// handle routes one inbound frame set: [sender, "", header, ...].
func (b *Broker) handle(msg zmq4.Msg) {
	if len(msg.Frames) == 0 {
		b.stats.Dropped++
		return
	}
	sender := msg.Frames[0]

	m, err := Decode(msg.Frames[1:])
	if err != nil {
		b.stats.Dropped++
		b.log.Warn().Hex("peer", sender).Err(err).Msg("dropping invalid message")
		return
	}

	switch m := m.(type) {
	case *ClientRequest:
		b.processClient(sender, m)
	default:
		b.processWorker(sender, m)
	}
}

// processClient queues a client request, or answers it for an mmi.*
// service.
func (b *Broker) processClient(sender []byte, m *ClientRequest) {
	b.stats.Requests++
	if m.Service.Internal() {
		b.serviceInternal(sender, m)
		return
	}
	svc := b.services.GetOrCreate(m.Service)
	b.enqueueRequest(svc, &PendingRequest{Client: sender, Body: m.Body})
	b.drain(svc)
}

func (b *Broker) serviceInternal(sender []byte, m *ClientRequest) {
	code := StatusNotImplemented
	if m.Service == ServiceDiscovery {
		code = StatusNotFound
		if b.services.Exists(ServiceName(m.Body)) {
			code = StatusOK
		}
	}
	b.send(sender, NewClientReply(m.Service, []byte(code)))
}

// processWorker applies one worker command. Whether the address was known
// before this message decides between normal handling and forced removal.
func (b *Broker) processWorker(sender []byte, m Message) {
	addr := string(sender)
	known := b.workers.Exists(addr)

	switch m := m.(type) {
	case *WorkerReady:
		w := b.workers.GetOrCreate(addr)
		if known {
			b.log.Info().Hex("worker", sender).Msg("duplicate READY, disconnecting worker")
			b.deleteWorker(w, true)
			return
		}
		if m.Service.Internal() {
			b.log.Info().Hex("worker", sender).Str("service", m.Service.String()).Msg("READY for internal service, disconnecting worker")
			b.deleteWorker(w, true)
			return
		}
		w.Service = m.Service
		w.touch(b.clock.Now().Add(b.expiry))
		svc := b.services.GetOrCreate(m.Service)
		b.log.Info().Hex("worker", sender).Str("service", m.Service.String()).Msg("worker registered")
		b.enqueueIdleWorker(svc, w)
		b.drain(svc)

	case *WorkerReply:
		w := b.workers.GetOrCreate(addr)
		if !known || w.Service == "" {
			b.log.Info().Hex("worker", sender).Msg("REPLY from unregistered worker, removing")
			b.deleteWorker(w, false)
			return
		}
		w.touch(b.clock.Now().Add(b.expiry))
		b.send(m.Client, NewClientReply(w.Service, m.Body))
		b.stats.Replies++
		svc := b.services.GetOrCreate(w.Service)
		b.enqueueIdleWorker(svc, w)
		b.drain(svc)

	case *WorkerHeartbeat:
		w := b.workers.GetOrCreate(addr)
		if !known {
			b.log.Info().Hex("worker", sender).Msg("HEARTBEAT from unregistered worker, disconnecting")
			b.deleteWorker(w, true)
			return
		}
		w.touch(b.clock.Now().Add(b.expiry))

	case *WorkerDisconnect:
		if w := b.workers.Get(addr); w != nil {
			b.log.Info().Hex("worker", sender).Str("service", w.Service.String()).Msg("worker disconnected")
			b.deleteWorker(w, false)
		}

	default:
		b.stats.Dropped++
		b.log.Warn().Hex("peer", sender).Str("command", commandOf(m)).Msg("dropping unexpected worker command")
	}
}

func commandOf(m Message) string {
	if c, ok := m.(interface{ Command() Command }); ok {
		return c.Command().String()
	}
	return fmt.Sprintf("%T", m)
}

// send is fire and forget: failures are logged and not retried.
func (b *Broker) send(addr []byte, m Message) {
	frames := append([][]byte{addr}, Encode(m)...)
	if err := b.transport.Send(zmq4.NewMsgFrom(frames...)); err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		b.log.Error().Hex("peer", addr).Err(err).Msg("send failed")
	}
}
