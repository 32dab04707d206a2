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

// Handler processes one request body and returns the reply body.
type Handler func(ctx context.Context, request []byte) ([]byte, error)

// WorkerOptions configures MDP worker behavior
type WorkerOptions struct {
	HeartbeatInterval    time.Duration   // Heartbeat interval
	HeartbeatLiveness    int             // Heartbeat liveness factor
	ReconnectInterval    time.Duration   // Initial reconnection delay
	MaxReconnectInterval time.Duration   // Reconnection delay cap
	Logger               *zerolog.Logger // nil selects a warn level console logger
}

// DefaultWorkerOptions returns default worker options
func DefaultWorkerOptions() *WorkerOptions {
	return &WorkerOptions{
		HeartbeatInterval:    DefaultHeartbeatInterval,
		HeartbeatLiveness:    DefaultHeartbeatLiveness,
		ReconnectInterval:    2500 * time.Millisecond,
		MaxReconnectInterval: 18000 * time.Millisecond,
	}
}

// WorkerStats counts worker activity.
type WorkerStats struct {
	Requests   uint64 `json:"requests"`
	Replies    uint64 `json:"replies"`
	Errors     uint64 `json:"errors"`
	Reconnects uint64 `json:"reconnects"`
}

// Worker implements the MDP worker for a single service.
type Worker struct {
	service  ServiceName
	endpoint string
	handler  Handler
	log      zerolog.Logger

	interval     time.Duration
	liveness     int
	reconnect    time.Duration
	maxReconnect time.Duration

	requests   atomic.Uint64
	replies    atomic.Uint64
	errors     atomic.Uint64
	reconnects atomic.Uint64
}

// errBrokerDisconnect ends a session on a DISCONNECT from the broker.
var errBrokerDisconnect = errors.New("mdp: disconnected by broker")

// NewWorker creates a new MDP worker
func NewWorker(service ServiceName, endpoint string, handler Handler, options *WorkerOptions) (*Worker, error) {
	if err := service.Validate(); err != nil {
		return nil, err
	}
	if service.Internal() {
		return nil, fmt.Errorf("%w: %q is reserved", ErrInvalidServiceName, service)
	}
	if handler == nil {
		return nil, fmt.Errorf("mdp: request handler cannot be nil")
	}
	if options == nil {
		options = DefaultWorkerOptions()
	}
	def := DefaultWorkerOptions()

	w := &Worker{
		service:      service,
		endpoint:     endpoint,
		handler:      handler,
		log:          logging.OrDefault(options.Logger).With().Str("component", "worker").Str("service", service.String()).Logger(),
		interval:     options.HeartbeatInterval,
		liveness:     options.HeartbeatLiveness,
		reconnect:    options.ReconnectInterval,
		maxReconnect: options.MaxReconnectInterval,
	}
	if w.interval <= 0 {
		w.interval = def.HeartbeatInterval
	}
	if w.liveness <= 0 {
		w.liveness = def.HeartbeatLiveness
	}
	if w.reconnect <= 0 {
		w.reconnect = def.ReconnectInterval
	}
	if w.maxReconnect < w.reconnect {
		w.maxReconnect = max(def.MaxReconnectInterval, w.reconnect)
	}
	return w, nil
}

// Stats returns the worker counters.
func (w *Worker) Stats() WorkerStats {
	return WorkerStats{
		Requests:   w.requests.Load(),
		Replies:    w.replies.Load(),
		Errors:     w.errors.Load(),
		Reconnects: w.reconnects.Load(),
	}
}

// Run serves requests until ctx is done, reconnecting to the broker when
// it goes silent or asks the worker to disconnect. It returns ctx.Err().
func (w *Worker) Run(ctx context.Context) error {
	retry := newBackoff(w.reconnect, w.maxReconnect)
	for {
		heard, err := w.session(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if heard {
			retry.reset()
		}
		delay := retry.next()
		w.log.Warn().Err(err).Dur("delay", delay).Msg("reconnecting to broker")

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		w.reconnects.Add(1)
	}
}

// backoff doubles the reconnect delay after every attempt, up to ceiling.
type backoff struct {
	initial, ceiling, delay time.Duration
}

func newBackoff(initial, ceiling time.Duration) *backoff {
	return &backoff{initial: initial, ceiling: ceiling, delay: initial}
}

// next returns the delay before the coming attempt.
func (b *backoff) next() time.Duration {
	d := b.delay
	b.delay = min(b.delay*2, b.ceiling)
	return d
}

func (b *backoff) reset() {
	b.delay = b.initial
}

// session runs one connection to the broker. heard reports whether
// anything arrived from the broker.
func (w *Worker) session(ctx context.Context) (heard bool, err error) {
	sctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	socket := zmq4.NewDealer(sctx)
	if err := socket.Dial(w.endpoint); err != nil {
		socket.Close()
		return false, fmt.Errorf("mdp: failed to connect to broker %s: %w", w.endpoint, err)
	}

	msgs := make(chan zmq4.Msg)
	errs := make(chan error, 1)
	quit := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		pump(socket.Recv, msgs, errs, quit)
	}()
	defer func() {
		close(quit)
		socket.Close()
		wg.Wait()
	}()

	if err := w.sendToBroker(socket, NewWorkerReady(w.service)); err != nil {
		return false, err
	}
	w.log.Info().Str("endpoint", w.endpoint).Msg("connected to broker")

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	liveness := w.liveness
	heardTick := false
	for {
		select {
		case <-ctx.Done():
			if err := w.sendToBroker(socket, NewWorkerDisconnect()); err != nil {
				w.log.Debug().Err(err).Msg("send DISCONNECT")
			}
			return heard, ctx.Err()

		case err := <-errs:
			return heard, fmt.Errorf("mdp: worker receive: %w", err)

		case msg := <-msgs:
			heard, heardTick = true, true
			liveness = w.liveness
			if err := w.processMessage(ctx, socket, msg); err != nil {
				return heard, err
			}

		case <-ticker.C:
			if err := w.sendToBroker(socket, NewWorkerHeartbeat()); err != nil {
				return heard, err
			}
			if !heardTick {
				liveness--
				if liveness <= 0 {
					return heard, fmt.Errorf("mdp: broker silent for %d heartbeats", w.liveness)
				}
			}
			heardTick = false
		}
	}
}

func (w *Worker) processMessage(ctx context.Context, socket zmq4.Socket, msg zmq4.Msg) error {
	m, err := Decode(msg.Frames)
	if err != nil {
		w.log.Warn().Err(err).Msg("dropping invalid message")
		return nil
	}

	switch m := m.(type) {
	case *WorkerRequest:
		w.requests.Add(1)
		body, err := w.handler(ctx, m.Body)
		if err != nil {
			w.errors.Add(1)
			w.log.Error().Err(err).Hex("client", m.Client).Msg("handler failed")
			body = []byte(fmt.Sprintf("Error: %v", err))
		}
		if err := w.sendToBroker(socket, NewWorkerReply(m.Client, body)); err != nil {
			return err
		}
		w.replies.Add(1)
	case *WorkerHeartbeat:
	case *WorkerDisconnect:
		return errBrokerDisconnect
	default:
		w.log.Warn().Str("command", commandOf(m)).Msg("dropping unexpected command")
	}
	return nil
}

func (w *Worker) sendToBroker(socket zmq4.Socket, m Message) error {
	if err := socket.Send(zmq4.NewMsgFrom(Encode(m)...)); err != nil {
		return fmt.Errorf("mdp: failed to send %s: %w", commandOf(m), err)
	}
	return nil
}
