// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/rs/zerolog"

	"github.com/destiny/mdbroker/logging"
)

// ClientOptions configures MDP client behavior
type ClientOptions struct {
	Timeout time.Duration   // Reply timeout per attempt
	Retries int             // Attempts per Request
	Logger  *zerolog.Logger // nil selects a warn level console logger
}

// DefaultClientOptions returns default client options
func DefaultClientOptions() *ClientOptions {
	return &ClientOptions{
		Timeout: 2500 * time.Millisecond,
		Retries: 3,
	}
}

// Client implements the MDP client over a DEALER socket.
// A Client is not safe for concurrent use.
type Client struct {
	endpoint string
	timeout  time.Duration
	retries  int
	log      zerolog.Logger

	socket zmq4.Socket
	cancel context.CancelFunc
	msgs   chan zmq4.Msg
	errs   chan error
	quit   chan struct{}
	wg     sync.WaitGroup
}

// NewClient creates a new MDP client for the broker at endpoint.
func NewClient(endpoint string, options *ClientOptions) *Client {
	if options == nil {
		options = DefaultClientOptions()
	}
	c := &Client{
		endpoint: endpoint,
		timeout:  options.Timeout,
		retries:  options.Retries,
		log:      logging.OrDefault(options.Logger).With().Str("component", "client").Logger(),
	}
	if c.timeout <= 0 {
		c.timeout = DefaultClientOptions().Timeout
	}
	if c.retries <= 0 {
		c.retries = DefaultClientOptions().Retries
	}
	return c
}

// Connect dials the broker, replacing any previous connection.
func (c *Client) Connect() error {
	c.disconnect()

	ctx, cancel := context.WithCancel(context.Background())
	socket := zmq4.NewDealer(ctx)
	if err := socket.Dial(c.endpoint); err != nil {
		cancel()
		socket.Close()
		return fmt.Errorf("mdp: failed to connect to broker %s: %w", c.endpoint, err)
	}

	c.socket = socket
	c.cancel = cancel
	c.msgs = make(chan zmq4.Msg)
	c.errs = make(chan error, 1)
	c.quit = make(chan struct{})
	c.wg.Add(1)
	go func(recv func() (zmq4.Msg, error), msgs chan zmq4.Msg, errs chan error, quit chan struct{}) {
		defer c.wg.Done()
		pump(recv, msgs, errs, quit)
	}(socket.Recv, c.msgs, c.errs, c.quit)

	c.log.Debug().Str("endpoint", c.endpoint).Msg("connected to broker")
	return nil
}

// Close releases the connection.
func (c *Client) Close() error {
	if c.socket == nil {
		return ErrNotConnected
	}
	c.disconnect()
	return nil
}

func (c *Client) disconnect() {
	if c.socket == nil {
		return
	}
	close(c.quit)
	if err := c.socket.Close(); err != nil {
		c.log.Debug().Err(err).Msg("close socket")
	}
	c.cancel()
	c.wg.Wait()
	c.socket = nil
}

// Send sends a request for service without waiting for the reply.
func (c *Client) Send(service ServiceName, body []byte) error {
	if err := service.Validate(); err != nil {
		return err
	}
	if c.socket == nil {
		return ErrNotConnected
	}
	msg := zmq4.NewMsgFrom(Encode(NewClientRequest(service, body))...)
	if err := c.socket.Send(msg); err != nil {
		return fmt.Errorf("mdp: failed to send request: %w", err)
	}
	return nil
}

// Recv waits for the next reply from the broker. It gives up with
// ErrTimeout after the configured timeout.
func (c *Client) Recv(ctx context.Context) (*ClientReply, error) {
	if c.socket == nil {
		return nil, ErrNotConnected
	}
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		select {
		case msg := <-c.msgs:
			reply, err := DecodeClientReply(msg.Frames)
			if err != nil {
				c.log.Warn().Err(err).Msg("dropping invalid reply")
				continue
			}
			return reply, nil
		case err := <-c.errs:
			return nil, fmt.Errorf("mdp: client receive: %w", err)
		case <-timer.C:
			return nil, ErrTimeout
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Request sends body to service and waits for its reply. When no reply
// arrives in time the client reconnects and sends again, up to the
// configured number of attempts.
func (c *Client) Request(ctx context.Context, service ServiceName, body []byte) ([]byte, error) {
	if c.socket == nil {
		if err := c.Connect(); err != nil {
			return nil, err
		}
	}

	for attempt := 1; attempt <= c.retries; attempt++ {
		if attempt > 1 {
			c.log.Warn().
				Str("service", service.String()).
				Int("attempt", attempt).
				Msg("no reply, reconnecting")
			if err := c.Connect(); err != nil {
				return nil, err
			}
		}
		if err := c.Send(service, body); err != nil {
			return nil, err
		}

		for {
			reply, err := c.Recv(ctx)
			if errors.Is(err, ErrTimeout) {
				break
			}
			if err != nil {
				return nil, err
			}
			if reply.Service != service {
				c.log.Debug().
					Str("want", service.String()).
					Str("got", reply.Service.String()).
					Msg("skipping reply for another service")
				continue
			}
			return reply.Body, nil
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrTimeout, service, c.retries)
}

// ServiceAvailable asks the broker whether name has been registered.
func (c *Client) ServiceAvailable(ctx context.Context, name ServiceName) (bool, error) {
	status, err := c.Request(ctx, ServiceDiscovery, []byte(name))
	if err != nil {
		return false, err
	}
	switch string(status) {
	case StatusOK:
		return true, nil
	case StatusNotFound:
		return false, nil
	}
	return false, fmt.Errorf("mdp: unexpected %s status %q", ServiceDiscovery, status)
}
