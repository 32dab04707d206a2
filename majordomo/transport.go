// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"context"

	"github.com/go-zeromq/zmq4"
)

// Transport is the addressable multipart socket the broker binds to.
// Received messages start with the sender's address frame, sent messages
// with the recipient's. Recv blocks until a message arrives or the
// transport is closed.
type Transport interface {
	Listen(endpoint string) error
	Recv() (zmq4.Msg, error)
	Send(msg zmq4.Msg) error
	Close() error
}

// NewRouterTransport returns a ROUTER socket bound to ctx.
func NewRouterTransport(ctx context.Context) Transport {
	return zmq4.NewRouter(ctx)
}

// pump reads from recv until it fails or quit is closed, delivering
// messages to msgs. The terminating error is delivered on errs unless quit
// was closed first.
func pump(recv func() (zmq4.Msg, error), msgs chan<- zmq4.Msg, errs chan<- error, quit <-chan struct{}) {
	for {
		msg, err := recv()
		if err != nil {
			select {
			case errs <- err:
			case <-quit:
			}
			return
		}
		select {
		case msgs <- msg:
		case <-quit:
			return
		}
	}
}
