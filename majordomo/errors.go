// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidHeader        = errors.New("mdp: invalid protocol header")
	ErrInvalidCorrelationID = errors.New("mdp: invalid correlation id")
	ErrInvalidCommand       = errors.New("mdp: invalid command")
	ErrTruncatedMessage     = errors.New("mdp: truncated message")
	ErrMissingDelimiter     = errors.New("mdp: missing empty delimiter frame")
	ErrInvalidServiceName   = errors.New("mdp: invalid service name")

	ErrTimeout          = errors.New("mdp: timeout waiting for reply")
	ErrNotConnected     = errors.New("mdp: not connected")
	ErrBrokerNotRunning = errors.New("mdp: broker not running")
)

// ProtocolError reports a frame set that does not decode as an MDP message.
type ProtocolError struct {
	Err    error
	Detail string
}

func (e *ProtocolError) Error() string {
	if e.Detail == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Detail
}

func (e *ProtocolError) Unwrap() error { return e.Err }

func protocolError(err error, format string, args ...any) *ProtocolError {
	return &ProtocolError{Err: err, Detail: fmt.Sprintf(format, args...)}
}
