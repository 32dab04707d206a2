// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package majordomo implements a Majordomo Protocol (MDP) broker together
// with the client and worker peers that talk to it. See:
// https://rfc.zeromq.org/spec/7/
//
// Every MDP message carries a correlation identifier frame right after the
// protocol header (clients) or the command byte (workers):
//
//	client : ["", "MDPC01", id, service, body]
//	worker : ["", "MDPW01", command, id, ...]
package majordomo

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Protocol constants as per RFC 7/MDP
const (
	// Client protocol identifier
	ClientProtocol = "MDPC01"

	// Worker protocol identifier
	WorkerProtocol = "MDPW01"

	// Prefix of broker answered services
	InternalServicePrefix = "mmi."

	// Service discovery query answered by the broker
	ServiceDiscovery = InternalServicePrefix + "service"

	// Default heartbeat values
	DefaultHeartbeatLiveness = 3                       // 3-5 is reasonable
	DefaultHeartbeatInterval = 2500 * time.Millisecond // msecs
	DefaultHeartbeatExpiry   = DefaultHeartbeatInterval * DefaultHeartbeatLiveness
)

// Internal service status codes
const (
	StatusOK             = "200"
	StatusNotFound       = "404"
	StatusNotImplemented = "501"
)

// Command is a worker protocol command byte.
type Command byte

// Worker commands as per MDP specification
const (
	CommandReady      Command = 0x01
	CommandRequest    Command = 0x02
	CommandReply      Command = 0x03
	CommandHeartbeat  Command = 0x04
	CommandDisconnect Command = 0x05
)

func (c Command) String() string {
	switch c {
	case CommandReady:
		return "READY"
	case CommandRequest:
		return "REQUEST"
	case CommandReply:
		return "REPLY"
	case CommandHeartbeat:
		return "HEARTBEAT"
	case CommandDisconnect:
		return "DISCONNECT"
	default:
		return fmt.Sprintf("0x%02x", byte(c))
	}
}

func (c Command) frame() []byte { return []byte{byte(c)} }

// ServiceName represents a MDP service name
type ServiceName string

// String returns the service name as a string
func (s ServiceName) String() string {
	return string(s)
}

// Validate checks if the service name is valid
func (s ServiceName) Validate() error {
	if len(s) == 0 {
		return fmt.Errorf("%w: empty service name", ErrInvalidServiceName)
	}
	if len(s) > 255 {
		return fmt.Errorf("%w: %d bytes (max 255)", ErrInvalidServiceName, len(s))
	}
	return nil
}

// Internal reports whether the name addresses a broker answered service.
func (s ServiceName) Internal() bool {
	return strings.HasPrefix(string(s), InternalServicePrefix)
}

// CorrelationID identifies a single protocol message.
type CorrelationID = uuid.UUID

// NewCorrelationID returns a fresh random identifier.
func NewCorrelationID() CorrelationID {
	return uuid.New()
}

// Message is one decoded MDP command. The concrete types are the pointer
// types declared below; the set is closed.
type Message interface {
	// Header returns the protocol class, ClientProtocol or WorkerProtocol.
	Header() string
	// Correlation returns the message correlation identifier.
	Correlation() CorrelationID

	id() *CorrelationID
	frames() [][]byte
}

// ClientRequest is sent by a client to ask a service for work.
type ClientRequest struct {
	CorrelationID CorrelationID
	Service       ServiceName
	Body          []byte
}

// ClientReply is the broker's answer to a client, either a worker reply or
// an internal service status code.
type ClientReply struct {
	CorrelationID CorrelationID
	Service       ServiceName
	Body          []byte
}

// WorkerReady registers a worker for a service.
type WorkerReady struct {
	CorrelationID CorrelationID
	Service       ServiceName
}

// WorkerRequest carries a client request to a worker.
type WorkerRequest struct {
	CorrelationID CorrelationID
	Client        []byte
	Body          []byte
}

// WorkerReply carries a worker's answer for the client at Client.
type WorkerReply struct {
	CorrelationID CorrelationID
	Client        []byte
	Body          []byte
}

// WorkerHeartbeat is exchanged in both directions.
type WorkerHeartbeat struct {
	CorrelationID CorrelationID
}

// WorkerDisconnect is exchanged in both directions.
type WorkerDisconnect struct {
	CorrelationID CorrelationID
}

// NewClientRequest creates a new client request message
func NewClientRequest(service ServiceName, body []byte) *ClientRequest {
	return &ClientRequest{CorrelationID: NewCorrelationID(), Service: service, Body: body}
}

// NewClientReply creates a new client reply message
func NewClientReply(service ServiceName, body []byte) *ClientReply {
	return &ClientReply{CorrelationID: NewCorrelationID(), Service: service, Body: body}
}

// NewWorkerReady creates a READY message for service.
func NewWorkerReady(service ServiceName) *WorkerReady {
	return &WorkerReady{CorrelationID: NewCorrelationID(), Service: service}
}

// NewWorkerRequest creates a REQUEST message for the client at client.
func NewWorkerRequest(client, body []byte) *WorkerRequest {
	return &WorkerRequest{CorrelationID: NewCorrelationID(), Client: client, Body: body}
}

// NewWorkerReply creates a REPLY message for the client at client.
func NewWorkerReply(client, body []byte) *WorkerReply {
	return &WorkerReply{CorrelationID: NewCorrelationID(), Client: client, Body: body}
}

// NewWorkerHeartbeat creates a HEARTBEAT message.
func NewWorkerHeartbeat() *WorkerHeartbeat {
	return &WorkerHeartbeat{CorrelationID: NewCorrelationID()}
}

// NewWorkerDisconnect creates a DISCONNECT message.
func NewWorkerDisconnect() *WorkerDisconnect {
	return &WorkerDisconnect{CorrelationID: NewCorrelationID()}
}

func (m *ClientRequest) Header() string    { return ClientProtocol }
func (m *ClientReply) Header() string      { return ClientProtocol }
func (m *WorkerReady) Header() string      { return WorkerProtocol }
func (m *WorkerRequest) Header() string    { return WorkerProtocol }
func (m *WorkerReply) Header() string      { return WorkerProtocol }
func (m *WorkerHeartbeat) Header() string  { return WorkerProtocol }
func (m *WorkerDisconnect) Header() string { return WorkerProtocol }

func (m *ClientRequest) Correlation() CorrelationID    { return m.CorrelationID }
func (m *ClientReply) Correlation() CorrelationID      { return m.CorrelationID }
func (m *WorkerReady) Correlation() CorrelationID      { return m.CorrelationID }
func (m *WorkerRequest) Correlation() CorrelationID    { return m.CorrelationID }
func (m *WorkerReply) Correlation() CorrelationID      { return m.CorrelationID }
func (m *WorkerHeartbeat) Correlation() CorrelationID  { return m.CorrelationID }
func (m *WorkerDisconnect) Correlation() CorrelationID { return m.CorrelationID }

func (m *ClientRequest) id() *CorrelationID    { return &m.CorrelationID }
func (m *ClientReply) id() *CorrelationID      { return &m.CorrelationID }
func (m *WorkerReady) id() *CorrelationID      { return &m.CorrelationID }
func (m *WorkerRequest) id() *CorrelationID    { return &m.CorrelationID }
func (m *WorkerReply) id() *CorrelationID      { return &m.CorrelationID }
func (m *WorkerHeartbeat) id() *CorrelationID  { return &m.CorrelationID }
func (m *WorkerDisconnect) id() *CorrelationID { return &m.CorrelationID }

// Command returns the worker command byte.
func (m *WorkerReady) Command() Command      { return CommandReady }
func (m *WorkerRequest) Command() Command    { return CommandRequest }
func (m *WorkerReply) Command() Command      { return CommandReply }
func (m *WorkerHeartbeat) Command() Command  { return CommandHeartbeat }
func (m *WorkerDisconnect) Command() Command { return CommandDisconnect }

func (m *ClientRequest) frames() [][]byte {
	return clientFrames(m.CorrelationID, m.Service, m.Body)
}

func (m *ClientReply) frames() [][]byte {
	return clientFrames(m.CorrelationID, m.Service, m.Body)
}

func (m *WorkerReady) frames() [][]byte {
	return append(workerFrames(CommandReady, m.CorrelationID), []byte(m.Service))
}

func (m *WorkerRequest) frames() [][]byte {
	return append(workerFrames(CommandRequest, m.CorrelationID), m.Client, []byte{}, m.Body)
}

func (m *WorkerReply) frames() [][]byte {
	return append(workerFrames(CommandReply, m.CorrelationID), m.Client, []byte{}, m.Body)
}

func (m *WorkerHeartbeat) frames() [][]byte {
	return workerFrames(CommandHeartbeat, m.CorrelationID)
}

func (m *WorkerDisconnect) frames() [][]byte {
	return workerFrames(CommandDisconnect, m.CorrelationID)
}

func clientFrames(id CorrelationID, service ServiceName, body []byte) [][]byte {
	return [][]byte{
		{}, // Empty delimiter frame
		[]byte(ClientProtocol),
		[]byte(id.String()),
		[]byte(service),
		body,
	}
}

func workerFrames(cmd Command, id CorrelationID) [][]byte {
	return [][]byte{
		{}, // Empty delimiter frame
		[]byte(WorkerProtocol),
		cmd.frame(),
		[]byte(id.String()),
	}
}

// Encode formats m as an MDP frame sequence, starting with the empty
// delimiter frame. A message without a correlation identifier is given a
// fresh one.
func Encode(m Message) [][]byte {
	if id := m.id(); *id == uuid.Nil {
		*id = NewCorrelationID()
	}
	return m.frames()
}

// Decode parses an MDP frame sequence as seen by the broker: client frame
// sets decode as *ClientRequest, worker frame sets as the worker command
// they carry. The leading peer address frame must already be stripped.
func Decode(frames [][]byte) (Message, error) {
	header, err := peekHeader(frames)
	if err != nil {
		return nil, err
	}
	switch header {
	case ClientProtocol:
		id, service, body, err := decodeClient(frames)
		if err != nil {
			return nil, err
		}
		return &ClientRequest{CorrelationID: id, Service: service, Body: body}, nil
	case WorkerProtocol:
		return decodeWorker(frames)
	}
	return nil, protocolError(ErrInvalidHeader, "%q", header)
}

// DecodeClientReply parses a broker to client frame sequence.
func DecodeClientReply(frames [][]byte) (*ClientReply, error) {
	header, err := peekHeader(frames)
	if err != nil {
		return nil, err
	}
	if header != ClientProtocol {
		return nil, protocolError(ErrInvalidHeader, "%q", header)
	}
	id, service, body, err := decodeClient(frames)
	if err != nil {
		return nil, err
	}
	return &ClientReply{CorrelationID: id, Service: service, Body: body}, nil
}

func peekHeader(frames [][]byte) (string, error) {
	if len(frames) < 2 {
		return "", protocolError(ErrTruncatedMessage, "%d frames", len(frames))
	}
	if len(frames[0]) != 0 {
		return "", protocolError(ErrMissingDelimiter, "leading frame has %d bytes", len(frames[0]))
	}
	return string(frames[1]), nil
}

// decodeClient reads ["", header, id, service, body].
func decodeClient(frames [][]byte) (CorrelationID, ServiceName, []byte, error) {
	if len(frames) < 5 {
		return uuid.Nil, "", nil, protocolError(ErrTruncatedMessage, "client message has %d frames", len(frames))
	}
	id, err := parseCorrelationID(frames[2])
	if err != nil {
		return uuid.Nil, "", nil, err
	}
	service := ServiceName(frames[3])
	if err := service.Validate(); err != nil {
		return uuid.Nil, "", nil, &ProtocolError{Err: err}
	}
	return id, service, frames[4], nil
}

// decodeWorker reads ["", header, command, id, ...].
func decodeWorker(frames [][]byte) (Message, error) {
	if len(frames) < 4 {
		return nil, protocolError(ErrTruncatedMessage, "worker message has %d frames", len(frames))
	}
	if len(frames[2]) != 1 {
		return nil, protocolError(ErrInvalidCommand, "%q", frames[2])
	}
	cmd := Command(frames[2][0])
	switch cmd {
	case CommandReady, CommandRequest, CommandReply, CommandHeartbeat, CommandDisconnect:
	default:
		return nil, protocolError(ErrInvalidCommand, "%s", cmd)
	}
	id, err := parseCorrelationID(frames[3])
	if err != nil {
		return nil, err
	}
	rest := frames[4:]

	switch cmd {
	case CommandReady:
		if len(rest) < 1 {
			return nil, protocolError(ErrTruncatedMessage, "READY without service")
		}
		service := ServiceName(rest[0])
		if err := service.Validate(); err != nil {
			return nil, &ProtocolError{Err: err}
		}
		return &WorkerReady{CorrelationID: id, Service: service}, nil

	case CommandRequest, CommandReply:
		// [client, "", body]
		if len(rest) < 3 {
			return nil, protocolError(ErrTruncatedMessage, "%s has %d frames", cmd, len(frames))
		}
		if len(rest[1]) != 0 {
			return nil, protocolError(ErrMissingDelimiter, "%s client envelope", cmd)
		}
		if cmd == CommandRequest {
			return &WorkerRequest{CorrelationID: id, Client: rest[0], Body: rest[2]}, nil
		}
		return &WorkerReply{CorrelationID: id, Client: rest[0], Body: rest[2]}, nil

	case CommandHeartbeat:
		return &WorkerHeartbeat{CorrelationID: id}, nil
	}
	return &WorkerDisconnect{CorrelationID: id}, nil
}

// parseCorrelationID accepts only the 36 character hyphenated form.
func parseCorrelationID(frame []byte) (CorrelationID, error) {
	if len(frame) != 36 {
		return uuid.Nil, protocolError(ErrInvalidCorrelationID, "%d bytes", len(frame))
	}
	id, err := uuid.ParseBytes(frame)
	if err != nil {
		return uuid.Nil, protocolError(ErrInvalidCorrelationID, "%v", err)
	}
	return id, nil
}
