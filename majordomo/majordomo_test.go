// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestServiceName(t *testing.T) {
	validNames := []ServiceName{"echo", "calculator", "file-service", "service.with.dots", ServiceName(strings.Repeat("x", 255))}
	for _, name := range validNames {
		assert.NoError(t, name.Validate(), "valid service name %q", name)
	}

	invalidNames := []ServiceName{"", ServiceName(strings.Repeat("x", 256))}
	for _, name := range invalidNames {
		assert.ErrorIs(t, name.Validate(), ErrInvalidServiceName, "invalid service name %q", name)
	}

	assert.True(t, ServiceName("mmi.service").Internal())
	assert.True(t, ServiceName("mmi.bogus").Internal())
	assert.False(t, ServiceName("echo").Internal())
	assert.False(t, ServiceName("mmi").Internal())
}

func TestProtocolConstants(t *testing.T) {
	assert.Equal(t, "MDPC01", ClientProtocol)
	assert.Equal(t, "MDPW01", WorkerProtocol)
	assert.Equal(t, "mmi.service", ServiceDiscovery)

	assert.Equal(t, Command(0x01), CommandReady)
	assert.Equal(t, Command(0x02), CommandRequest)
	assert.Equal(t, Command(0x03), CommandReply)
	assert.Equal(t, Command(0x04), CommandHeartbeat)
	assert.Equal(t, Command(0x05), CommandDisconnect)

	assert.Equal(t, 2500*time.Millisecond, DefaultHeartbeatInterval)
	assert.Equal(t, 3, DefaultHeartbeatLiveness)
	assert.Equal(t, 7500*time.Millisecond, DefaultHeartbeatExpiry)
}

func TestCommandString(t *testing.T) {
	assert.Equal(t, "READY", CommandReady.String())
	assert.Equal(t, "DISCONNECT", CommandDisconnect.String())
	assert.Equal(t, "0x09", Command(0x09).String())

	assert.Equal(t, "REPLY", commandOf(NewWorkerReply(nil, nil)))
	assert.Equal(t, "*majordomo.ClientRequest", commandOf(NewClientRequest("echo", nil)))
}

func TestProtocolErrorMessage(t *testing.T) {
	err := protocolError(ErrInvalidCommand, "%s", Command(0x09))
	assert.Equal(t, "mdp: invalid command: 0x09", err.Error())
	assert.Equal(t, "mdp: truncated message", (&ProtocolError{Err: ErrTruncatedMessage}).Error())
}
