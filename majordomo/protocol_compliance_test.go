// Copyright 2018 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMajordomoProtocolCompliance tests RFC 7/MDP frame layouts
func TestMajordomoProtocolCompliance(t *testing.T) {
	t.Run("ClientRequestFormat", func(t *testing.T) {
		// ["", "MDPC01", id, service, body]
		msg := NewClientRequest("test-service", []byte("test-payload"))
		frames := Encode(msg)

		require.Len(t, frames, 5)
		assert.Empty(t, frames[0])
		assert.Equal(t, "MDPC01", string(frames[1]))
		assert.Equal(t, msg.CorrelationID.String(), string(frames[2]))
		assert.Equal(t, "test-service", string(frames[3]))
		assert.Equal(t, "test-payload", string(frames[4]))
	})

	t.Run("WorkerReadyFormat", func(t *testing.T) {
		// ["", "MDPW01", 0x01, id, service]
		msg := NewWorkerReady("test-service")
		frames := Encode(msg)

		require.Len(t, frames, 5)
		assert.Empty(t, frames[0])
		assert.Equal(t, "MDPW01", string(frames[1]))
		assert.Equal(t, []byte{0x01}, frames[2])
		assert.Equal(t, msg.CorrelationID.String(), string(frames[3]))
		assert.Equal(t, "test-service", string(frames[4]))
	})

	t.Run("WorkerRequestFormat", func(t *testing.T) {
		// ["", "MDPW01", 0x02, id, client, "", body]
		frames := Encode(NewWorkerRequest([]byte("client-1"), []byte("request-data")))

		require.Len(t, frames, 7)
		assert.Equal(t, []byte{0x02}, frames[2])
		assert.Equal(t, "client-1", string(frames[4]))
		assert.Empty(t, frames[5])
		assert.Equal(t, "request-data", string(frames[6]))
	})

	t.Run("WorkerReplyFormat", func(t *testing.T) {
		frames := Encode(NewWorkerReply([]byte("client-1"), []byte("reply-data")))

		require.Len(t, frames, 7)
		assert.Equal(t, []byte{0x03}, frames[2])
		assert.Equal(t, "client-1", string(frames[4]))
		assert.Empty(t, frames[5])
		assert.Equal(t, "reply-data", string(frames[6]))
	})

	t.Run("HeartbeatAndDisconnectFormat", func(t *testing.T) {
		hb := Encode(NewWorkerHeartbeat())
		require.Len(t, hb, 4)
		assert.Equal(t, []byte{0x04}, hb[2])

		dc := Encode(NewWorkerDisconnect())
		require.Len(t, dc, 4)
		assert.Equal(t, []byte{0x05}, dc[2])
	})

	t.Run("CorrelationIDIsCanonical", func(t *testing.T) {
		frames := Encode(NewWorkerHeartbeat())
		id := string(frames[3])
		assert.Regexp(t, `^[0-9a-f]{8}-([0-9a-f]{4}-){3}[0-9a-f]{12}$`, id)
	})

	t.Run("FreshCorrelationIDs", func(t *testing.T) {
		a, b := NewWorkerHeartbeat(), NewWorkerHeartbeat()
		assert.NotEqual(t, a.CorrelationID, b.CorrelationID)

		m := &WorkerHeartbeat{}
		Encode(m)
		assert.NotEqual(t, uuid.Nil, m.CorrelationID)
	})
}

// TestMajordomoMessageParsing checks decode(encode(m)) == m for every variant.
func TestMajordomoMessageParsing(t *testing.T) {
	tests := []struct {
		name string
		msg  Message
	}{
		{"ClientRequest", NewClientRequest("echo", []byte("hi"))},
		{"ClientRequestEmptyBody", NewClientRequest("echo", []byte{})},
		{"WorkerReady", NewWorkerReady("echo")},
		{"WorkerRequest", NewWorkerRequest([]byte{0x00, 0x6b, 0x8b, 0x45, 0x67}, []byte("hi"))},
		{"WorkerReply", NewWorkerReply([]byte{0x00, 0x6b, 0x8b, 0x45, 0x67}, []byte("hi"))},
		{"WorkerHeartbeat", NewWorkerHeartbeat()},
		{"WorkerDisconnect", NewWorkerDisconnect()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(Encode(tt.msg))
			require.NoError(t, err)
			assert.Equal(t, tt.msg, got)
		})
	}

	t.Run("ClientReply", func(t *testing.T) {
		msg := NewClientReply("mmi.service", []byte(StatusOK))
		got, err := DecodeClientReply(Encode(msg))
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	})

	t.Run("UppercaseCorrelationID", func(t *testing.T) {
		msg := NewWorkerHeartbeat()
		frames := Encode(msg)
		frames[3] = []byte(uuidUpper(msg.CorrelationID))
		got, err := Decode(frames)
		require.NoError(t, err)
		assert.Equal(t, msg.CorrelationID, got.Correlation())
	})

	t.Run("ExtraFramesIgnored", func(t *testing.T) {
		msg := NewWorkerHeartbeat()
		frames := append(Encode(msg), []byte("trailing"))
		got, err := Decode(frames)
		require.NoError(t, err)
		assert.Equal(t, msg, got)
	})
}

func uuidUpper(id uuid.UUID) string {
	return strings.ToUpper(id.String())
}

func TestInvalidMessageParsing(t *testing.T) {
	id := []byte(uuid.NewString())
	worker := func(cmd byte, rest ...[]byte) [][]byte {
		return append([][]byte{{}, []byte(WorkerProtocol), {cmd}, id}, rest...)
	}

	tests := []struct {
		name   string
		frames [][]byte
		want   error
	}{
		{"NoFrames", nil, ErrTruncatedMessage},
		{"OnlyDelimiter", [][]byte{{}}, ErrTruncatedMessage},
		{"MissingDelimiter", [][]byte{[]byte("x"), []byte(ClientProtocol), id, []byte("echo"), nil}, ErrMissingDelimiter},
		{"UnknownHeader", [][]byte{{}, []byte("MDPX01"), id, []byte("echo"), nil}, ErrInvalidHeader},
		{"ClientTruncated", [][]byte{{}, []byte(ClientProtocol), id, []byte("echo")}, ErrTruncatedMessage},
		{"ClientBadID", [][]byte{{}, []byte(ClientProtocol), []byte("not-a-uuid"), []byte("echo"), nil}, ErrInvalidCorrelationID},
		{"ClientEmptyService", [][]byte{{}, []byte(ClientProtocol), id, {}, nil}, ErrInvalidServiceName},
		{"WorkerTruncated", [][]byte{{}, []byte(WorkerProtocol), {0x04}}, ErrTruncatedMessage},
		{"UnknownCommand", worker(0x09), ErrInvalidCommand},
		{"MultiByteCommand", [][]byte{{}, []byte(WorkerProtocol), []byte("READY"), id}, ErrInvalidCommand},
		{"BadID", [][]byte{{}, []byte(WorkerProtocol), {0x04}, []byte("0000000000000000000000000000000000zz")}, ErrInvalidCorrelationID},
		{"UnhyphenatedID", [][]byte{{}, []byte(WorkerProtocol), {0x04}, []byte(uuid.New().String()[:32])}, ErrInvalidCorrelationID},
		{"ReadyWithoutService", worker(0x01), ErrTruncatedMessage},
		{"RequestTruncated", worker(0x02, []byte("client"), []byte{}), ErrTruncatedMessage},
		{"ReplyWithoutSeparator", worker(0x03, []byte("client"), []byte("x"), []byte("body")), ErrMissingDelimiter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, err := Decode(tt.frames)
			require.Error(t, err)
			assert.Nil(t, msg)
			assert.ErrorIs(t, err, tt.want)

			var perr *ProtocolError
			assert.True(t, errors.As(err, &perr))
		})
	}

	t.Run("WorkerFramesAsClientReply", func(t *testing.T) {
		_, err := DecodeClientReply(Encode(NewWorkerHeartbeat()))
		assert.ErrorIs(t, err, ErrInvalidHeader)
	})
}

func TestDecodeNeverPanics(t *testing.T) {
	fills := [][]byte{
		nil,
		{},
		[]byte(ClientProtocol),
		[]byte(WorkerProtocol),
		{0x01},
		{0x02},
		{0x03},
		[]byte(uuid.NewString()),
	}
	for n := 0; n <= 9; n++ {
		for _, fill := range fills {
			frames := make([][]byte, n)
			for i := range frames {
				frames[i] = fill
			}
			if n > 0 {
				frames[0] = []byte{}
			}
			assert.NotPanics(t, func() { _, _ = Decode(frames) }, "frames=%d fill=%q", n, fill)
			assert.NotPanics(t, func() { _, _ = DecodeClientReply(frames) }, "frames=%d fill=%q", n, fill)
		}
	}
}
