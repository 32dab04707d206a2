// Copyright 2025 The go-zeromq Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package majordomo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatchFIFO(t *testing.T) {
	t.Run("RequestsFirst", func(t *testing.T) {
		b, tr, _ := newTestBroker(t)

		b.handle(inbound("c1", NewClientRequest("svc", []byte("R1"))))
		b.handle(inbound("c2", NewClientRequest("svc", []byte("R2"))))
		b.handle(inbound("w1", NewWorkerReady("svc")))
		b.handle(inbound("w2", NewWorkerReady("svc")))

		assertDispatched(t, tr.takeDecoded(t), [][2]string{{"w1", "R1"}, {"w2", "R2"}})
	})

	t.Run("WorkersFirst", func(t *testing.T) {
		b, tr, _ := newTestBroker(t)

		b.handle(inbound("w1", NewWorkerReady("svc")))
		b.handle(inbound("w2", NewWorkerReady("svc")))
		b.handle(inbound("c1", NewClientRequest("svc", []byte("R1"))))
		b.handle(inbound("c2", NewClientRequest("svc", []byte("R2"))))

		assertDispatched(t, tr.takeDecoded(t), [][2]string{{"w1", "R1"}, {"w2", "R2"}})
	})

	t.Run("WorkerReturnsToTail", func(t *testing.T) {
		b, tr, _ := newTestBroker(t)

		b.handle(inbound("w1", NewWorkerReady("svc")))
		b.handle(inbound("c1", NewClientRequest("svc", []byte("R1"))))
		b.handle(inbound("w2", NewWorkerReady("svc")))
		b.handle(inbound("w1", NewWorkerReply([]byte("c1"), []byte("R1"))))
		tr.take()

		b.handle(inbound("c2", NewClientRequest("svc", []byte("R2"))))
		b.handle(inbound("c3", NewClientRequest("svc", []byte("R3"))))

		assertDispatched(t, tr.takeDecoded(t), [][2]string{{"w2", "R2"}, {"w1", "R3"}})
	})

	t.Run("ServicesAreIndependent", func(t *testing.T) {
		b, tr, _ := newTestBroker(t)

		b.handle(inbound("w1", NewWorkerReady("a")))
		b.handle(inbound("c1", NewClientRequest("b", []byte("R1"))))
		assert.Empty(t, tr.take())

		b.handle(inbound("w2", NewWorkerReady("b")))
		assertDispatched(t, tr.takeDecoded(t), [][2]string{{"w2", "R1"}})
		assert.Equal(t, 1, b.services.Get("a").Idle())
	})
}

func assertDispatched(t *testing.T, sent []sentMessage, want [][2]string) {
	t.Helper()
	require.Len(t, sent, len(want))
	for i, w := range want {
		req, ok := sent[i].msg.(*WorkerRequest)
		require.True(t, ok, "message %d is %T", i, sent[i].msg)
		assert.Equal(t, w[0], sent[i].to)
		assert.Equal(t, w[1], string(req.Body))
	}
}

func TestWaitingSetLockStep(t *testing.T) {
	b, _, _ := newTestBroker(t)
	svc := b.services.GetOrCreate("svc")
	w1 := b.workers.GetOrCreate("w1")
	w2 := b.workers.GetOrCreate("w2")
	w1.Service, w2.Service = "svc", "svc"

	b.enqueueIdleWorker(svc, w1)
	b.enqueueIdleWorker(svc, w2)
	b.enqueueIdleWorker(svc, w1)
	assert.Equal(t, []*BrokerWorker{w1, w2}, svc.waiting)
	assert.Equal(t, []*BrokerWorker{w1, w2}, b.waiting)

	b.deleteWorker(w1, false)
	assert.Equal(t, []*BrokerWorker{w2}, svc.waiting)
	assert.Equal(t, []*BrokerWorker{w2}, b.waiting)
	assert.False(t, w1.waiting)

	b.enqueueRequest(svc, &PendingRequest{Client: []byte("c1"), Body: []byte("x")})
	b.drain(svc)
	assert.Empty(t, svc.waiting)
	assert.Empty(t, b.waiting)
	assert.False(t, w2.waiting)
}
