package p2p

import (
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicity-labs/headernet/wire"
)

// TestConnSendQueueOverflowDisconnects floods the send queue past
// sendQueueCapBytes without draining the peer side, simulating a slow
// reader (spec.md §3/§4.2/§8: "a slow-reading peer that builds up > 5 MiB
// in our send queue is disconnected").
func TestConnSendQueueOverflowDisconnects(t *testing.T) {
	a, _ := net.Pipe()
	var disconnected int32
	c := NewConn(a, wire.MagicRegtest, Callbacks{
		OnDisconnect: func(err error) {
			atomic.StoreInt32(&disconnected, 1)
		},
	})
	defer c.Close()

	// Nobody reads the other pipe end, so writeLoop blocks on its first
	// Write and the queue accumulates until the byte cap is exceeded.
	msg := &wire.PingMessage{Nonce: 1}
	frameSize := len(wire.EncodeMessage(wire.MagicRegtest, msg))
	iterations := sendQueueCapBytes/frameSize + 10

	for i := 0; i < iterations; i++ {
		c.Send(msg)
		if atomic.LoadInt32(&disconnected) == 1 {
			break
		}
	}

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&disconnected) == 1
	}, time.Second, time.Millisecond, "connection should be dropped once the send queue byte cap is exceeded")
}

// TestConnRecvFloodDisconnects writes frames directly onto the wire faster
// than the owner drains them (by never calling done), simulating a peer
// flooding us with unread bytes (spec.md §3/§4.2/§8: "a peer flooding > 5
// MiB of unread bytes is disconnected").
func TestConnRecvFloodDisconnects(t *testing.T) {
	a, b := net.Pipe()
	var disconnected int32
	var mu sync.Mutex
	var pending []func()

	c := NewConn(a, wire.MagicRegtest, Callbacks{
		OnMessage: func(msg wire.Message, done func()) {
			mu.Lock()
			pending = append(pending, done)
			mu.Unlock()
		},
		OnDisconnect: func(err error) {
			atomic.StoreInt32(&disconnected, 1)
		},
	})
	defer c.Close()
	defer b.Close()

	msg := &wire.PingMessage{Nonce: 1}
	frame := wire.EncodeMessage(wire.MagicRegtest, msg)
	iterations := recvFloodCapBytes/len(frame) + 10

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < iterations; i++ {
			if _, err := b.Write(frame); err != nil {
				return
			}
		}
	}()

	require.Eventually(t, func() bool {
		return atomic.LoadInt32(&disconnected) == 1
	}, 2*time.Second, time.Millisecond, "connection should be dropped once the receive-flood byte cap is exceeded")

	<-done
}

// TestConnRecvFloodDoneReleasesBudget confirms that calling done() frees up
// receive-flood budget, so a peer sending messages the owner actually
// drains is never penalized regardless of total volume.
func TestConnRecvFloodDoneReleasesBudget(t *testing.T) {
	a, b := net.Pipe()
	var disconnected int32
	c := NewConn(a, wire.MagicRegtest, Callbacks{
		OnMessage: func(msg wire.Message, done func()) {
			done()
		},
		OnDisconnect: func(err error) {
			atomic.StoreInt32(&disconnected, 1)
		},
	})
	defer c.Close()
	defer b.Close()

	msg := &wire.PingMessage{Nonce: 1}
	frame := wire.EncodeMessage(wire.MagicRegtest, msg)
	iterations := 3 * (recvFloodCapBytes / len(frame))

	for i := 0; i < iterations; i++ {
		_, err := b.Write(frame)
		require.NoError(t, err)
	}

	assert.Equal(t, int32(0), atomic.LoadInt32(&disconnected))
}
