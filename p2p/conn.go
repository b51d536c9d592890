package p2p

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/unicity-labs/headernet/log"
	"github.com/unicity-labs/headernet/wire"
)

// Callbacks is how a conn reports events to its owner. OnMessage is
// invoked from the conn's read loop. OnDisconnect is invoked by whichever
// call tears the connection down: the read or write loop on an I/O error,
// or Send or Close synchronously in the caller's goroutine. The network
// package's single reactor goroutine is the only place state mutation may
// happen, so its callbacks hand their work over a channel rather than
// acting directly.
type Callbacks struct {
	// OnMessage is invoked once per successfully decoded frame. done must
	// be called exactly once, when the owner has finished acting on msg --
	// the conn accounts the frame's bytes against the receive-flood cap
	// until done fires, so a slow or stalled consumer applies real
	// backpressure to the remote peer rather than just to the socket
	// buffer.
	OnMessage func(msg wire.Message, done func())

	// OnDisconnect is invoked exactly once, regardless of which side or
	// which goroutine (read or write) first noticed the failure.
	OnDisconnect func(err error)
}

// sendQueueCapBytes/recvFloodCapBytes are the byte-based backpressure caps
// from spec.md (DEFAULT_SEND_QUEUE_SIZE / DEFAULT_RECV_FLOOD_SIZE),
// confirmed against the original implementation's real_transport.hpp
// send_queue_bytes_ accounting: a peer that doesn't drain our writes, or
// that floods us with frames faster than we process them, is disconnected
// once 5 MiB of unacknowledged bytes accumulates in either direction.
const (
	sendQueueCapBytes = 5 * 1024 * 1024
	recvFloodCapBytes = 5 * 1024 * 1024
)

// Conn wraps a single TCP connection with framed send/receive loops. It
// never blocks its owner: Send enqueues and returns immediately, dropping
// the connection if the peer isn't draining fast enough.
type Conn struct {
	nc        net.Conn
	magic     uint32
	log       log.Logger
	cb        Callbacks
	closeOnce sync.Once
	closed    chan struct{}

	sendMu    sync.Mutex
	sendQueue [][]byte
	sendBytes int
	sendSig   chan struct{}

	recvBytes int64 // atomic
}

// NewConn takes ownership of nc and starts its read/write loops. Callbacks
// fire until OnDisconnect has been delivered once.
func NewConn(nc net.Conn, magic uint32, cb Callbacks) *Conn {
	c := &Conn{
		nc:      nc,
		magic:   magic,
		log:     log.New("raddr", nc.RemoteAddr().String()),
		cb:      cb,
		closed:  make(chan struct{}),
		sendSig: make(chan struct{}, 1),
	}
	go c.readLoop()
	go c.writeLoop()
	return c
}

// RemoteAddr returns the underlying connection's remote address.
func (c *Conn) RemoteAddr() net.Addr { return c.nc.RemoteAddr() }

// Send frames and enqueues msg. If queuing frame would push the send queue
// past sendQueueCapBytes -- meaning the peer isn't reading fast enough --
// the connection is treated as unresponsive and closed; Send never blocks
// the caller.
func (c *Conn) Send(msg wire.Message) {
	frame := wire.EncodeMessage(c.magic, msg)

	c.sendMu.Lock()
	if c.sendBytes+len(frame) > sendQueueCapBytes {
		c.sendMu.Unlock()
		c.log.Warn("send queue byte cap exceeded, dropping connection", "cmd", msg.Command(), "queued_bytes", c.sendBytes)
		c.closeWithErr(errSendQueueFull)
		return
	}
	c.sendQueue = append(c.sendQueue, frame)
	c.sendBytes += len(frame)
	c.sendMu.Unlock()

	select {
	case c.sendSig <- struct{}{}:
	default:
	}
}

// Close tears down the connection idempotently.
func (c *Conn) Close() { c.closeWithErr(nil) }

func (c *Conn) closeWithErr(err error) {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.nc.Close()
		if c.cb.OnDisconnect != nil {
			c.cb.OnDisconnect(err)
		}
	})
}

func (c *Conn) readLoop() {
	for {
		c.nc.SetReadDeadline(time.Now().Add(wire.IdleTimeout))
		hdr, err := wire.ReadHeader(c.nc)
		if err != nil {
			c.closeWithErr(err)
			return
		}
		if hdr.Magic != c.magic {
			c.closeWithErr(errBadMagic)
			return
		}
		payload, err := wire.ReadPayload(c.nc, hdr)
		if err != nil {
			c.closeWithErr(err)
			return
		}

		frameSize := int64(wire.MessageHeaderSize + len(payload))
		if atomic.AddInt64(&c.recvBytes, frameSize) > recvFloodCapBytes {
			c.log.Warn("receive flood cap exceeded, dropping connection", "cmd", hdr.Command, "buffered_bytes", atomic.LoadInt64(&c.recvBytes))
			c.closeWithErr(errRecvFlood)
			return
		}

		msg, err := wire.DecodeMessage(hdr, payload)
		if err != nil {
			if err == wire.ErrUnknownCommand {
				c.log.Debug("dropping unknown command", "cmd", hdr.Command)
				atomic.AddInt64(&c.recvBytes, -frameSize)
				continue
			}
			c.closeWithErr(err)
			return
		}

		if c.cb.OnMessage == nil {
			atomic.AddInt64(&c.recvBytes, -frameSize)
			continue
		}
		var once sync.Once
		c.cb.OnMessage(msg, func() {
			once.Do(func() { atomic.AddInt64(&c.recvBytes, -frameSize) })
		})
	}
}

func (c *Conn) writeLoop() {
	for {
		c.sendMu.Lock()
		for len(c.sendQueue) == 0 {
			c.sendMu.Unlock()
			select {
			case <-c.sendSig:
			case <-c.closed:
				return
			}
			c.sendMu.Lock()
		}
		frame := c.sendQueue[0]
		c.sendQueue = c.sendQueue[1:]
		c.sendBytes -= len(frame)
		c.sendMu.Unlock()

		c.nc.SetWriteDeadline(time.Now().Add(wire.IdleTimeout))
		if _, err := c.nc.Write(frame); err != nil {
			c.closeWithErr(err)
			return
		}
	}
}
