// Package p2p implements the transport and per-connection handshake state
// machine: listening for and dialing TCP connections, framing them onto
// the wire codec, and tracking a peer through NEW -> VERSION_SENT /
// VERSION_RECEIVED -> READY. It hands fully-framed messages and lifecycle
// events up to the network package's single-threaded reactor; it never
// mutates shared peer-set state itself.
package p2p

import (
	"context"
	"errors"
	"net"

	"golang.org/x/time/rate"

	"github.com/unicity-labs/headernet/log"
	"github.com/unicity-labs/headernet/wire"
)

var (
	errBadMagic       = errors.New("p2p: network magic mismatch")
	errSendQueueFull  = errors.New("p2p: send queue full")
	errRecvFlood      = errors.New("p2p: receive buffer flood")
	errListenerClosed = errors.New("p2p: listener closed")
)

// TransportConfig configures Listen.
type TransportConfig struct {
	ListenAddr string
	Magic      uint32

	// InboundRateLimit/Burst bound the rate of accepted inbound TCP
	// connections, independent of any later per-IP quota enforced by the
	// network package's peer manager; this is pure accept-loop throttling
	// against connection-flood DoS.
	InboundRateLimit rate.Limit
	InboundBurst     int
}

// Transport owns a listening socket and hands every accepted raw net.Conn
// to OnAccept; wrapping it with NewConn is left to the owner.
type Transport struct {
	cfg      TransportConfig
	log      log.Logger
	listener net.Listener
	limiter  *rate.Limiter

	OnAccept func(nc net.Conn)
}

// NewTransport constructs a Transport. Listen must be called separately to
// actually bind and start accepting.
func NewTransport(cfg TransportConfig) *Transport {
	if cfg.InboundRateLimit <= 0 {
		cfg.InboundRateLimit = 10
	}
	if cfg.InboundBurst <= 0 {
		cfg.InboundBurst = 20
	}
	return &Transport{
		cfg:     cfg,
		log:     log.New("module", "p2p"),
		limiter: rate.NewLimiter(cfg.InboundRateLimit, cfg.InboundBurst),
	}
}

// Listen binds the configured address and starts the accept loop in a new
// goroutine. It returns once the bind has succeeded or failed.
func (t *Transport) Listen() error {
	ln, err := net.Listen("tcp", t.cfg.ListenAddr)
	if err != nil {
		return err
	}
	t.listener = ln
	t.log.Info("listening for inbound connections", "addr", ln.Addr().String())
	go t.acceptLoop()
	return nil
}

// Close stops accepting new inbound connections. Already-accepted
// connections are unaffected.
func (t *Transport) Close() error {
	if t.listener == nil {
		return nil
	}
	return t.listener.Close()
}

func (t *Transport) acceptLoop() {
	for {
		nc, err := t.listener.Accept()
		if err != nil {
			t.log.Debug("accept loop exiting", "err", err)
			return
		}
		if !t.limiter.Allow() {
			t.log.Debug("rejecting inbound connection, rate limited", "raddr", nc.RemoteAddr())
			nc.Close()
			continue
		}
		if t.OnAccept != nil {
			t.OnAccept(nc)
		}
	}
}

// Dial opens an outbound TCP connection with the protocol-level connect
// timeout (spec: ConnectTimeout). The caller is responsible for wrapping
// the result with NewConn.
func Dial(ctx context.Context, addr string) (net.Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, wire.ConnectTimeout)
	defer cancel()
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}
