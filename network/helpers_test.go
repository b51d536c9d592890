package network

import (
	"net"
	"testing"

	"github.com/unicity-labs/headernet/p2p"
	"github.com/unicity-labs/headernet/wire"
)

// pipeForTest returns two p2p.Conns wired to opposite ends of an in-memory
// net.Pipe, for tests that need a real Conn without a TCP socket.
func pipeForTest(t *testing.T) (*p2p.Conn, *p2p.Conn) {
	t.Helper()
	a, b := net.Pipe()
	ca := p2p.NewConn(a, wire.MagicRegtest, p2p.Callbacks{})
	cb := p2p.NewConn(b, wire.MagicRegtest, p2p.Callbacks{})
	t.Cleanup(func() { ca.Close(); cb.Close() })
	return ca, cb
}
