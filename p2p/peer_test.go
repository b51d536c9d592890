package p2p

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicity-labs/headernet/wire"
)

func pipeConn(t *testing.T) (*Conn, *Conn) {
	t.Helper()
	a, b := net.Pipe()
	ca := NewConn(a, wire.MagicRegtest, Callbacks{})
	cb := NewConn(b, wire.MagicRegtest, Callbacks{})
	t.Cleanup(func() { ca.Close(); cb.Close() })
	return ca, cb
}

func TestPeerHandshakeLifecycle(t *testing.T) {
	conn, _ := pipeConn(t)
	p := NewPeer(1, conn.RemoteAddr(), conn, ConnTypeOutbound)
	require.Equal(t, StateNew, p.State())

	p.MarkVersionSent()
	assert.Equal(t, StateVersionSent, p.State())

	err := p.HandleVersion(&wire.VersionMessage{Version: wire.ProtocolVersion, Nonce: 42}, 7)
	require.NoError(t, err)
	assert.Equal(t, StateVersionReceived, p.State())

	p.HandleVerack()
	assert.Equal(t, StateReady, p.State())
	assert.True(t, p.IsReady())
}

func TestPeerHandshakeRejectsDuplicateVersion(t *testing.T) {
	conn, _ := pipeConn(t)
	p := NewPeer(1, conn.RemoteAddr(), conn, ConnTypeInbound)
	require.NoError(t, p.HandleVersion(&wire.VersionMessage{Nonce: 1}, 99))
	err := p.HandleVersion(&wire.VersionMessage{Nonce: 2}, 99)
	assert.ErrorIs(t, err, errHandshakeTwice)
}

func TestPeerHandshakeRejectsSelfConnect(t *testing.T) {
	conn, _ := pipeConn(t)
	p := NewPeer(1, conn.RemoteAddr(), conn, ConnTypeOutbound)
	err := p.HandleVersion(&wire.VersionMessage{Nonce: 1234}, 1234)
	assert.ErrorIs(t, err, errSelfConnect)
}

func TestPeerMisbehaveCrossesThreshold(t *testing.T) {
	conn, _ := pipeConn(t)
	p := NewPeer(1, conn.RemoteAddr(), conn, ConnTypeInbound)
	assert.False(t, p.Misbehave(50, "test"))
	assert.True(t, p.Misbehave(60, "test"))
	assert.Equal(t, 110, p.Score())
}

func TestPeerNoBanPermission(t *testing.T) {
	conn, _ := pipeConn(t)
	p := NewPeer(1, conn.RemoteAddr(), conn, ConnTypeInbound)
	assert.False(t, p.NoBan())

	p.SetPermissions(PermissionNoBan)
	assert.True(t, p.NoBan())

	// NoBan exempts the peer from the manager's disconnect policy, not
	// from scoring: the score still accumulates and crosses threshold.
	assert.True(t, p.Misbehave(100, "test"))
}

func TestPeerKnownInventory(t *testing.T) {
	conn, _ := pipeConn(t)
	p := NewPeer(1, conn.RemoteAddr(), conn, ConnTypeOutbound)
	var h wire.BlockHash
	h[0] = 0xAB
	assert.False(t, p.HasAnnounced(h))
	p.MarkAnnounced(h)
	assert.True(t, p.HasAnnounced(h))
}
