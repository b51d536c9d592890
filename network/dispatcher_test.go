package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicity-labs/headernet/p2p"
	"github.com/unicity-labs/headernet/wire"
)

func TestDispatcherRejectsDuplicateRegistration(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.RegisterHandler(wire.CmdPing, func(*p2p.Peer, wire.Message) {}))
	err := d.RegisterHandler(wire.CmdPing, func(*p2p.Peer, wire.Message) {})
	assert.ErrorIs(t, err, errAlreadyRegistered)
}

func TestDispatcherGatesPreHandshakeMessages(t *testing.T) {
	d := NewDispatcher()
	called := false
	require.NoError(t, d.RegisterHandler(wire.CmdPing, func(*p2p.Peer, wire.Message) { called = true }))

	conn, _ := pipeForTest(t)
	peer := p2p.NewPeer(1, conn.RemoteAddr(), conn, p2p.ConnTypeInbound)

	d.Dispatch(peer, &wire.PingMessage{})
	assert.False(t, called, "ping before handshake must be gated")
	assert.Equal(t, p2p.StateDisconnected, peer.State(), "protocol message before handshake must disconnect immediately")
}

func TestDispatcherAllowsVersionBeforeHandshake(t *testing.T) {
	d := NewDispatcher()
	called := false
	require.NoError(t, d.RegisterHandler(wire.CmdVersion, func(*p2p.Peer, wire.Message) { called = true }))

	conn, _ := pipeForTest(t)
	peer := p2p.NewPeer(1, conn.RemoteAddr(), conn, p2p.ConnTypeInbound)

	d.Dispatch(peer, &wire.VersionMessage{})
	assert.True(t, called)
}

func TestDispatcherRecoversHandlerPanic(t *testing.T) {
	d := NewDispatcher()
	require.NoError(t, d.RegisterHandler(wire.CmdVersion, func(*p2p.Peer, wire.Message) { panic("boom") }))

	conn, _ := pipeForTest(t)
	peer := p2p.NewPeer(1, conn.RemoteAddr(), conn, p2p.ConnTypeInbound)

	assert.NotPanics(t, func() { d.Dispatch(peer, &wire.VersionMessage{}) })
}
