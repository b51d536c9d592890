package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicity-labs/headernet/p2p"
	"github.com/unicity-labs/headernet/wire"
)

func TestBlockRelayManagerDedupsQueuedAnnouncements(t *testing.T) {
	r := NewBlockRelayManager()
	conn, _ := pipeForTest(t)
	peer := p2p.NewPeer(1, conn.RemoteAddr(), conn, p2p.ConnTypeOutbound)

	var hash wire.BlockHash
	hash[0] = 1

	r.QueueAnnouncement(peer, hash)
	r.QueueAnnouncement(peer, hash)

	require.Len(t, r.queues[peer.ID], 1)
}

func TestBlockRelayManagerSkipsAlreadyAnnounced(t *testing.T) {
	r := NewBlockRelayManager()
	conn, _ := pipeForTest(t)
	peer := p2p.NewPeer(1, conn.RemoteAddr(), conn, p2p.ConnTypeOutbound)

	var hash wire.BlockHash
	hash[0] = 2
	peer.MarkAnnounced(hash)

	r.QueueAnnouncement(peer, hash)
	assert.Empty(t, r.queues[peer.ID])
}

func TestHandleInvMessageRequestsUnknownBlocks(t *testing.T) {
	r := NewBlockRelayManager()
	conn, _ := pipeForTest(t)
	peer := p2p.NewPeer(1, conn.RemoteAddr(), conn, p2p.ConnTypeOutbound)

	var unknownHash wire.BlockHash
	unknownHash[0] = 3

	inv := &wire.InvMessage{Items: []wire.InventoryVector{{Type: wire.InvTypeBlock, Hash: unknownHash}}}
	req := r.HandleInvMessage(peer, inv, func(h wire.BlockHash) bool { return false })
	require.NotNil(t, req)

	req = r.HandleInvMessage(peer, inv, func(h wire.BlockHash) bool { return true })
	assert.Nil(t, req)
}
