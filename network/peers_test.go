package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicity-labs/headernet/p2p"
)

func TestPeerLifecycleManagerAdmitAndRemove(t *testing.T) {
	bans := NewBanStore()
	m := NewPeerLifecycleManager(8, 8, 42, bans)

	conn, _ := pipeForTest(t)
	peer := p2p.NewPeer(m.AllocateID(), conn.RemoteAddr(), conn, p2p.ConnTypeInbound)

	require.NoError(t, m.Admit(peer))
	assert.Equal(t, 1, m.Count())

	m.Remove(peer.ID)
	assert.Equal(t, 0, m.Count())
}

func TestPeerLifecycleManagerRejectsDiscouraged(t *testing.T) {
	bans := NewBanStore()
	m := NewPeerLifecycleManager(8, 8, 42, bans)

	conn, _ := pipeForTest(t)
	peer := p2p.NewPeer(m.AllocateID(), conn.RemoteAddr(), conn, p2p.ConnTypeInbound)
	ip := hostOf(peer.Addr)
	bans.Discourage(ip, "test")

	err := m.Admit(peer)
	assert.ErrorIs(t, err, errDiscouraged)
}

func TestPeerLifecycleManagerAdmitsDiscouragedNoBanPeer(t *testing.T) {
	bans := NewBanStore()
	m := NewPeerLifecycleManager(8, 8, 42, bans)

	conn, _ := pipeForTest(t)
	peer := p2p.NewPeer(m.AllocateID(), conn.RemoteAddr(), conn, p2p.ConnTypeOutbound)
	peer.SetPermissions(p2p.PermissionNoBan)
	ip := hostOf(peer.Addr)
	bans.Discourage(ip, "test")

	assert.NoError(t, m.Admit(peer))
}

func TestPeerLifecycleManagerEnforcesCapacity(t *testing.T) {
	bans := NewBanStore()
	m := NewPeerLifecycleManager(0, 1, 42, bans)

	conn1, _ := pipeForTest(t)
	p1 := p2p.NewPeer(m.AllocateID(), conn1.RemoteAddr(), conn1, p2p.ConnTypeInbound)
	require.NoError(t, m.Admit(p1))

	conn2, _ := pipeForTest(t)
	p2peer := p2p.NewPeer(m.AllocateID(), conn2.RemoteAddr(), conn2, p2p.ConnTypeInbound)
	err := m.Admit(p2peer)
	assert.ErrorIs(t, err, errAtCapacity)
}

func TestCheckNonceDetectsSelfConnect(t *testing.T) {
	bans := NewBanStore()
	m := NewPeerLifecycleManager(8, 8, 42, bans)
	assert.ErrorIs(t, m.CheckNonce(42), errNonceCollision)
	assert.NoError(t, m.CheckNonce(7))
}
