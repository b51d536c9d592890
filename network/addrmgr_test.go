package network

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/unicity-labs/headernet/p2p"
)

func newAddrTestPeer(t *testing.T, id int64, connType p2p.ConnType) *p2p.Peer {
	t.Helper()
	conn, _ := pipeForTest(t)
	return p2p.NewPeer(id, conn.RemoteAddr(), conn, connType)
}

func TestShouldAnswerGetAddrIgnoresOutbound(t *testing.T) {
	m := NewAddrManager()
	peer := newAddrTestPeer(t, 1, p2p.ConnTypeOutbound)
	assert.False(t, m.ShouldAnswerGetAddr(peer), "GETADDR on a connection we initiated must be ignored")
}

func TestShouldAnswerGetAddrServesExactlyOnce(t *testing.T) {
	m := NewAddrManager()
	peer := newAddrTestPeer(t, 1, p2p.ConnTypeInbound)
	assert.True(t, m.ShouldAnswerGetAddr(peer))
	assert.False(t, m.ShouldAnswerGetAddr(peer), "a second GETADDR on the same connection must be ignored, not just rate-limited")
}

func TestSampleExcludesRequesterOwnAddress(t *testing.T) {
	m := NewAddrManager()
	m.AddNew("1.2.3.4:8333")
	m.AddNew("5.6.7.8:8333")

	out := m.Sample(1, "1.2.3.4:8333", 10)
	for _, ta := range out {
		assert.NotEqual(t, "1.2.3.4:8333", dialString(ta.Addr))
	}
}

func TestSampleAppliesEchoSuppression(t *testing.T) {
	m := NewAddrManager()
	m.AddNew("9.9.9.9:8333")
	m.AddLearned(1, "9.9.9.9:8333")

	out := m.Sample(1, "0.0.0.0:0", 10)
	for _, ta := range out {
		assert.NotEqual(t, "9.9.9.9:8333", dialString(ta.Addr), "an address the requester announced to us recently must be excluded from its own reply")
	}

	// A different requester never told us about 9.9.9.9, so it isn't
	// suppressed for them.
	out2 := m.Sample(2, "0.0.0.0:0", 10)
	var found bool
	for _, ta := range out2 {
		if dialString(ta.Addr) == "9.9.9.9:8333" {
			found = true
		}
	}
	assert.True(t, found)
}

func TestSampleComposesFromThreeSources(t *testing.T) {
	m := NewAddrManager()
	m.MarkTried("1.1.1.1:8333")
	m.AddNew("2.2.2.2:8333")
	m.AddLearned(99, "3.3.3.3:8333")

	out := m.Sample(1, "0.0.0.0:0", 10)
	assert.Len(t, out, 3)
	assert.Equal(t, 1, m.lastFromRecent)
	assert.Equal(t, 1, m.lastFromAddrman)
	assert.Equal(t, 1, m.lastFromLearned)
}

func TestForgetPeerClearsGetAddrAndEchoState(t *testing.T) {
	m := NewAddrManager()
	peer := newAddrTestPeer(t, 1, p2p.ConnTypeInbound)
	m.ShouldAnswerGetAddr(peer)
	m.AddLearned(peer.ID, "4.4.4.4:8333")

	m.ForgetPeer(peer.ID)

	assert.True(t, m.ShouldAnswerGetAddr(peer), "forgetting a peer must reset its GETADDR-served state")
}
