package network

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unicity-labs/headernet/chain"
	"github.com/unicity-labs/headernet/chain/memchain"
	"github.com/unicity-labs/headernet/p2p"
	"github.com/unicity-labs/headernet/wire"
)

func genesisHeader() wire.BlockHeader {
	return wire.BlockHeader{Version: 1, Bits: 1}
}

func childHeader(parent wire.BlockHeader) wire.BlockHeader {
	return wire.BlockHeader{Version: 1, PrevHash: parent.Hash(), Bits: 1, Timestamp: parent.Timestamp + 1}
}

func TestBuildLocatorIncludesGenesis(t *testing.T) {
	c := memchain.New(genesisHeader())
	h := genesisHeader()
	var headers []wire.BlockHeader
	for i := 0; i < 20; i++ {
		h = childHeader(h)
		headers = append(headers, h)
	}
	res := c.ProcessNewBlockHeaders(headers)
	require.Equal(t, chain.RejectNone, res.Reason)

	locator := BuildLocator(c.Tip())
	assert.Equal(t, c.Genesis().Hash, locator[len(locator)-1])
	assert.Equal(t, c.Tip().Hash, locator[0])
}

func newTestPeer(t *testing.T, id int64) *p2p.Peer {
	t.Helper()
	a, _ := pipeForTest(t)
	return p2p.NewPeer(id, a.RemoteAddr(), a, p2p.ConnTypeOutbound)
}

func TestProcessHeadersRejectsNonContinuousUntilLimit(t *testing.T) {
	c := memchain.New(genesisHeader())
	hs := NewHeaderSyncManager(c)
	peer := newTestPeer(t, 1)

	bogus := wire.BlockHeader{Version: 1, Bits: 1, Timestamp: 999}
	for i := 0; i < unconnectingHeadersLimit-1; i++ {
		outcome := hs.ProcessHeaders(peer, []wire.BlockHeader{bogus})
		assert.Equal(t, OutcomeRejectedNonContinuous, outcome)
	}
	outcome := hs.ProcessHeaders(peer, []wire.BlockHeader{bogus})
	assert.Equal(t, OutcomeDisconnectPeer, outcome)
}

func TestProcessHeadersResetsCounterOnGoodBatch(t *testing.T) {
	c := memchain.New(genesisHeader())
	hs := NewHeaderSyncManager(c)
	peer := newTestPeer(t, 1)

	bogus := wire.BlockHeader{Version: 1, Bits: 1, Timestamp: 999}
	for i := 0; i < unconnectingHeadersLimit-1; i++ {
		hs.ProcessHeaders(peer, []wire.BlockHeader{bogus})
	}

	good := childHeader(genesisHeader())
	outcome := hs.ProcessHeaders(peer, []wire.BlockHeader{good})
	assert.Equal(t, OutcomeAccepted, outcome)

	// Counter reset: another bad batch should not immediately disconnect.
	outcome = hs.ProcessHeaders(peer, []wire.BlockHeader{bogus})
	assert.Equal(t, OutcomeRejectedNonContinuous, outcome)
}
