package network

import (
	"github.com/unicity-labs/headernet/p2p"
	"github.com/unicity-labs/headernet/wire"
)

// The handlers below all run on the reactor goroutine: every connection's
// OnMessage callback posts its Dispatch call through Manager.post rather
// than calling it from the connection's own read-loop goroutine, so this
// is the only place any of these ever execute. None of them may block.

func (m *Manager) handleVersion(peer *p2p.Peer, raw wire.Message) {
	v := raw.(*wire.VersionMessage)
	if err := m.peers.CheckNonce(v.Nonce); err != nil {
		peer.Disconnect()
		return
	}
	if err := peer.HandleVersion(v, m.peers.Nonce()); err != nil {
		peer.Disconnect()
		return
	}
	peer.Send(&wire.VerackMessage{})
}

func (m *Manager) handleVerack(peer *p2p.Peer, _ wire.Message) {
	peer.HandleVerack()
	if peer.IsReady() {
		m.addrs.MarkTried(peer.Addr.String())
		peer.Send(m.sync.headers.RequestNextBatch())
	}
}

func (m *Manager) handlePing(peer *p2p.Peer, raw wire.Message) {
	ping := raw.(*wire.PingMessage)
	peer.Send(&wire.PongMessage{Nonce: ping.Nonce})
}

func (m *Manager) handlePong(_ *p2p.Peer, _ wire.Message) {
	// Round-trip latency tracking is out of scope; receipt alone is
	// enough to prove liveness, which Peer.Touch already recorded.
}

func (m *Manager) handleGetAddr(peer *p2p.Peer, _ wire.Message) {
	if !m.addrs.ShouldAnswerGetAddr(peer) {
		return
	}
	peer.Send(&wire.AddrMessage{Addresses: m.addrs.Sample(peer.ID, peer.Addr.String(), wire.MaxAddrSize)})
}

func (m *Manager) handleAddr(peer *p2p.Peer, raw wire.Message) {
	msg := raw.(*wire.AddrMessage)
	if len(msg.Addresses) > wire.MaxAddrSize/10 {
		m.misbehave(peer, 20, "oversized unsolicited addr batch")
		return
	}
	for _, ta := range msg.Addresses {
		m.addrs.AddLearned(peer.ID, dialString(ta.Addr))
	}
}

func (m *Manager) handleInv(peer *p2p.Peer, raw wire.Message) {
	m.sync.onInv(peer, raw.(*wire.InvMessage))
}

func (m *Manager) handleGetHeaders(peer *p2p.Peer, raw wire.Message) {
	msg := raw.(*wire.GetHeadersMessage)
	headers := m.locateHeaders(msg.Locator, msg.HashStop)
	peer.Send(&wire.HeadersMessage{Headers: headers})
}

// locateHeaders walks the active chain forward from the first locator
// entry it recognizes, returning up to MaxHeadersSize headers. If no
// locator entry is known at all, it returns an empty response rather than
// falling back to genesis -- replying "from genesis+1" to a peer on a
// foreign chain would misrepresent what we actually share with it.
func (m *Manager) locateHeaders(locator []wire.BlockHash, stop wire.BlockHash) []wire.BlockHeader {
	var start int32 = -1
	found := false
	for _, h := range locator {
		if idx := m.chain.LookupBlockIndex(h); idx != nil {
			start = idx.Height
			found = true
			break
		}
	}
	if !found {
		return nil
	}

	tip := m.chain.Tip()
	var headers []wire.BlockHeader
	cur := tip
	// Walk back from tip to start collecting ancestors, then reverse, since
	// Index only links backward via Prev.
	var ancestry []wire.BlockHeader
	for cur != nil && cur.Height > start {
		ancestry = append(ancestry, cur.Header)
		cur = cur.Prev
	}
	for i := len(ancestry) - 1; i >= 0; i-- {
		headers = append(headers, ancestry[i])
		if len(headers) >= wire.MaxHeadersSize || ancestry[i].Hash() == stop {
			break
		}
	}
	return headers
}

func (m *Manager) handleHeaders(peer *p2p.Peer, raw wire.Message) {
	if outcome := m.sync.onHeaders(peer, raw.(*wire.HeadersMessage)); outcome == OutcomeDisconnectPeer {
		m.misbehave(peer, 100, "too many unconnecting headers batches")
	}
}
