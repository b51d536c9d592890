package network

import (
	"github.com/unicity-labs/headernet/chain"
	"github.com/unicity-labs/headernet/log"
	"github.com/unicity-labs/headernet/p2p"
	"github.com/unicity-labs/headernet/wire"
)

// syncCoordinator nests the header-sync and block-relay managers behind a
// single entry point, mirroring the original implementation's
// BlockchainSyncManager composition (header sync and block relay share
// state -- a newly connected tip from header sync is immediately eligible
// for relay, and relay's "is this known" check depends on header sync's
// chainstate view).
type syncCoordinator struct {
	headers *HeaderSyncManager
	relay   *BlockRelayManager
	chain   chain.Reader
	log     log.Logger
}

func newSyncCoordinator(reader chain.Reader) *syncCoordinator {
	return &syncCoordinator{
		headers: NewHeaderSyncManager(reader),
		relay:   NewBlockRelayManager(),
		chain:   reader,
		log:     log.New("module", "sync"),
	}
}

// onHeaders is the dispatcher-facing entry point for a HEADERS message. The
// caller (Manager.handleHeaders) is responsible for acting on
// OutcomeDisconnectPeer -- this method only updates sync state and, when
// applicable, immediately asks for the next batch.
func (s *syncCoordinator) onHeaders(peer *p2p.Peer, msg *wire.HeadersMessage) HeadersOutcome {
	outcome := s.headers.ProcessHeaders(peer, msg.Headers)
	switch outcome {
	case OutcomeAccepted, OutcomeAcceptedRequestMore:
		if len(msg.Headers) > 0 {
			tip := msg.Headers[len(msg.Headers)-1].Hash()
			s.log.Debug("headers connected", "peer", peer.ID, "count", len(msg.Headers), "new_tip", tip)
		}
		if outcome == OutcomeAcceptedRequestMore {
			peer.Send(s.headers.RequestNextBatch())
		}
	}
	return outcome
}

// onInv is the dispatcher-facing entry point for an INV message. Target
// selection follows spec.md C8: during IBD, a GETHEADERS is only sent to
// the current sync peer, adopting the announcer as sync peer first iff no
// sync peer is set and the announcer is outbound; post-IBD, the announcer
// is always answered directly.
func (s *syncCoordinator) onInv(peer *p2p.Peer, msg *wire.InvMessage) {
	req := s.relay.HandleInvMessage(peer, msg, func(h wire.BlockHash) bool {
		return s.chain.LookupBlockIndex(h) != nil
	})
	if req == nil {
		return
	}
	if s.chain.IsInitialBlockDownload() && !s.headers.AdoptOrAllowAnnouncer(peer) {
		return
	}
	req.Locator = BuildLocator(s.chain.Tip())
	peer.Send(req)
}

// onBlockConnected is wired to chain.Reader.OnBlockConnected; it relays
// newly-connected recent tips to every ready peer, but not historical
// blocks integrated during IBD catch-up.
func (s *syncCoordinator) onBlockConnected(peers func() []*p2p.Peer) chain.BlockConnectedFunc {
	return func(hash wire.BlockHash, recent bool) {
		if s.chain.IsInitialBlockDownload() || !recent {
			return
		}
		s.relay.RelayBlock(peers(), hash)
	}
}

func (s *syncCoordinator) forgetPeer(id int64) {
	s.headers.ForgetPeer(id)
	s.relay.ForgetPeer(id)
}
