package network

import (
	"sync"
	"time"

	"github.com/unicity-labs/headernet/chain"
	"github.com/unicity-labs/headernet/log"
	"github.com/unicity-labs/headernet/p2p"
	"github.com/unicity-labs/headernet/wire"
)

// unconnectingHeadersLimit caps how many consecutive non-continuous
// HEADERS batches a peer may send before being disconnected. The counter
// resets to zero only once a batch from that peer actually passes the
// continuity check -- a peer that interleaves one good batch between a
// run of bad ones does not get a free pass on the next bad one staying
// under the limit forever (spec OQ1, strict interpretation).
const unconnectingHeadersLimit = 10

// HeaderSyncManager implements C7: single sync-peer selection, locator
// construction, IBD/low-work anti-DoS gating, unconnecting-headers
// tracking, and stall detection.
type HeaderSyncManager struct {
	mu sync.Mutex

	chain chain.Reader
	log   log.Logger

	syncPeerID      int64 // 0 means "no sync peer selected"
	syncPeerSetAt   time.Time
	lastProgressAt  time.Time

	unconnecting map[int64]int
}

// NewHeaderSyncManager constructs a manager bound to reader.
func NewHeaderSyncManager(reader chain.Reader) *HeaderSyncManager {
	return &HeaderSyncManager{
		chain:        reader,
		log:          log.New("module", "headersync"),
		unconnecting: make(map[int64]int),
	}
}

// BuildLocator constructs a block locator from tip, using the standard
// "exponential step-back with doubling, plus genesis" construction: the
// first few entries step back one block at a time, then the step doubles
// each iteration, and genesis is always included last.
func BuildLocator(tip *chain.Index) []wire.BlockHash {
	var locator []wire.BlockHash
	var genesis *chain.Index
	step := 1
	idx := tip
	for idx != nil {
		locator = append(locator, idx.Hash)
		if len(locator) >= 10 {
			step *= 2
		}
		for i := 0; i < step && idx != nil; i++ {
			if idx.Prev == nil {
				genesis = idx
			}
			idx = idx.Prev
		}
	}
	if genesis != nil && locator[len(locator)-1] != genesis.Hash {
		locator = append(locator, genesis.Hash)
	}
	return locator
}

// SelectSyncPeer chooses a new sync peer from candidates if none is
// currently assigned, or the assigned one has disconnected. Candidates
// must already be handshake-ready; SelectSyncPeer does not filter on
// readiness itself.
func (h *HeaderSyncManager) SelectSyncPeer(candidates []*p2p.Peer, isStillConnected func(id int64) bool) *p2p.Peer {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.syncPeerID != 0 && isStillConnected(h.syncPeerID) {
		return nil // already have one
	}
	if len(candidates) == 0 {
		return nil
	}
	chosen := candidates[0]
	h.syncPeerID = chosen.ID
	h.syncPeerSetAt = time.Now()
	h.lastProgressAt = time.Now()
	h.log.Info("selected sync peer", "peer", chosen.ID)
	return chosen
}

// SyncPeerID returns the currently assigned sync peer id, or 0.
func (h *HeaderSyncManager) SyncPeerID() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.syncPeerID
}

// ReleaseSyncPeer clears the sync peer assignment, typically called on
// disconnect or stall.
func (h *HeaderSyncManager) ReleaseSyncPeer(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.syncPeerID == id {
		h.syncPeerID = 0
	}
}

// AdoptOrAllowAnnouncer implements the IBD half of handle_inv's target
// selection (spec.md C8): if no sync peer is currently set, an outbound
// announcer is adopted as the sync peer and allowed through; an inbound
// announcer with no sync peer set is refused outright (inbound INV never
// triggers sync adoption). If a sync peer is already set, only that peer
// is allowed through.
func (h *HeaderSyncManager) AdoptOrAllowAnnouncer(peer *p2p.Peer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.syncPeerID != 0 {
		return h.syncPeerID == peer.ID
	}
	if peer.ConnType != p2p.ConnTypeOutbound {
		return false
	}
	h.syncPeerID = peer.ID
	h.syncPeerSetAt = time.Now()
	h.lastProgressAt = time.Now()
	h.log.Info("adopted inv announcer as sync peer", "peer", peer.ID)
	return true
}

// RequestNextBatch builds the GETHEADERS message to send to the sync peer.
// The locator starts from the tip's parent (or the tip itself at genesis),
// so a peer whose tip equals ours still answers with at least that tip.
func (h *HeaderSyncManager) RequestNextBatch() *wire.GetHeadersMessage {
	start := h.chain.Tip()
	if start.Prev != nil {
		start = start.Prev
	}
	return &wire.GetHeadersMessage{
		Version: wire.ProtocolVersion,
		Locator: BuildLocator(start),
	}
}

// HeadersOutcome tells the caller (the dispatcher's HEADERS handler) what
// to do after ProcessHeaders returns.
type HeadersOutcome int

const (
	OutcomeAccepted HeadersOutcome = iota
	OutcomeAcceptedRequestMore
	OutcomeIgnoredUnsolicited
	OutcomeRejectedLowWork
	OutcomeRejectedNonContinuous
	OutcomeDisconnectPeer
)

// ProcessHeaders applies anti-DoS gating and hands a HEADERS batch to the
// chainstate. A batch from a non-sync peer during IBD is gated on a
// minimum work threshold (spec OQ2: under-threshold full-size batches ask
// for more rather than penalizing, since a legitimate but slow peer can
// also produce one). A peer whose batch fails the continuity check
// repeatedly is eventually disconnected via unconnectingHeadersLimit.
func (h *HeaderSyncManager) ProcessHeaders(peer *p2p.Peer, headers []wire.BlockHeader) HeadersOutcome {
	if len(headers) == 0 {
		return OutcomeAccepted
	}

	h.mu.Lock()
	unsolicited := h.syncPeerID != 0 && peer.ID != h.syncPeerID
	h.mu.Unlock()

	if unsolicited && h.chain.IsInitialBlockDownload() {
		work := h.chain.CalculateHeadersWork(headers)
		if work.Cmp(h.chain.AntiDoSWorkThreshold()) < 0 {
			if len(headers) == wire.MaxHeadersSize {
				// Full-size batch under threshold: plausibly a slow
				// legitimate peer, not an attacker -- ask for more
				// rather than penalizing (spec OQ2).
				return OutcomeAcceptedRequestMore
			}
			return OutcomeRejectedLowWork
		}
	}

	result := h.chain.ProcessNewBlockHeaders(headers)
	switch result.Reason {
	case chain.RejectNonContinuous:
		h.mu.Lock()
		h.unconnecting[peer.ID]++
		count := h.unconnecting[peer.ID]
		h.mu.Unlock()
		if count >= unconnectingHeadersLimit {
			return OutcomeDisconnectPeer
		}
		return OutcomeRejectedNonContinuous
	case chain.RejectLowWork:
		return OutcomeRejectedLowWork
	}

	// A batch that passes continuity resets the counter -- only a batch
	// that actually connects counts as "good behavior" (spec OQ1).
	h.mu.Lock()
	delete(h.unconnecting, peer.ID)
	h.lastProgressAt = time.Now()
	h.mu.Unlock()

	if len(headers) == wire.MaxHeadersSize {
		return OutcomeAcceptedRequestMore
	}
	return OutcomeAccepted
}

// IsStalled reports whether the sync peer has made no progress within
// SyncStallTimeout, meaning the caller should disconnect it and select a
// new sync peer.
func (h *HeaderSyncManager) IsStalled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.syncPeerID == 0 {
		return false
	}
	return time.Since(h.lastProgressAt) > wire.SyncStallTimeout
}

// ForgetPeer drops all unconnecting-headers bookkeeping for a disconnected
// peer.
func (h *HeaderSyncManager) ForgetPeer(id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.unconnecting, id)
	if h.syncPeerID == id {
		h.syncPeerID = 0
	}
}
