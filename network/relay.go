package network

import (
	"sync"
	"time"

	"github.com/unicity-labs/headernet/log"
	"github.com/unicity-labs/headernet/p2p"
	"github.com/unicity-labs/headernet/wire"
)

// invFlushInterval is how often queued per-peer INV entries are flushed
// into a single INV message, batching announcements instead of sending
// one frame per block.
const invFlushInterval = 100 * time.Millisecond

// invQueueEntry pairs a hash with when it was queued. A hash already in a
// peer's queue is not queued again; one already announced to the peer is
// not queued again within ReannounceTTL.
type invQueueEntry struct {
	hash    wire.BlockHash
	queued  time.Time
}

// BlockRelayManager implements C8: per-peer INV queues with TTL dedup,
// chunked flushing, and INV -> GETHEADERS routing for incoming
// announcements.
type BlockRelayManager struct {
	mu     sync.Mutex
	queues map[int64][]invQueueEntry

	log log.Logger
}

// NewBlockRelayManager returns an empty BlockRelayManager.
func NewBlockRelayManager() *BlockRelayManager {
	return &BlockRelayManager{
		queues: make(map[int64][]invQueueEntry),
		log:    log.New("module", "relay"),
	}
}

// QueueAnnouncement enqueues hash for delivery to peer, skipping it if the
// peer already has it queued or already-announced within ReannounceTTL.
func (r *BlockRelayManager) QueueAnnouncement(peer *p2p.Peer, hash wire.BlockHash) {
	if peer.HasAnnounced(hash) {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.queues[peer.ID] {
		if e.hash == hash {
			return
		}
	}
	r.queues[peer.ID] = append(r.queues[peer.ID], invQueueEntry{hash: hash, queued: time.Now()})
}

// AnnounceTipToAllPeers queues hash to every ready peer in peers.
func (r *BlockRelayManager) AnnounceTipToAllPeers(peers []*p2p.Peer, hash wire.BlockHash) {
	for _, p := range peers {
		if !p.IsReady() {
			continue
		}
		r.QueueAnnouncement(p, hash)
	}
}

// RelayBlock is an alias for AnnounceTipToAllPeers used by the handler
// that reacts to the chainstate's OnBlockConnected callback.
func (r *BlockRelayManager) RelayBlock(peers []*p2p.Peer, hash wire.BlockHash) {
	r.AnnounceTipToAllPeers(peers, hash)
}

// FlushBlockAnnouncements drains every peer's queue into INV messages of
// at most MaxInvSize items each, marking every flushed hash as announced
// so it is not re-queued to that peer within ReannounceTTL.
func (r *BlockRelayManager) FlushBlockAnnouncements(peerByID func(id int64) *p2p.Peer) {
	r.mu.Lock()
	pending := r.queues
	r.queues = make(map[int64][]invQueueEntry)
	r.mu.Unlock()

	for id, entries := range pending {
		if len(entries) == 0 {
			continue
		}
		peer := peerByID(id)
		if peer == nil {
			continue
		}
		for start := 0; start < len(entries); start += wire.MaxInvSize {
			end := start + wire.MaxInvSize
			if end > len(entries) {
				end = len(entries)
			}
			items := make([]wire.InventoryVector, 0, end-start)
			for _, e := range entries[start:end] {
				items = append(items, wire.InventoryVector{Type: wire.InvTypeBlock, Hash: e.hash})
				peer.MarkAnnounced(e.hash)
			}
			peer.Send(&wire.InvMessage{Items: items})
		}
	}
}

// ForgetPeer drops a disconnected peer's queue.
func (r *BlockRelayManager) ForgetPeer(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.queues, id)
}

// HandleInvMessage reacts to an incoming INV by requesting headers for any
// block hash not already known, routing INV -> GETHEADERS per spec.md C8.
// known reports whether the chainstate already has an index for hash.
func (r *BlockRelayManager) HandleInvMessage(peer *p2p.Peer, inv *wire.InvMessage, known func(h wire.BlockHash) bool) *wire.GetHeadersMessage {
	var wantStop wire.BlockHash
	wantAny := false
	for _, item := range inv.Items {
		if item.Type != wire.InvTypeBlock {
			continue
		}
		if known(item.Hash) {
			continue
		}
		wantAny = true
	}
	if !wantAny {
		return nil
	}
	return &wire.GetHeadersMessage{Version: wire.ProtocolVersion, HashStop: wantStop}
}
