package network

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"

	"github.com/unicity-labs/headernet/log"
	"github.com/unicity-labs/headernet/p2p"
)

var (
	// errPerIPQuotaExceeded is returned when an inbound connection would
	// push a single remote IP over maxPerIP simultaneous connections.
	errPerIPQuotaExceeded = errors.New("network: per-IP connection quota exceeded")

	// errNonceCollision is returned when a peer's handshake nonce matches
	// our own process nonce, i.e. we have connected to ourselves.
	errNonceCollision = errors.New("network: self-connection detected")

	// errAtCapacity is returned when the relevant inbound/outbound slot
	// pool is full.
	errAtCapacity = errors.New("network: connection slots full")
)

// maxPerIP caps simultaneous connections from a single remote address,
// independent of the global inbound/outbound slot totals.
const maxPerIP = 4

// PeerTrackingData is the bookkeeping the lifecycle manager keeps per
// connected peer, beyond what p2p.Peer itself tracks.
type PeerTrackingData struct {
	Peer *p2p.Peer
	IP   string
}

// PeerLifecycleManager owns peer admission, the PeerId allocator, and the
// live peer set (spec.md C4). All methods are expected to be called from
// the single reactor goroutine except where noted.
type PeerLifecycleManager struct {
	mu sync.Mutex

	nextID int64

	byID     map[int64]*PeerTrackingData
	perIP    map[string]int
	nonce    uint64 // process-wide handshake nonce, for self-connect detection

	maxOutbound int
	maxInbound  int
	outboundCnt int
	inboundCnt  int

	log log.Logger

	bans *BanStore
}

// NewPeerLifecycleManager constructs a manager with capacity limits and a
// process nonce (used to detect self-connection per spec.md C3).
func NewPeerLifecycleManager(maxOutbound, maxInbound int, nonce uint64, bans *BanStore) *PeerLifecycleManager {
	return &PeerLifecycleManager{
		byID:        make(map[int64]*PeerTrackingData),
		perIP:       make(map[string]int),
		nonce:       nonce,
		maxOutbound: maxOutbound,
		maxInbound:  maxInbound,
		log:         log.New("module", "peers"),
		bans:        bans,
	}
}

// Nonce returns the process-wide handshake nonce.
func (m *PeerLifecycleManager) Nonce() uint64 { return m.nonce }

// AllocateID returns a fresh, never-reused PeerId.
func (m *PeerLifecycleManager) AllocateID() int64 {
	return atomic.AddInt64(&m.nextID, 1)
}

// Admit checks an incoming or outgoing connection against discouragement,
// per-IP quota, and capacity limits, then registers it. Callers must hold
// off wiring p2p.Peer callbacks until Admit succeeds.
func (m *PeerLifecycleManager) Admit(peer *p2p.Peer) error {
	ip := hostOf(peer.Addr)

	m.mu.Lock()
	defer m.mu.Unlock()

	exempt := peer.ConnType == p2p.ConnTypeManual || peer.NoBan()
	if m.bans != nil && m.bans.IsDiscouraged(ip) && !exempt {
		return errDiscouraged
	}
	if !exempt && m.perIP[ip] >= maxPerIP {
		return errPerIPQuotaExceeded
	}

	switch peer.ConnType {
	case p2p.ConnTypeInbound:
		if m.inboundCnt >= m.maxInbound {
			return errAtCapacity
		}
		m.inboundCnt++
	case p2p.ConnTypeOutbound, p2p.ConnTypeFeeler:
		if m.outboundCnt >= m.maxOutbound {
			return errAtCapacity
		}
		m.outboundCnt++
	}

	m.perIP[ip]++
	m.byID[peer.ID] = &PeerTrackingData{Peer: peer, IP: ip}
	m.log.Info("peer admitted", "peer", peer.ID, "ip", ip, "type", peer.ConnType.String())
	return nil
}

// CheckNonce returns errNonceCollision if peerNonce equals our own
// process nonce.
func (m *PeerLifecycleManager) CheckNonce(peerNonce uint64) error {
	if peerNonce == m.nonce {
		return errNonceCollision
	}
	return nil
}

// Remove unregisters a disconnected peer and releases its capacity and
// per-IP slot. Safe to call multiple times for the same id.
func (m *PeerLifecycleManager) Remove(id int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	td, ok := m.byID[id]
	if !ok {
		return
	}
	delete(m.byID, id)
	m.perIP[td.IP]--
	if m.perIP[td.IP] <= 0 {
		delete(m.perIP, td.IP)
	}
	switch td.Peer.ConnType {
	case p2p.ConnTypeInbound:
		m.inboundCnt--
	case p2p.ConnTypeOutbound, p2p.ConnTypeFeeler:
		m.outboundCnt--
	}
	m.log.Info("peer removed", "peer", id)
}

// Get returns the tracked peer by id, or nil.
func (m *PeerLifecycleManager) Get(id int64) *p2p.Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	td, ok := m.byID[id]
	if !ok {
		return nil
	}
	return td.Peer
}

// All returns a snapshot slice of every currently tracked peer.
func (m *PeerLifecycleManager) All() []*p2p.Peer {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*p2p.Peer, 0, len(m.byID))
	for _, td := range m.byID {
		out = append(out, td.Peer)
	}
	return out
}

// Count returns the number of currently tracked peers.
func (m *PeerLifecycleManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.byID)
}

func hostOf(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
