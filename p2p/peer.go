package p2p

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru"

	"github.com/unicity-labs/headernet/log"
	"github.com/unicity-labs/headernet/wire"
)

// State is the peer handshake lifecycle (spec.md C3).
type State int32

const (
	StateNew State = iota
	StateVersionSent
	StateVersionReceived
	StateReady
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateVersionSent:
		return "version_sent"
	case StateVersionReceived:
		return "version_received"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// ConnType classifies why a connection exists, mirroring the original
// implementation's connection_types.hpp enum. Manual connections skip the
// discouragement and per-IP checks at admission; misbehavior handling is
// the same for every type and depends only on PermissionNoBan.
type ConnType int

const (
	ConnTypeInbound ConnType = iota
	ConnTypeOutbound
	ConnTypeManual
	ConnTypeFeeler
)

func (t ConnType) String() string {
	switch t {
	case ConnTypeInbound:
		return "inbound"
	case ConnTypeOutbound:
		return "outbound"
	case ConnTypeManual:
		return "manual"
	case ConnTypeFeeler:
		return "feeler"
	default:
		return "unknown"
	}
}

// known-inventory cache size: bounds memory for the per-peer "already
// announced to this peer" set used by the relay manager's dedup.
const knownInventoryCacheSize = 20000

// misbehavior scoring: crossing this score triggers discouragement.
const discourageThreshold = 100

// NetPermissionFlags are per-peer permission bits granted at connection
// time (spec.md §3), mirroring the original implementation's
// NetPermissionFlags bitmask. Anchors and manually-added peers are loaded
// with PermissionNoBan (spec.md §4.4); ordinary inbound/outbound peers get
// PermissionNone.
type NetPermissionFlags uint32

const (
	PermissionNone NetPermissionFlags = 0
	// PermissionNoBan exempts a peer from discourage/disconnect action on
	// crossing discourageThreshold. The misbehavior score is still tracked
	// for this peer -- only the disconnect policy is skipped.
	PermissionNoBan NetPermissionFlags = 1 << 0
)

var (
	errHandshakeTwice    = errors.New("p2p: duplicate version message")
	errNotReady          = errors.New("p2p: message received before handshake complete")
	errSelfConnect       = errors.New("p2p: connected to self (nonce collision)")
)

// Peer is the network package's view of one connection: the framed Conn
// plus handshake state, misbehavior score, and per-peer known-inventory
// cache. All mutation here is expected to happen on the owning reactor's
// single goroutine; Score/Misbehave are the only methods safe to call from
// elsewhere (they're simple atomics).
type Peer struct {
	ID          int64
	Conn        *Conn
	ConnType    ConnType
	Addr        net.Addr
	Permissions NetPermissionFlags

	log log.Logger

	state  int32 // atomic State
	score  int32 // atomic misbehavior score

	// Version info, set once on receipt of the peer's VERSION message.
	Version     uint32
	Services    wire.ServiceFlags
	UserAgent   string
	StartHeight int32
	Nonce       uint64

	knownInv *lru.Cache

	mu              sync.Mutex
	connectedAt     time.Time
	lastRecvAt      time.Time
	versionSent     bool
	verackReceived  bool
}

// NewPeer constructs a peer in StateNew for a connection to addr. conn may
// be nil at construction time and attached later via AttachConn -- the
// owner needs a Peer to close over in the Conn's callbacks before the Conn
// itself can be built.
func NewPeer(id int64, addr net.Addr, conn *Conn, connType ConnType) *Peer {
	cache, err := lru.New(knownInventoryCacheSize)
	if err != nil {
		// Only possible with a non-positive size, which is a programmer
		// error, not a runtime condition callers need to handle.
		panic(fmt.Sprintf("p2p: bad known-inventory cache size: %v", err))
	}
	p := &Peer{
		ID:          id,
		Conn:        conn,
		ConnType:    connType,
		Addr:        addr,
		log:         log.New("peer", id, "raddr", addr.String()),
		knownInv:    cache,
		connectedAt: time.Now(),
	}
	atomic.StoreInt32(&p.state, int32(StateNew))
	return p
}

// AttachConn binds the peer's underlying Conn once it has been
// constructed. Must be called before the first Send/Disconnect.
func (p *Peer) AttachConn(conn *Conn) { p.Conn = conn }

// SetPermissions grants perms to the peer. Called by the owner once, before
// the peer is admitted, e.g. to grant PermissionNoBan to anchors and
// manually-configured peers (spec.md §4.4).
func (p *Peer) SetPermissions(perms NetPermissionFlags) { p.Permissions = perms }

// NoBan reports whether this peer is exempt from discourage/disconnect
// action when its misbehavior score crosses discourageThreshold. The score
// itself is still tracked regardless.
func (p *Peer) NoBan() bool { return p.Permissions&PermissionNoBan != 0 }

// State returns the peer's current handshake state.
func (p *Peer) State() State { return State(atomic.LoadInt32(&p.state)) }

func (p *Peer) setState(s State) { atomic.StoreInt32(&p.state, int32(s)) }

// MarkVersionSent transitions NEW -> VERSION_SENT after our VERSION is
// queued for send.
func (p *Peer) MarkVersionSent() {
	p.mu.Lock()
	p.versionSent = true
	p.mu.Unlock()
	if p.State() == StateNew {
		p.setState(StateVersionSent)
	}
}

// HandleVersion records the peer's VERSION and advances the state machine.
// Returns errHandshakeTwice if VERSION was already received once.
func (p *Peer) HandleVersion(v *wire.VersionMessage, localNonce uint64) error {
	if p.State() != StateNew && p.State() != StateVersionSent {
		return errHandshakeTwice
	}
	if v.Nonce == localNonce {
		return errSelfConnect
	}
	p.Version = v.Version
	p.Services = v.Services
	p.UserAgent = v.UserAgent
	p.StartHeight = v.StartHeight
	p.Nonce = v.Nonce
	p.setState(StateVersionReceived)
	return nil
}

// HandleVerack completes the handshake once both VERSION and VERACK have
// been exchanged in both directions.
func (p *Peer) HandleVerack() {
	p.mu.Lock()
	p.verackReceived = true
	p.mu.Unlock()
	if p.State() == StateVersionReceived {
		p.setState(StateReady)
	}
}

// IsReady reports whether the handshake has completed. Every handler that
// processes a post-handshake message (GETHEADERS, HEADERS, INV, ...) must
// check this before acting, not only the peer's own receive loop, since
// dispatch may be re-entered from relay broadcast paths too.
func (p *Peer) IsReady() bool { return p.State() == StateReady }

// Touch records receipt of a message for idle-timeout bookkeeping.
func (p *Peer) Touch() {
	p.mu.Lock()
	p.lastRecvAt = time.Now()
	p.mu.Unlock()
}

// HasAnnounced reports whether hash was sent to this peer within
// wire.ReannounceTTL, without marking it announced.
func (p *Peer) HasAnnounced(hash wire.BlockHash) bool {
	v, ok := p.knownInv.Peek(hash)
	if !ok {
		return false
	}
	return time.Since(v.(time.Time)) < wire.ReannounceTTL
}

// MarkAnnounced records hash as sent to this peer now.
func (p *Peer) MarkAnnounced(hash wire.BlockHash) {
	p.knownInv.Add(hash, time.Now())
}

// Score returns the current misbehavior score.
func (p *Peer) Score() int { return int(atomic.LoadInt32(&p.score)) }

// Misbehave adds delta to the peer's misbehavior score and logs why.
// Returns true once the score has crossed discourageThreshold, at which
// point the caller (the network manager) is responsible for
// discouraging/disconnecting. Every peer is scored; only PermissionNoBan
// exempts a peer from the manager's disconnect policy.
func (p *Peer) Misbehave(delta int, reason string) bool {
	newScore := atomic.AddInt32(&p.score, int32(delta))
	p.log.Debug("peer misbehavior", "delta", delta, "score", newScore, "reason", reason)
	return newScore >= discourageThreshold
}

// Send queues msg for delivery, silently ordering it behind any in-flight
// VERSION/VERACK per the handshake protocol -- callers are expected to not
// send post-handshake messages until IsReady().
func (p *Peer) Send(msg wire.Message) { p.Conn.Send(msg) }

// Disconnect closes the underlying connection.
func (p *Peer) Disconnect() {
	p.setState(StateDisconnected)
	p.Conn.Close()
}
