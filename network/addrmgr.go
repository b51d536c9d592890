package network

import (
	"math/rand"
	"net"
	"strconv"
	"sync"
	"time"

	mapset "github.com/deckarep/golang-set"

	"github.com/unicity-labs/headernet/log"
	"github.com/unicity-labs/headernet/p2p"
	"github.com/unicity-labs/headernet/wire"
)

// parseNetAddress converts a "host:port" string into the wire-format
// IPv4-mapped IPv6 address representation.
func parseNetAddress(hostport string) (wire.NetAddress, error) {
	host, portStr, err := net.SplitHostPort(hostport)
	if err != nil {
		return wire.NetAddress{}, err
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return wire.NetAddress{}, err
	}
	ip := net.ParseIP(host)
	var na wire.NetAddress
	if ip != nil {
		copy(na.IP[:], ip.To16())
	}
	na.Port = uint16(port)
	na.Services = wire.SFNodeNetwork
	return na, nil
}

// dialString renders a wire NetAddress back into a "host:port" string
// suitable for net.Dial and for use as the AddrManager's set key.
func dialString(na wire.NetAddress) string {
	ip := net.IP(na.IP[:])
	return net.JoinHostPort(ip.String(), strconv.FormatUint(uint64(na.Port), 10))
}

// AddrManager implements C5: address discovery and the GETADDR/ADDR
// exchange. Known addresses are split into a "tried" bucket (addresses
// we've successfully connected to before) and a "new" bucket (addresses
// only ever heard about), modeled with set membership rather than the full
// bucket/bias scheme a production address manager would use -- this
// module's scope is discovery bookkeeping, not eclipse-resistant bucket
// selection. "learned" is the subset of "new" that arrived via peer ADDR
// gossip rather than our own dialing, tracked separately so GETADDR
// replies can report the three-source composition spec.md C5 requires.
type AddrManager struct {
	mu      sync.Mutex
	tried   mapset.Set
	new     mapset.Set
	learned mapset.Set

	// getAddrServed records, per peer id, whether a GETADDR on that
	// connection has already been answered -- spec.md C5 requires exactly
	// one reply per connection, ever, not a repeat-request window.
	getAddrServed map[int64]bool

	// announcedBy records, per peer id, the set of addresses that peer
	// itself told us about and when, so a GETADDR reply to that same peer
	// can exclude anything it echoed to us within wire.GetAddrEchoWindow.
	announcedBy map[int64]map[string]time.Time

	// Diagnostics: composition of the most recent Sample call, per
	// spec.md C5's last_from_recent/last_from_addrman/last_from_learned.
	lastFromRecent  int
	lastFromAddrman int
	lastFromLearned int

	log log.Logger
}

// NewAddrManager returns an empty AddrManager.
func NewAddrManager() *AddrManager {
	return &AddrManager{
		tried:         mapset.NewSet(),
		new:           mapset.NewSet(),
		learned:       mapset.NewSet(),
		getAddrServed: make(map[int64]bool),
		announcedBy:   make(map[int64]map[string]time.Time),
		log:           log.New("module", "addrmgr"),
	}
}

// AddNew records addr as known but unconnected, unless it's already tried.
func (m *AddrManager) AddNew(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tried.Contains(addr) {
		return
	}
	m.new.Add(addr)
}

// AddLearned records addr as having been announced to us by peerID, via an
// ADDR message. It both feeds the "new" outbound-candidate pool and bumps
// the echo-suppression timestamp used when building a GETADDR reply back
// to that same peer.
func (m *AddrManager) AddLearned(peerID int64, addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.tried.Contains(addr) {
		m.new.Add(addr)
		m.learned.Add(addr)
	}
	if m.announcedBy[peerID] == nil {
		m.announcedBy[peerID] = make(map[string]time.Time)
	}
	m.announcedBy[peerID][addr] = time.Now()
}

// MarkTried moves addr from new to tried, recording a successful connect.
func (m *AddrManager) MarkTried(addr string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.new.Remove(addr)
	m.learned.Remove(addr)
	m.tried.Add(addr)
}

// AddrCount returns the number of known (tried + new) addresses.
func (m *AddrManager) AddrCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tried.Union(m.new).Cardinality()
}

// PickOutbound returns a random address not currently excluded, or ""
// if none are available. excluded is typically the set of addresses
// already connected.
func (m *AddrManager) PickOutbound(excluded map[string]struct{}) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	candidates := m.tried.Union(m.new)
	var pool []string
	for _, v := range candidates.ToSlice() {
		addr := v.(string)
		if _, skip := excluded[addr]; skip {
			continue
		}
		pool = append(pool, addr)
	}
	if len(pool) == 0 {
		return ""
	}
	return pool[rand.Intn(len(pool))]
}

// ShouldAnswerGetAddr applies spec.md C5's GETADDR policy: only one reply
// is ever served per connection, and requests arriving on a connection we
// initiated (outbound) are ignored entirely -- GETADDR is something we ask
// of peers, not something our outbound side answers.
func (m *AddrManager) ShouldAnswerGetAddr(peer *p2p.Peer) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if peer.ConnType != p2p.ConnTypeInbound {
		return false
	}
	if m.getAddrServed[peer.ID] {
		m.log.Debug("ignoring repeat getaddr", "peer", peer.ID)
		return false
	}
	m.getAddrServed[peer.ID] = true
	return true
}

// Sample builds a GETADDR reply for peerID: up to n addresses, shuffled,
// excluding the requester's own address and anything it echoed to us
// within the last wire.GetAddrEchoWindow, composed from three sources
// (recent/tried, general addrman, peer-learned) whose mix is recorded for
// diagnostics.
func (m *AddrManager) Sample(peerID int64, selfAddr string, n int) []wire.TimestampedAddress {
	m.mu.Lock()
	defer m.mu.Unlock()

	suppressed := m.announcedBy[peerID]
	excluded := func(addr string) bool {
		if addr == selfAddr {
			return true
		}
		if t, ok := suppressed[addr]; ok && time.Since(t) < wire.GetAddrEchoWindow {
			return true
		}
		return false
	}

	var recentPool, addrmanPool, learnedPool []string
	for _, v := range m.tried.ToSlice() {
		if addr := v.(string); !excluded(addr) {
			recentPool = append(recentPool, addr)
		}
	}
	for _, v := range m.learned.ToSlice() {
		if addr := v.(string); !excluded(addr) {
			learnedPool = append(learnedPool, addr)
		}
	}
	for _, v := range m.new.ToSlice() {
		addr := v.(string)
		if m.learned.Contains(addr) || excluded(addr) {
			continue
		}
		addrmanPool = append(addrmanPool, addr)
	}

	rand.Shuffle(len(recentPool), func(i, j int) { recentPool[i], recentPool[j] = recentPool[j], recentPool[i] })
	rand.Shuffle(len(addrmanPool), func(i, j int) { addrmanPool[i], addrmanPool[j] = addrmanPool[j], addrmanPool[i] })
	rand.Shuffle(len(learnedPool), func(i, j int) { learnedPool[i], learnedPool[j] = learnedPool[j], learnedPool[i] })

	var picked []string
	m.lastFromRecent, m.lastFromAddrman, m.lastFromLearned = 0, 0, 0
	for i := 0; len(picked) < n && (i < len(recentPool) || i < len(addrmanPool) || i < len(learnedPool)); i++ {
		if i < len(recentPool) && len(picked) < n {
			picked = append(picked, recentPool[i])
			m.lastFromRecent++
		}
		if i < len(addrmanPool) && len(picked) < n {
			picked = append(picked, addrmanPool[i])
			m.lastFromAddrman++
		}
		if i < len(learnedPool) && len(picked) < n {
			picked = append(picked, learnedPool[i])
			m.lastFromLearned++
		}
	}
	rand.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })

	m.log.Debug("built getaddr reply", "peer", peerID, "recent", m.lastFromRecent,
		"addrman", m.lastFromAddrman, "learned", m.lastFromLearned)

	now := uint32(time.Now().Unix())
	out := make([]wire.TimestampedAddress, 0, len(picked))
	for _, addr := range picked {
		na, err := parseNetAddress(addr)
		if err != nil {
			continue
		}
		out = append(out, wire.TimestampedAddress{Timestamp: now, Addr: na})
	}
	return out
}

// ForgetPeer drops any per-connection bookkeeping for a disconnected peer
// (GETADDR-served flag, echo-suppression timestamps), so its slots don't
// leak for the life of the process.
func (m *AddrManager) ForgetPeer(peerID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.getAddrServed, peerID)
	delete(m.announcedBy, peerID)
}
