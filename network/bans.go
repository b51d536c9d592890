package network

import (
	"errors"
	"sync"
	"time"

	"github.com/unicity-labs/headernet/log"
)

// errDiscouraged is returned by admission checks when the remote IP is
// currently on the discouragement list.
var errDiscouraged = errors.New("network: peer is discouraged")

// discourageDuration is how long an IP stays discouraged after crossing
// the misbehavior threshold (spec.md: discouragement is soft and
// time-bounded, distinct from a permanent ban).
const discourageDuration = 24 * time.Hour

// BanStore tracks discouraged (soft-banned) IP addresses. Unlike a
// permanent ban list, entries expire on their own; IsDiscouraged lazily
// evicts stale entries rather than running a background sweep, matching
// the teacher stack's lazy-expiry cache idiom.
type BanStore struct {
	mu      sync.Mutex
	until   map[string]time.Time
	log     log.Logger
}

// NewBanStore returns an empty BanStore.
func NewBanStore() *BanStore {
	return &BanStore{
		until: make(map[string]time.Time),
		log:   log.New("module", "bans"),
	}
}

// Discourage marks ip as discouraged for discourageDuration, logging why.
func (b *BanStore) Discourage(ip, reason string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.until[ip] = time.Now().Add(discourageDuration)
	b.log.Warn("discouraging peer", "ip", ip, "reason", reason, "until", b.until[ip])
}

// IsDiscouraged reports whether ip is currently discouraged, evicting the
// entry if it has expired.
func (b *BanStore) IsDiscouraged(ip string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	exp, ok := b.until[ip]
	if !ok {
		return false
	}
	if time.Now().After(exp) {
		delete(b.until, ip)
		return false
	}
	return true
}

// Clear removes any discouragement entry for ip.
func (b *BanStore) Clear(ip string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.until, ip)
}

// Snapshot returns a copy of the current discouragement table, for
// persistence or introspection.
func (b *BanStore) Snapshot() map[string]time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]time.Time, len(b.until))
	for k, v := range b.until {
		out[k] = v
	}
	return out
}
