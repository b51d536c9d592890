// Package memchain is a small in-memory chainstate used as the reference
// implementation of chain.Reader for tests and local simulation, grounded
// on the teacher pack's own in-memory blockchain test harnesses (e.g.
// neo-go's core.NewBlockchain(core.NewMemoryStore(), ...) pattern, and
// btcd's blockmanager "process, notify, relay" flow).
package memchain

import (
	"math/big"
	"sync"

	"github.com/unicity-labs/headernet/chain"
	"github.com/unicity-labs/headernet/wire"
)

// Chain is a deterministic, non-persistent chain of headers rooted at a
// caller-supplied genesis. It performs no proof-of-work verification
// (out of scope, spec.md §1); a header's work is its Bits value taken as a
// plain number (0 counts as 1), purely so
// CalculateHeadersWork/AntiDoSWorkThreshold have deterministic semantics
// for tests.
type Chain struct {
	mu sync.RWMutex

	byHash   map[wire.BlockHash]*chain.Index
	tip      *chain.Index
	genesis  *chain.Index
	ibd      bool
	minWork  *big.Int
	subs     []chain.BlockConnectedFunc
	recentAge int32 // blocks within this many of tip count as "recent"
}

// New creates a chain rooted at genesisHeader (Height 0).
func New(genesisHeader wire.BlockHeader) *Chain {
	g := &chain.Index{
		Hash:   genesisHeader.Hash(),
		Header: genesisHeader,
		Height: 0,
		Work:   blockWork(genesisHeader.Bits),
		Prev:   nil,
	}
	c := &Chain{
		byHash:    map[wire.BlockHash]*chain.Index{g.Hash: g},
		tip:       g,
		genesis:   g,
		ibd:       true,
		minWork:   big.NewInt(0),
		recentAge: 6,
	}
	return c
}

// SetIBD overrides the initial-block-download flag (tests toggle this to
// exercise IBD-gated behavior deterministically).
func (c *Chain) SetIBD(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ibd = v
}

// SetAntiDoSWorkThreshold overrides the minimum accepted batch work.
func (c *Chain) SetAntiDoSWorkThreshold(w *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.minWork = w
}

func blockWork(bits uint32) *big.Int {
	// Simplified work: bits is used directly as a linear difficulty
	// value, with 0 counted as 1, since real compact-target decoding
	// belongs to the validation engine this package stands in for.
	if bits == 0 {
		bits = 1
	}
	return new(big.Int).SetUint64(uint64(bits))
}

func (c *Chain) Tip() *chain.Index { c.mu.RLock(); defer c.mu.RUnlock(); return c.tip }
func (c *Chain) Genesis() *chain.Index { return c.genesis }
func (c *Chain) Height() int32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tip.Height
}

func (c *Chain) LookupBlockIndex(hash wire.BlockHash) *chain.Index {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.byHash[hash]
}

func (c *Chain) IsInitialBlockDownload() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.ibd
}

func (c *Chain) CalculateHeadersWork(headers []wire.BlockHeader) *big.Int {
	total := new(big.Int)
	for _, h := range headers {
		total.Add(total, blockWork(h.Bits))
	}
	return total
}

func (c *Chain) AntiDoSWorkThreshold() *big.Int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return new(big.Int).Set(c.minWork)
}

// ProcessNewBlockHeaders integrates headers in order, stopping at the
// first that doesn't connect to a known index. Each header is added as it
// is processed, and the tip moves to it whenever it carries more work than
// the current tip, so headers before a non-connecting one stay integrated.
func (c *Chain) ProcessNewBlockHeaders(headers []wire.BlockHeader) chain.ProcessResult {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(headers) == 0 {
		return chain.ProcessResult{}
	}

	first := int32(-1)
	last := int32(-1)
	cur := c.tip
	var notify []wire.BlockHash
	reason := chain.RejectNone
	for _, h := range headers {
		parent, ok := c.byHash[h.PrevHash]
		if !ok {
			reason = chain.RejectNonContinuous
			break
		}
		hash := h.Hash()
		if _, dup := c.byHash[hash]; dup {
			continue
		}
		idx := &chain.Index{
			Hash:   hash,
			Header: h,
			Height: parent.Height + 1,
			Work:   new(big.Int).Add(parent.Work, blockWork(h.Bits)),
			Prev:   parent,
		}
		c.byHash[hash] = idx
		if first == -1 {
			first = idx.Height
		}
		last = idx.Height
		if idx.Work.Cmp(c.tip.Work) > 0 {
			c.tip = idx
			cur = idx
			notify = append(notify, hash)
		}
	}
	_ = cur
	for _, h := range notify {
		recent := c.tip.Height-c.byHash[h].Height <= c.recentAge
		for _, cb := range c.subs {
			cb(h, recent)
		}
	}
	return chain.ProcessResult{Accepted: chain.AcceptedRange{First: first, Last: last}, Reason: reason}
}

func (c *Chain) OnBlockConnected(cb chain.BlockConnectedFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subs = append(c.subs, cb)
}

var _ chain.Reader = (*Chain)(nil)
