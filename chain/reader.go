package chain

import (
	"math/big"

	"github.com/unicity-labs/headernet/wire"
)

// BlockConnectedFunc is invoked by the chainstate whenever a new block is
// connected to the active chain. recent reports whether the connected
// block is within the caller's "recent" window; spec.md §6 requires the
// subscriber to forward to relay only "if not in IBD and the block is
// recent" — that gating lives in the network package, not here.
type BlockConnectedFunc func(hash wire.BlockHash, recent bool)

// Reader is the chainstate/validation engine boundary the network core
// depends on (spec.md §6). Everything on the other side of this interface
// — header validation, proof-of-work checks, storage — belongs to the
// chainstate/validation engine and is out of scope for this module.
type Reader interface {
	// Tip returns the current active-chain tip.
	Tip() *Index

	// Genesis returns the genesis index (Height == 0, Prev == nil).
	Genesis() *Index

	// Height returns the active chain's height.
	Height() int32

	// LookupBlockIndex finds any known header by hash, on or off the
	// active chain, or nil if unknown.
	LookupBlockIndex(hash wire.BlockHash) *Index

	// IsInitialBlockDownload reports whether the node considers itself
	// behind the network and still catching up.
	IsInitialBlockDownload() bool

	// CalculateHeadersWork sums the proof-of-work difficulty implied by a
	// contiguous batch of headers.
	CalculateHeadersWork(headers []wire.BlockHeader) *big.Int

	// AntiDoSWorkThreshold is the minimum CalculateHeadersWork result a
	// batch must meet to be integrated during anti-DoS gating.
	AntiDoSWorkThreshold() *big.Int

	// ProcessNewBlockHeaders validates and integrates headers, in order,
	// stopping at the first one that fails. It never partially applies a
	// single header.
	ProcessNewBlockHeaders(headers []wire.BlockHeader) ProcessResult

	// OnBlockConnected registers a callback invoked after every new tip.
	OnBlockConnected(cb BlockConnectedFunc)
}
