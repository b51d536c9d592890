// Package chain defines the chainstate/validation engine's interface as
// consumed by the network core (spec.md §6 "Chainstate interface"). The
// engine itself — proof-of-work verification, on-disk storage, reorg
// logic — is explicitly out of scope (spec.md §1); this package only
// describes the boundary and ships a small in-memory reference
// implementation (chain/memchain) used by the network package's tests.
package chain

import (
	"math/big"

	"github.com/unicity-labs/headernet/wire"
)

// Index is one node in the header tree: a header plus the ancestry and
// cumulative-work bookkeeping the network core needs to build locators and
// evaluate anti-DoS work thresholds.
type Index struct {
	Hash   wire.BlockHash
	Header wire.BlockHeader
	Height int32
	Work   *big.Int // cumulative chain work up to and including this block
	Prev   *Index   // nil only at genesis
}

// RejectReason classifies why ProcessNewBlockHeaders refused a batch.
type RejectReason int

const (
	RejectNone RejectReason = iota
	RejectInvalidPoW
	RejectNonContinuous
	RejectDuplicate
	RejectLowWork
)

// AcceptedRange describes the contiguous height range actually integrated
// by a ProcessNewBlockHeaders call.
type AcceptedRange struct {
	First int32
	Last  int32
}

// ProcessResult is the outcome of handing a headers batch to the
// chainstate.
type ProcessResult struct {
	Accepted AcceptedRange
	Reason   RejectReason
	Err      error
}
