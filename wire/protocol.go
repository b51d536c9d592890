// Package wire implements the headernet wire protocol: message framing,
// the CompactSize variable-length integer, and the primitive/message codec
// described for a headers-only chain (no transactions, no block bodies).
package wire

import "time"

// Network magic values. Each identifies a distinct chain and is checked on
// every frame header; a mismatch is always fatal to the connection.
const (
	MagicMainnet uint32 = 0xd9b4bef9
	MagicTestnet uint32 = 0x0709110b
	MagicRegtest uint32 = 0xdab5bffa
)

// Command strings, always encoded as 12-byte null-padded ASCII.
const (
	CmdVersion    = "version"
	CmdVerack     = "verack"
	CmdPing       = "ping"
	CmdPong       = "pong"
	CmdGetAddr    = "getaddr"
	CmdAddr       = "addr"
	CmdInv        = "inv"
	CmdGetHeaders = "getheaders"
	CmdHeaders    = "headers"
)

// Protocol-wide size caps. Every container-length field is bounds-checked
// against one of these before a single byte of payload is allocated.
const (
	// MessageHeaderSize is the fixed wire size of MessageHeader.
	MessageHeaderSize = 24

	// CommandSize is the width of the null-padded command field.
	CommandSize = 12

	// MaxProtocolMessageLength caps the length field of any frame.
	MaxProtocolMessageLength = 4 * 1024 * 1024

	// MaxSize is the ceiling for any CompactSize used as a container length.
	MaxSize = 0x02000000

	// MaxSubversionLength caps the VERSION user_agent string.
	MaxSubversionLength = 256

	// MaxAddrSize caps the address count in an ADDR message.
	MaxAddrSize = 1000

	// MaxInvSize caps the inventory-vector count in an INV message.
	MaxInvSize = 50000

	// MaxLocatorSz caps the hash count in a GETHEADERS locator.
	MaxLocatorSz = 101

	// MaxHeadersSize caps the header count in a HEADERS message.
	MaxHeadersSize = 2000

	// HeaderSize is the fixed serialized size of a single block header.
	HeaderSize = 100

	// BlockHashSize is the width of a block hash.
	BlockHashSize = 32
)

// ProtocolVersion is the version number this implementation negotiates.
const ProtocolVersion uint32 = 1

// ServiceFlags advertises node capabilities in VERSION. This chain has only
// a single "full node" flag (spec.md Non-goals: no optional service bits).
type ServiceFlags uint64

const (
	SFNodeNone    ServiceFlags = 0
	SFNodeNetwork ServiceFlags = 1 << 0
)

// Default handshake/idle/connect timeouts, shared by p2p and network.
const (
	HandshakeTimeout  = 60 * time.Second
	IdleTimeout       = 20 * time.Minute
	ConnectTimeout    = 10 * time.Second
	SyncStallTimeout  = 120 * time.Second
	ReannounceTTL     = 10 * time.Minute
	GetAddrEchoWindow = 10 * time.Minute
)
