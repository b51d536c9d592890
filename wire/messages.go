package wire

import "errors"

// ErrUnexpectedPayload is returned when a message defined to carry an
// empty payload (VERACK, GETADDR) receives a non-empty one.
var ErrUnexpectedPayload = errors.New("wire: unexpected non-empty payload")

// BlockHash identifies a block header by its double-SHA256 hash.
type BlockHash [BlockHashSize]byte

// IsZero reports whether h is the all-zero hash, used as the GETHEADERS
// "send as many as possible" stop-hash sentinel.
func (h BlockHash) IsZero() bool {
	return h == BlockHash{}
}

// Message is the common interface satisfied by every payload type. It
// mirrors the teacher's "tagged variant" approach described in the design
// notes: Command is a pure function of the concrete type, there is no
// shared mutable base state.
type Message interface {
	Command() string
	Encode() []byte
	Decode(payload []byte) error
}

// NetAddress is a peer network address as carried in VERSION/ADDR.
type NetAddress struct {
	Services ServiceFlags
	IP       [16]byte // IPv4-mapped IPv6 representation
	Port     uint16
}

func (a NetAddress) encode(w *Writer) {
	w.WriteUint64(uint64(a.Services))
	w.WriteBytes(a.IP[:])
	w.WriteUint16(a.Port)
}

func (a *NetAddress) decode(r *Reader) {
	a.Services = ServiceFlags(r.ReadUint64())
	copy(a.IP[:], r.ReadBytes(16))
	a.Port = r.ReadUint16()
}

// TimestampedAddress is an address as carried inside ADDR (VERSION's
// embedded addresses have no timestamp).
type TimestampedAddress struct {
	Timestamp uint32
	Addr      NetAddress
}

// Inventory types. Only MSG_BLOCK is used (spec.md Non-goals: no tx relay).
const InvTypeBlock uint32 = 2

// InventoryVector identifies one relayed item.
type InventoryVector struct {
	Type uint32
	Hash BlockHash
}

// ---- VERSION ----

type VersionMessage struct {
	Version     uint32
	Services    ServiceFlags
	Timestamp   int64
	AddrRecv    NetAddress
	AddrFrom    NetAddress
	Nonce       uint64
	UserAgent   string
	StartHeight int32
}

func (m *VersionMessage) Command() string { return CmdVersion }

func (m *VersionMessage) Encode() []byte {
	w := NewWriter()
	w.WriteUint32(m.Version)
	w.WriteUint64(uint64(m.Services))
	w.WriteInt64(m.Timestamp)
	m.AddrRecv.encode(w)
	m.AddrFrom.encode(w)
	w.WriteUint64(m.Nonce)
	w.WriteString(m.UserAgent)
	w.WriteInt32(m.StartHeight)
	return w.Bytes()
}

func (m *VersionMessage) Decode(payload []byte) error {
	r := NewReader(payload)
	m.Version = r.ReadUint32()
	m.Services = ServiceFlags(r.ReadUint64())
	m.Timestamp = r.ReadInt64()
	m.AddrRecv.decode(r)
	m.AddrFrom.decode(r)
	m.Nonce = r.ReadUint64()
	m.UserAgent = r.ReadString(MaxSubversionLength)
	m.StartHeight = r.ReadInt32()
	return r.Err()
}

// ---- VERACK / GETADDR (empty payloads) ----

type VerackMessage struct{}

func (m *VerackMessage) Command() string  { return CmdVerack }
func (m *VerackMessage) Encode() []byte   { return nil }
func (m *VerackMessage) Decode(p []byte) error {
	if len(p) != 0 {
		return ErrUnexpectedPayload
	}
	return nil
}

type GetAddrMessage struct{}

func (m *GetAddrMessage) Command() string { return CmdGetAddr }
func (m *GetAddrMessage) Encode() []byte  { return nil }
func (m *GetAddrMessage) Decode(p []byte) error {
	if len(p) != 0 {
		return ErrUnexpectedPayload
	}
	return nil
}

// ---- PING / PONG ----

type PingMessage struct{ Nonce uint64 }

func (m *PingMessage) Command() string { return CmdPing }
func (m *PingMessage) Encode() []byte {
	w := NewWriter()
	w.WriteUint64(m.Nonce)
	return w.Bytes()
}
func (m *PingMessage) Decode(p []byte) error {
	r := NewReader(p)
	m.Nonce = r.ReadUint64()
	return r.Err()
}

type PongMessage struct{ Nonce uint64 }

func (m *PongMessage) Command() string { return CmdPong }
func (m *PongMessage) Encode() []byte {
	w := NewWriter()
	w.WriteUint64(m.Nonce)
	return w.Bytes()
}
func (m *PongMessage) Decode(p []byte) error {
	r := NewReader(p)
	m.Nonce = r.ReadUint64()
	return r.Err()
}

// ---- ADDR ----

type AddrMessage struct {
	Addresses []TimestampedAddress
}

func (m *AddrMessage) Command() string { return CmdAddr }

func (m *AddrMessage) Encode() []byte {
	w := NewWriter()
	w.WriteVarint(uint64(len(m.Addresses)))
	for _, a := range m.Addresses {
		w.WriteUint32(a.Timestamp)
		a.Addr.encode(w)
	}
	return w.Bytes()
}

func (m *AddrMessage) Decode(payload []byte) error {
	r := NewReader(payload)
	n := r.ReadVarintCapped(MaxAddrSize)
	if r.Err() != nil {
		return r.Err()
	}
	addrs := make([]TimestampedAddress, 0, n)
	for i := uint64(0); i < n; i++ {
		var ta TimestampedAddress
		ta.Timestamp = r.ReadUint32()
		ta.Addr.decode(r)
		addrs = append(addrs, ta)
	}
	if r.Err() != nil {
		return r.Err()
	}
	m.Addresses = addrs
	return nil
}

// ---- INV ----

type InvMessage struct {
	Items []InventoryVector
}

func (m *InvMessage) Command() string { return CmdInv }

func (m *InvMessage) Encode() []byte {
	w := NewWriter()
	w.WriteVarint(uint64(len(m.Items)))
	for _, it := range m.Items {
		w.WriteUint32(it.Type)
		w.WriteHash(it.Hash)
	}
	return w.Bytes()
}

func (m *InvMessage) Decode(payload []byte) error {
	r := NewReader(payload)
	n := r.ReadVarintCapped(MaxInvSize)
	if r.Err() != nil {
		return r.Err()
	}
	items := make([]InventoryVector, 0, n)
	for i := uint64(0); i < n; i++ {
		var it InventoryVector
		it.Type = r.ReadUint32()
		it.Hash = r.ReadHash()
		items = append(items, it)
	}
	if r.Err() != nil {
		return r.Err()
	}
	m.Items = items
	return nil
}

// ---- GETHEADERS ----

type GetHeadersMessage struct {
	Version  uint32
	Locator  []BlockHash
	HashStop BlockHash
}

func (m *GetHeadersMessage) Command() string { return CmdGetHeaders }

func (m *GetHeadersMessage) Encode() []byte {
	w := NewWriter()
	w.WriteUint32(m.Version)
	w.WriteVarint(uint64(len(m.Locator)))
	for _, h := range m.Locator {
		w.WriteHash(h)
	}
	w.WriteHash(m.HashStop)
	return w.Bytes()
}

func (m *GetHeadersMessage) Decode(payload []byte) error {
	r := NewReader(payload)
	m.Version = r.ReadUint32()
	n := r.ReadVarintCapped(MaxLocatorSz)
	if r.Err() != nil {
		return r.Err()
	}
	locator := make([]BlockHash, 0, n)
	for i := uint64(0); i < n; i++ {
		locator = append(locator, r.ReadHash())
	}
	m.HashStop = r.ReadHash()
	if r.Err() != nil {
		return r.Err()
	}
	m.Locator = locator
	return nil
}

// ---- HEADERS ----

type HeadersMessage struct {
	Headers []BlockHeader
}

func (m *HeadersMessage) Command() string { return CmdHeaders }

func (m *HeadersMessage) Encode() []byte {
	w := NewWriter()
	w.WriteVarint(uint64(len(m.Headers)))
	for _, h := range m.Headers {
		w.WriteBytes(h.Serialize())
	}
	return w.Bytes()
}

func (m *HeadersMessage) Decode(payload []byte) error {
	r := NewReader(payload)
	n := r.ReadVarintCapped(MaxHeadersSize)
	if r.Err() != nil {
		return r.Err()
	}
	headers := make([]BlockHeader, 0, n)
	for i := uint64(0); i < n; i++ {
		raw := r.ReadBytes(HeaderSize)
		if r.Err() != nil {
			return r.Err()
		}
		h, err := DeserializeHeader100(raw)
		if err != nil {
			return err
		}
		headers = append(headers, h)
	}
	m.Headers = headers
	return nil
}

// NewMessage constructs a zero-value message for the given command, or nil
// if the command is unrecognized. Used by the frame decoder to pick a
// concrete type to Decode into.
func NewMessage(command string) Message {
	switch command {
	case CmdVersion:
		return &VersionMessage{}
	case CmdVerack:
		return &VerackMessage{}
	case CmdPing:
		return &PingMessage{}
	case CmdPong:
		return &PongMessage{}
	case CmdGetAddr:
		return &GetAddrMessage{}
	case CmdAddr:
		return &AddrMessage{}
	case CmdInv:
		return &InvMessage{}
	case CmdGetHeaders:
		return &GetHeadersMessage{}
	case CmdHeaders:
		return &HeadersMessage{}
	default:
		return nil
	}
}
