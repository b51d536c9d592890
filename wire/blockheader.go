package wire

import "errors"

// ErrHeaderTruncated is returned when the input to decode a BlockHeader is
// not exactly HeaderSize bytes long.
var ErrHeaderTruncated = errors.New("wire: truncated block header")

// BlockHeader is the fixed 100-byte header this chain replicates in place
// of a full block body (spec.md §1: "a chain whose block body is
// effectively its 100-byte header"). The extra 20 bytes beyond a classic
// 80-byte Bitcoin header hold algorithm-specific proof-of-work extension
// data (out of scope here; proof-of-work verification is an external
// collaborator concern, spec.md §1).
type BlockHeader struct {
	Version    int32
	PrevHash   BlockHash
	MerkleRoot BlockHash
	Timestamp  uint32
	Bits       uint32
	Nonce      uint32
	PowExtra   [20]byte
}

// Serialize encodes h to exactly HeaderSize bytes.
func (h BlockHeader) Serialize() []byte {
	w := NewWriter()
	w.WriteInt32(h.Version)
	w.WriteHash(h.PrevHash)
	w.WriteHash(h.MerkleRoot)
	w.WriteUint32(h.Timestamp)
	w.WriteUint32(h.Bits)
	w.WriteUint32(h.Nonce)
	w.WriteBytes(h.PowExtra[:])
	return w.Bytes()
}

// Hash returns the double-SHA256 hash of the serialized header.
func (h BlockHeader) Hash() BlockHash {
	return BlockHash(Sha256d(h.Serialize()))
}

// DeserializeHeader100 decodes a fixed 100-byte block header.
func DeserializeHeader100(raw []byte) (BlockHeader, error) {
	if len(raw) != HeaderSize {
		return BlockHeader{}, ErrHeaderTruncated
	}
	r := NewReader(raw)
	var h BlockHeader
	h.Version = r.ReadInt32()
	h.PrevHash = r.ReadHash()
	h.MerkleRoot = r.ReadHash()
	h.Timestamp = r.ReadUint32()
	h.Bits = r.ReadUint32()
	h.Nonce = r.ReadUint32()
	copy(h.PowExtra[:], r.ReadBytes(20))
	if r.Err() != nil {
		return BlockHeader{}, r.Err()
	}
	return h, nil
}
