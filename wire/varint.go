package wire

import (
	"encoding/binary"
	"errors"
)

// ErrNonCanonicalVarint is returned when a CompactSize encoding uses more
// bytes than the minimal canonical form for its value.
var ErrNonCanonicalVarint = errors.New("wire: non-canonical varint encoding")

// ErrVarintTruncated is returned when there are not enough bytes to decode
// the prefix byte's indicated width.
var ErrVarintTruncated = errors.New("wire: truncated varint")

// EncodeVarint returns the canonical CompactSize encoding of v: the
// shortest of the four forms that can represent v.
func EncodeVarint(v uint64) []byte {
	switch {
	case v < 0xfd:
		return []byte{byte(v)}
	case v <= 0xffff:
		b := make([]byte, 3)
		b[0] = 0xfd
		binary.LittleEndian.PutUint16(b[1:], uint16(v))
		return b
	case v <= 0xffffffff:
		b := make([]byte, 5)
		b[0] = 0xfe
		binary.LittleEndian.PutUint32(b[1:], uint32(v))
		return b
	default:
		b := make([]byte, 9)
		b[0] = 0xff
		binary.LittleEndian.PutUint64(b[1:], v)
		return b
	}
}

// VarintSize returns the length in bytes of the canonical encoding of v,
// without allocating.
func VarintSize(v uint64) int {
	switch {
	case v < 0xfd:
		return 1
	case v <= 0xffff:
		return 3
	case v <= 0xffffffff:
		return 5
	default:
		return 9
	}
}

// DecodeVarint decodes a CompactSize from the front of b. It rejects any
// encoding whose prefix claims more bytes than the canonical form for the
// resulting value requires — e.g. 0xfd 0x05 0x00 decodes to 5, but 5's
// canonical encoding is a single byte, so this is rejected rather than
// silently accepted.
func DecodeVarint(b []byte) (value uint64, consumed int, err error) {
	if len(b) == 0 {
		return 0, 0, ErrVarintTruncated
	}
	prefix := b[0]
	switch {
	case prefix < 0xfd:
		return uint64(prefix), 1, nil
	case prefix == 0xfd:
		if len(b) < 3 {
			return 0, 0, ErrVarintTruncated
		}
		v := uint64(binary.LittleEndian.Uint16(b[1:3]))
		if v < 0xfd {
			return 0, 0, ErrNonCanonicalVarint
		}
		return v, 3, nil
	case prefix == 0xfe:
		if len(b) < 5 {
			return 0, 0, ErrVarintTruncated
		}
		v := uint64(binary.LittleEndian.Uint32(b[1:5]))
		if v <= 0xffff {
			return 0, 0, ErrNonCanonicalVarint
		}
		return v, 5, nil
	default: // 0xff
		if len(b) < 9 {
			return 0, 0, ErrVarintTruncated
		}
		v := binary.LittleEndian.Uint64(b[1:9])
		if v <= 0xffffffff {
			return 0, 0, ErrNonCanonicalVarint
		}
		return v, 9, nil
	}
}
