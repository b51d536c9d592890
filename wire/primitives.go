package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
)

// ErrShortRead is latched into a Reader the first time a read would run
// past the end of the buffer. Every subsequent read on that Reader is a
// no-op returning zero values; callers must check Err() once at the end
// and treat the whole message as malformed if it is non-nil.
var ErrShortRead = errors.New("wire: short read")

// ErrOversizeContainer is returned when a length-prefixed container
// (ADDR/INV/locator/HEADERS count, or a string) exceeds its cap.
var ErrOversizeContainer = errors.New("wire: container length exceeds cap")

// Reader parses primitives out of a fixed byte slice, latching an error on
// the first short read so that a malformed message can't be partially
// processed.
type Reader struct {
	data []byte
	pos  int
	err  error
}

// NewReader wraps b for sequential decoding.
func NewReader(b []byte) *Reader {
	return &Reader{data: b}
}

// Err returns the first error encountered, or nil.
func (r *Reader) Err() error { return r.err }

// Remaining returns the number of unread bytes.
func (r *Reader) Remaining() int { return len(r.data) - r.pos }

func (r *Reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.pos+n > len(r.data) {
		r.fail(ErrShortRead)
		return nil
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b
}

func (r *Reader) ReadUint8() uint8 {
	b := r.take(1)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *Reader) ReadUint16() uint16 {
	b := r.take(2)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (r *Reader) ReadUint32() uint32 {
	b := r.take(4)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (r *Reader) ReadUint64() uint64 {
	b := r.take(8)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (r *Reader) ReadInt32() int32 { return int32(r.ReadUint32()) }
func (r *Reader) ReadInt64() int64 { return int64(r.ReadUint64()) }

func (r *Reader) ReadBool() bool {
	return r.ReadUint8() != 0
}

// ReadVarint reads a CompactSize, latching an error on non-canonical
// encodings exactly as DecodeVarint would.
func (r *Reader) ReadVarint() uint64 {
	if r.err != nil {
		return 0
	}
	v, n, err := DecodeVarint(r.data[r.pos:])
	if err != nil {
		r.fail(err)
		return 0
	}
	r.pos += n
	return v
}

// ReadVarintCapped reads a CompactSize container length and rejects it if
// it exceeds max (callers pass the message-specific cap, e.g. MaxInvSize).
func (r *Reader) ReadVarintCapped(max uint64) uint64 {
	v := r.ReadVarint()
	if r.err != nil {
		return 0
	}
	if v > max {
		r.fail(ErrOversizeContainer)
		return 0
	}
	return v
}

// ReadBytes reads exactly n bytes.
func (r *Reader) ReadBytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

// ReadHash reads a fixed 32-byte hash.
func (r *Reader) ReadHash() [BlockHashSize]byte {
	var h [BlockHashSize]byte
	b := r.take(BlockHashSize)
	if b != nil {
		copy(h[:], b)
	}
	return h
}

// ReadString reads a varint-length-prefixed UTF-8 string capped at
// maxLength bytes.
func (r *Reader) ReadString(maxLength uint64) string {
	n := r.ReadVarintCapped(maxLength)
	if r.err != nil {
		return ""
	}
	b := r.take(int(n))
	if b == nil {
		return ""
	}
	return string(b)
}

// Writer assembles a message payload in wire order.
type Writer struct {
	buf bytes.Buffer
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) Bytes() []byte { return w.buf.Bytes() }
func (w *Writer) Len() int      { return w.buf.Len() }

func (w *Writer) WriteUint8(v uint8) { w.buf.WriteByte(v) }

func (w *Writer) WriteUint16(v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteUint32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteUint64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf.Write(b[:])
}

func (w *Writer) WriteInt32(v int32) { w.WriteUint32(uint32(v)) }
func (w *Writer) WriteInt64(v int64) { w.WriteUint64(uint64(v)) }

func (w *Writer) WriteBool(v bool) {
	if v {
		w.buf.WriteByte(1)
	} else {
		w.buf.WriteByte(0)
	}
}

func (w *Writer) WriteVarint(v uint64) { w.buf.Write(EncodeVarint(v)) }

func (w *Writer) WriteBytes(b []byte) { w.buf.Write(b) }

func (w *Writer) WriteHash(h [BlockHashSize]byte) { w.buf.Write(h[:]) }

// WriteString writes a varint-length-prefixed string. Callers are
// responsible for ensuring len(s) respects the field's cap before calling;
// WriteString never truncates silently.
func (w *Writer) WriteString(s string) {
	w.WriteVarint(uint64(len(s)))
	w.buf.WriteString(s)
}
