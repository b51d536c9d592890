package wire

import (
	"crypto/sha256"
	"errors"
)

// ErrFrameTruncated is returned when fewer than MessageHeaderSize bytes are
// available.
var ErrFrameTruncated = errors.New("wire: truncated message header")

// ErrFrameOversize is returned when the header's length field exceeds
// MaxProtocolMessageLength.
var ErrFrameOversize = errors.New("wire: message length exceeds cap")

// ErrBadCommand is returned when the command field has non-null bytes
// after the first null terminator.
var ErrBadCommand = errors.New("wire: malformed command field")

// MessageHeader is the 24-byte frame prefix preceding every payload.
type MessageHeader struct {
	Magic    uint32
	Command  string // decoded, without null padding
	Length   uint32
	Checksum [4]byte
}

// Sha256d computes double SHA-256, the hash function used for message
// checksums (and, by convention in this chain, for header hashes).
func Sha256d(data []byte) [32]byte {
	first := sha256.Sum256(data)
	return sha256.Sum256(first[:])
}

// ComputeChecksum returns the first four bytes of Sha256d(payload).
func ComputeChecksum(payload []byte) [4]byte {
	h := Sha256d(payload)
	var out [4]byte
	copy(out[:], h[:4])
	return out
}

func encodeCommand(cmd string) [CommandSize]byte {
	var out [CommandSize]byte
	copy(out[:], cmd)
	return out
}

func decodeCommand(raw [CommandSize]byte) (string, error) {
	n := 0
	for n < CommandSize && raw[n] != 0 {
		n++
	}
	for i := n; i < CommandSize; i++ {
		if raw[i] != 0 {
			return "", ErrBadCommand
		}
	}
	return string(raw[:n]), nil
}

// SerializeHeader encodes h to exactly MessageHeaderSize bytes.
func SerializeHeader(h MessageHeader) []byte {
	w := NewWriter()
	w.WriteUint32(h.Magic)
	cmd := encodeCommand(h.Command)
	w.WriteBytes(cmd[:])
	w.WriteUint32(h.Length)
	w.WriteBytes(h.Checksum[:])
	return w.Bytes()
}

// DeserializeHeader decodes a MessageHeader from the front of b. It
// rejects frames shorter than MessageHeaderSize, over-long length fields,
// and command fields with garbage after the first null.
func DeserializeHeader(b []byte) (MessageHeader, error) {
	if len(b) < MessageHeaderSize {
		return MessageHeader{}, ErrFrameTruncated
	}
	r := NewReader(b[:MessageHeaderSize])
	magic := r.ReadUint32()
	var rawCmd [CommandSize]byte
	copy(rawCmd[:], r.ReadBytes(CommandSize))
	length := r.ReadUint32()
	var checksum [4]byte
	copy(checksum[:], r.ReadBytes(4))
	if r.Err() != nil {
		return MessageHeader{}, r.Err()
	}
	if length > MaxProtocolMessageLength {
		return MessageHeader{}, ErrFrameOversize
	}
	cmd, err := decodeCommand(rawCmd)
	if err != nil {
		return MessageHeader{}, err
	}
	return MessageHeader{Magic: magic, Command: cmd, Length: length, Checksum: checksum}, nil
}

// NewHeader builds a MessageHeader for payload, computing length and
// checksum.
func NewHeader(magic uint32, command string, payload []byte) MessageHeader {
	return MessageHeader{
		Magic:    magic,
		Command:  command,
		Length:   uint32(len(payload)),
		Checksum: ComputeChecksum(payload),
	}
}
