package wire

import (
	"errors"
	"io"
)

// ErrChecksumMismatch is returned when a payload's checksum does not match
// the frame header.
var ErrChecksumMismatch = errors.New("wire: checksum mismatch")

// ErrUnknownCommand is returned when a frame's command has no registered
// message type.
var ErrUnknownCommand = errors.New("wire: unknown command")

// EncodeMessage frames msg for transmission: 24-byte header immediately
// followed by its payload. Re-encoding a message decoded from this output
// yields byte-identical bytes (spec.md §8 round-trip property).
func EncodeMessage(magic uint32, msg Message) []byte {
	payload := msg.Encode()
	header := NewHeader(magic, msg.Command(), payload)
	out := make([]byte, 0, MessageHeaderSize+len(payload))
	out = append(out, SerializeHeader(header)...)
	out = append(out, payload...)
	return out
}

// ReadHeader reads exactly MessageHeaderSize bytes from r and decodes
// them. A short read or framing violation is always fatal to the
// connection (spec.md §7).
func ReadHeader(r io.Reader) (MessageHeader, error) {
	buf := make([]byte, MessageHeaderSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return MessageHeader{}, err
	}
	return DeserializeHeader(buf)
}

// ReadPayload reads exactly h.Length bytes and verifies the checksum.
func ReadPayload(r io.Reader, h MessageHeader) ([]byte, error) {
	payload := make([]byte, h.Length)
	if h.Length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return nil, err
		}
	}
	if ComputeChecksum(payload) != h.Checksum {
		return nil, ErrChecksumMismatch
	}
	return payload, nil
}

// DecodeMessage builds the concrete Message for h.Command and decodes
// payload into it. Unknown commands are not a framing error by
// themselves — callers (p2p.Conn's read loop) drop the frame and go on.
func DecodeMessage(h MessageHeader, payload []byte) (Message, error) {
	msg := NewMessage(h.Command)
	if msg == nil {
		return nil, ErrUnknownCommand
	}
	if err := msg.Decode(payload); err != nil {
		return nil, err
	}
	return msg, nil
}
