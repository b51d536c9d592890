package wire

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageRoundTrip(t *testing.T) {
	msgs := []Message{
		&VersionMessage{Version: ProtocolVersion, Services: SFNodeNetwork, Nonce: 1234, UserAgent: "/headernet:0.1.0/", StartHeight: 42},
		&VerackMessage{},
		&GetAddrMessage{},
		&PingMessage{Nonce: 99},
		&PongMessage{Nonce: 99},
		&AddrMessage{Addresses: []TimestampedAddress{{Timestamp: 1, Addr: NetAddress{Services: SFNodeNetwork, Port: 8733}}}},
		&InvMessage{Items: []InventoryVector{{Type: InvTypeBlock, Hash: BlockHash{1, 2, 3}}}},
		&GetHeadersMessage{Version: ProtocolVersion, Locator: []BlockHash{{9}}, HashStop: BlockHash{}},
		&HeadersMessage{Headers: []BlockHeader{{Version: 1, Bits: 7}}},
	}

	for _, m := range msgs {
		frame := EncodeMessage(MagicRegtest, m)

		hdr, err := ReadHeader(bytes.NewReader(frame))
		require.NoError(t, err)
		assert.Equal(t, m.Command(), hdr.Command)

		payload, err := ReadPayload(bytes.NewReader(frame[MessageHeaderSize:]), hdr)
		require.NoError(t, err)

		decoded, err := DecodeMessage(hdr, payload)
		require.NoError(t, err)
		assert.Equal(t, m, decoded)

		// Re-encoding the decoded message must produce byte-identical output.
		assert.Equal(t, frame, EncodeMessage(MagicRegtest, decoded))
	}
}

func TestReadPayloadRejectsChecksumMismatch(t *testing.T) {
	m := &PingMessage{Nonce: 1}
	frame := EncodeMessage(MagicRegtest, m)
	// Corrupt one payload byte without updating the checksum.
	frame[len(frame)-1] ^= 0xff

	hdr, err := ReadHeader(bytes.NewReader(frame))
	require.NoError(t, err)
	_, err = ReadPayload(bytes.NewReader(frame[MessageHeaderSize:]), hdr)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}

func TestDecodeMessageRejectsUnknownCommand(t *testing.T) {
	h := NewHeader(MagicRegtest, "bogus", nil)
	_, err := DecodeMessage(h, nil)
	assert.ErrorIs(t, err, ErrUnknownCommand)
}
