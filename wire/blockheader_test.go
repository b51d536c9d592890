package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBlockHeaderRoundTrip(t *testing.T) {
	h := BlockHeader{
		Version:    1,
		PrevHash:   BlockHash{1},
		MerkleRoot: BlockHash{2},
		Timestamp:  1700000000,
		Bits:       0x1d00ffff,
		Nonce:      12345,
		PowExtra:   [20]byte{9, 9, 9},
	}
	raw := h.Serialize()
	assert.Len(t, raw, HeaderSize)

	decoded, err := DeserializeHeader100(raw)
	require.NoError(t, err)
	assert.Equal(t, h, decoded)
}

func TestBlockHeaderRejectsWrongSize(t *testing.T) {
	_, err := DeserializeHeader100(make([]byte, HeaderSize-1))
	assert.ErrorIs(t, err, ErrHeaderTruncated)
}

func TestBlockHeaderHashIsDeterministic(t *testing.T) {
	h := BlockHeader{Version: 1, Bits: 1}
	h1 := h.Hash()
	h2 := h.Hash()
	assert.Equal(t, h1, h2)

	other := h
	other.Nonce = 1
	assert.NotEqual(t, h1, other.Hash())
}
