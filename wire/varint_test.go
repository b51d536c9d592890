package wire

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVarintRoundTrip(t *testing.T) {
	cases := []uint64{0, 1, 0xfc, 0xfd, 0xffff, 0x10000, 0xffffffff, 0x100000000, 0xffffffffffffffff}
	for _, v := range cases {
		enc := EncodeVarint(v)
		assert.Equal(t, VarintSize(v), len(enc))
		got, n, err := DecodeVarint(enc)
		require.NoError(t, err)
		assert.Equal(t, v, got)
		assert.Equal(t, len(enc), n)
	}
}

func TestVarintRejectsNonCanonicalEncoding(t *testing.T) {
	// 5 fits in a single byte; encoding it with the 0xfd prefix is
	// non-canonical and must be rejected.
	_, _, err := DecodeVarint([]byte{0xfd, 0x05, 0x00})
	assert.ErrorIs(t, err, ErrNonCanonicalVarint)

	// 0xffff fits in the 0xfd form; encoding it with 0xfe is non-canonical.
	_, _, err = DecodeVarint([]byte{0xfe, 0xff, 0xff, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrNonCanonicalVarint)

	// 0xffffffff fits in the 0xfe form; encoding it with 0xff is non-canonical.
	_, _, err = DecodeVarint([]byte{0xff, 0xff, 0xff, 0xff, 0xff, 0x00, 0x00, 0x00, 0x00})
	assert.ErrorIs(t, err, ErrNonCanonicalVarint)
}

func TestVarintRejectsTruncatedInput(t *testing.T) {
	_, _, err := DecodeVarint([]byte{0xfd, 0x01})
	assert.ErrorIs(t, err, ErrVarintTruncated)

	_, _, err = DecodeVarint(nil)
	assert.ErrorIs(t, err, ErrVarintTruncated)
}
