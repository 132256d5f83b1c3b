package bitpacked

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRoundTrip_S1(t *testing.T) {
	n := 65536
	values := make([]uint32, n)
	for i := range values {
		values[i] = uint32(i % 128)
	}

	meta, packed := Encode(values)
	require.Equal(t, uint32(n), meta.NumValues)
	for _, w := range meta.BitWidthPerBlock {
		require.Equal(t, uint8(7), w, "value range [0,128) should need 7 bits")
	}

	out, err := Decode(meta, packed)
	require.NoError(t, err)
	require.Equal(t, values, out)
}

func TestMetadataRoundTrip(t *testing.T) {
	values := make([]uint32, 3000)
	for i := range values {
		values[i] = uint32(i)
	}
	meta, _ := Encode(values)
	raw := meta.Encode()
	got, err := DecodeMetadata(raw)
	require.NoError(t, err)
	require.Equal(t, meta, got)
}

func TestRemainderMiniBlock(t *testing.T) {
	// Not a multiple of MiniBlockSize: last mini-block holds the remainder.
	values := make([]uint32, MiniBlockSize*2+37)
	for i := range values {
		values[i] = uint32(i % 5)
	}
	meta, packed := Encode(values)
	require.Len(t, meta.BitWidthPerBlock, 3)
	out, err := Decode(meta, packed)
	require.NoError(t, err)
	require.Equal(t, values, out)
}

func TestAllZeros(t *testing.T) {
	values := make([]uint32, MiniBlockSize)
	meta, packed := Encode(values)
	require.Equal(t, uint8(0), meta.BitWidthPerBlock[0])
	out, err := Decode(meta, packed)
	require.NoError(t, err)
	require.Equal(t, values, out)
}

func TestRejectsOversizedBitWidth(t *testing.T) {
	meta := &Metadata{
		NumValues:        1,
		MiniBlockOffsets: []uint32{0, 1},
		BitWidthPerBlock: []uint8{33},
	}
	_, err := Decode(meta, []uint32{0})
	require.Error(t, err)
}
