package encoding

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncUnitRoundTrip(t *testing.T) {
	tree := &Tree{
		Kind: KindNullable,
		Children: []*Tree{
			Leaf(KindPlain, []byte{1, 2, 3}),
			Leaf(KindBitPacked, nil),
		},
	}
	u := &EncUnit{
		Tree: tree,
		Buffers: [][]byte{
			{0xAA, 0xBB, 0xCC},
			{1, 2, 3, 4, 5, 6, 7},
		},
	}

	raw := u.Serialize()
	require.Equal(t, 0, len(raw)%Alignment, "serialized EncUnit must end 4-byte aligned")

	got, err := Deserialize(raw)
	require.NoError(t, err)
	require.Equal(t, u.Buffers, got.Buffers)
	require.Equal(t, tree.Kind, got.Tree.Kind)
	require.Len(t, got.Tree.Children, 2)
	require.Equal(t, []byte{1, 2, 3}, got.Tree.Children[0].Meta)
}

func TestEncUnitSequentialAlignment(t *testing.T) {
	u1 := &EncUnit{Tree: Leaf(KindPlain, nil), Buffers: [][]byte{{1, 2, 3}}}
	u2 := &EncUnit{Tree: Leaf(KindPlain, nil), Buffers: [][]byte{{1, 2, 3, 4, 5}}}

	var blob []byte
	offsets := []int{0}
	blob = append(blob, u1.Serialize()...)
	offsets = append(offsets, len(blob))
	blob = append(blob, u2.Serialize()...)
	offsets = append(offsets, len(blob))

	for _, off := range offsets {
		require.Equal(t, 0, off%Alignment)
	}
}

func TestDeserializeTruncated(t *testing.T) {
	u := &EncUnit{Tree: Leaf(KindPlain, nil), Buffers: [][]byte{{1, 2, 3, 4}}}
	raw := u.Serialize()
	_, err := Deserialize(raw[:len(raw)-6])
	require.Error(t, err)
}

func TestBufferOffsetsPrefixSum(t *testing.T) {
	offsets := BufferOffsets([]int{3, 5, 0, 2})
	require.Equal(t, []int{0, 3, 8, 8}, offsets)
}
