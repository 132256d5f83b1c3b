package dictionary

import (
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/require"
)

func stringArray(values ...string) arrow.Array {
	mem := memory.NewGoAllocator()
	b := array.NewStringBuilder(mem)
	defer b.Release()
	for _, v := range values {
		b.Append(v)
	}
	return b.NewStringArray()
}

func TestBuildSingleChunkDictionary(t *testing.T) {
	chunks := []ChunkRef{{Offset: 0, Size: 100, NumRows: 3}}
	positions := [][]int{{0}}
	decode := func(ref ChunkRef) (arrow.Array, error) {
		return stringArray("a", "b", "c"), nil
	}
	c, err := Build(positions, chunks, nil, decode)
	require.NoError(t, err)
	require.Equal(t, 3, c.Dict(0).Len())
	size, ok := c.DictSize(0)
	require.True(t, ok)
	require.Equal(t, 100, size)
}

func TestBuildTwoChunkDictionaryConcatenates(t *testing.T) {
	chunks := []ChunkRef{
		{Offset: 0, Size: 50, NumRows: 2},
		{Offset: 50, Size: 60, NumRows: 2},
	}
	positions := [][]int{{0, 1}}
	decode := func(ref ChunkRef) (arrow.Array, error) {
		if ref.Offset == 0 {
			return stringArray("a", "b"), nil
		}
		return stringArray("c", "d"), nil
	}
	c, err := Build(positions, chunks, nil, decode)
	require.NoError(t, err)
	got := c.Dict(0).(*array.String)
	require.Equal(t, 4, got.Len())
	require.Equal(t, "c", got.Value(2))
	size, ok := c.DictSize(0)
	require.True(t, ok)
	require.Equal(t, 110, size)
}

func TestBuildRejectsThreeChunkDictionary(t *testing.T) {
	chunks := []ChunkRef{{Size: 1}, {Size: 1}, {Size: 1}}
	positions := [][]int{{0, 1, 2}}
	decode := func(ref ChunkRef) (arrow.Array, error) { return stringArray("a"), nil }
	_, err := Build(positions, chunks, nil, decode)
	require.Error(t, err)
}

func TestDecodeIsCalledOncePerChunkReference(t *testing.T) {
	chunks := []ChunkRef{{Size: 1}}
	positions := [][]int{{0}, {0}}
	calls := 0
	decode := func(ref ChunkRef) (arrow.Array, error) {
		calls++
		return stringArray("x"), nil
	}
	_, err := Build(positions, chunks, nil, decode)
	require.NoError(t, err)
	require.Equal(t, 2, calls) // Build itself decodes per reference; Lazy is what dedups across callers.
}
