package encoding

import (
	"testing"

	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeUint32_S1(t *testing.T) {
	mem := memory.NewGoAllocator()
	b := array.NewUint32Builder(mem)
	defer b.Release()
	n := 65536
	for i := 0; i < n; i++ {
		b.Append(uint32(i % 128))
	}
	arr := b.NewUint32Array()
	defer arr.Release()

	u, err := EncodeColumn(arr, Options{})
	require.NoError(t, err)
	require.Equal(t, KindBitPacked, u.Tree.Kind)

	out, err := DecodeColumn(u, arr.DataType(), n, Options{})
	require.NoError(t, err)
	defer out.Release()

	got := out.(*array.Uint32)
	for i := 0; i < n; i++ {
		require.Equal(t, uint32(i%128), got.Value(i))
	}
}

func TestEncodeDecodeNullableInt32_S2(t *testing.T) {
	mem := memory.NewGoAllocator()
	b := array.NewInt32Builder(mem)
	defer b.Release()
	n := 65536
	for i := 0; i < n; i++ {
		if i == 13 {
			b.AppendNull()
			continue
		}
		b.Append(int32(i + 1))
	}
	arr := b.NewInt32Array()
	defer arr.Release()

	u, err := EncodeColumn(arr, Options{})
	require.NoError(t, err)
	require.Equal(t, KindNullable, u.Tree.Kind)

	out, err := DecodeColumn(u, arr.DataType(), n, Options{})
	require.NoError(t, err)
	defer out.Release()

	got := out.(*array.Int32)
	require.True(t, got.IsNull(13))
	for i := 0; i < n; i++ {
		if i == 13 {
			continue
		}
		require.True(t, got.IsValid(i))
		require.Equal(t, int32(i+1), got.Value(i))
	}
}

func TestEncodeDecodeString(t *testing.T) {
	mem := memory.NewGoAllocator()
	b := array.NewStringBuilder(mem)
	defer b.Release()
	words := []string{"alpha", "beta", "gamma", "delta", "alpha", "beta"}
	for _, w := range words {
		b.Append(w)
	}
	arr := b.NewStringArray()
	defer arr.Release()

	u, err := EncodeColumn(arr, Options{})
	require.NoError(t, err)

	out, err := DecodeColumn(u, arr.DataType(), len(words), Options{})
	require.NoError(t, err)
	defer out.Release()

	got := out.(*array.String)
	for i, w := range words {
		require.Equal(t, w, got.Value(i))
	}
}
