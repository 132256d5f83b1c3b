package checksum

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFinalizeIsChunkingIndependent(t *testing.T) {
	data := make([]byte, 10_000)
	for i := range data {
		data[i] = byte(i * 7)
	}

	whole := New()
	whole.Update(data)
	want := whole.Finalize()

	for _, splits := range [][]int{
		{0, len(data)},
		{0, 1, len(data)},
		{0, 3, 17, 4096, len(data)},
		{0, len(data) / 2, len(data)},
	} {
		d := New()
		for i := 1; i < len(splits); i++ {
			d.Update(data[splits[i-1]:splits[i]])
		}
		require.Equal(t, want, d.Finalize(), "splits=%v", splits)
	}
}

func TestResetReusesDigest(t *testing.T) {
	d := New()
	d.Update([]byte("hello"))
	first := d.Finalize()
	d.Reset()
	d.Update([]byte("hello"))
	require.Equal(t, first, d.Finalize())
}

func TestSum64MatchesStreaming(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	d := New()
	d.Update(data)
	require.Equal(t, Sum64(data), d.Finalize())
}
