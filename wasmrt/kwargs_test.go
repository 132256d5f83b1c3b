package wasmrt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKWArgsRoundTrip(t *testing.T) {
	args := []KWArg{
		{Key: []byte("ppd"), Word: []byte{0x01, 0x02, 0x03}},
		{Key: []byte("partial_decode"), Word: []byte{0x01}},
	}
	buf := EncodeKWArgs(args)
	got, err := DecodeKWArgs(buf)
	require.NoError(t, err)
	require.Equal(t, args, got)
}

func TestKWArgsEmpty(t *testing.T) {
	buf := EncodeKWArgs(nil)
	got, err := DecodeKWArgs(buf)
	require.NoError(t, err)
	require.Empty(t, got)
}

func TestKWArgsTruncated(t *testing.T) {
	_, err := DecodeKWArgs([]byte{1, 0})
	require.Error(t, err)
}
