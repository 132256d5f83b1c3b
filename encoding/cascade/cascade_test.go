package cascade

import (
	"encoding/binary"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeBytesRoundTrip(t *testing.T) {
	raw := make([]byte, 10000)
	for i := range raw {
		raw[i] = byte(i % 7)
	}
	tree, buf := EncodeBytes(raw)
	got, err := DecodeBytes(tree, buf)
	require.NoError(t, err)
	require.Equal(t, raw, got)
}

func TestEncodeStringsPlainRoundTrip(t *testing.T) {
	var values [][]byte
	for i := 0; i < 1000; i++ {
		values = append(values, []byte(fmt.Sprintf("unique-value-%d", i)))
	}
	tree, bufs := EncodeStrings(values)
	require.Equal(t, "list", tree.Kind.String())
	out, err := DecodeStrings(tree, bufs)
	require.NoError(t, err)
	require.Equal(t, values, out)
}

func TestEncodeStringsDictionaryRoundTrip(t *testing.T) {
	domain := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	var values [][]byte
	for i := 0; i < 1000; i++ {
		values = append(values, domain[i%len(domain)])
	}
	tree, bufs := EncodeStrings(values)
	require.Equal(t, "dictionary", tree.Kind.String())
	out, err := DecodeStrings(tree, bufs)
	require.NoError(t, err)
	require.Equal(t, values, out)
}

func TestUint32Helpers(t *testing.T) {
	require.Equal(t, uint32(42), binary.LittleEndian.Uint32(encodeUint32(42)))
}
