package tagbin

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/f3db/f3/ferrors"
)

func TestRoundTripScalarFields(t *testing.T) {
	w := NewWriter()
	w.PutUint32(1, 42)
	w.PutString(2, "hello")
	w.PutBytes(3, []byte{1, 2, 3})

	fields, err := Fields(w.Bytes())
	require.NoError(t, err)
	require.Equal(t, uint64(42), fields[1].Varint)
	require.Equal(t, "hello", string(fields[2].Bytes))
	require.Equal(t, []byte{1, 2, 3}, fields[3].Bytes)
}

func TestRoundTripNestedRecords(t *testing.T) {
	child := NewWriter()
	child.PutUint32(1, 7)

	parent := NewWriter()
	parent.PutRecord(10, child)

	fields, err := Fields(parent.Bytes())
	require.NoError(t, err)
	nested, err := Fields(fields[10].Bytes)
	require.NoError(t, err)
	require.Equal(t, uint64(7), nested[1].Varint)
}

func TestRecordList(t *testing.T) {
	var list []*Writer
	for i := 0; i < 3; i++ {
		w := NewWriter()
		w.PutUint32(1, uint32(i))
		list = append(list, w)
	}
	parent := NewWriter()
	parent.PutRecordList(5, list)

	fields, err := Fields(parent.Bytes())
	require.NoError(t, err)
	require.Len(t, fields[5].Records, 3)
	for i, rec := range fields[5].Records {
		inner, err := Fields(rec)
		require.NoError(t, err)
		require.Equal(t, uint64(i), inner[1].Varint)
	}
}

func TestTruncatedInputIsParseError(t *testing.T) {
	w := NewWriter()
	w.PutUint32(1, 42)
	b := w.Bytes()

	_, err := Fields(b[:len(b)-2])
	require.Error(t, err)
	require.True(t, ferrors.Is(err, ferrors.ParseError))
}
