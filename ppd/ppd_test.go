package ppd

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

func scalarU32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func TestEqPushdown(t *testing.T) {
	values := []uint32{1, 2, 3, 2, 5}
	p := &Predicate{Op: Eq, Right: scalarU32(2)}
	out, err := EvalUint32(p, values)
	require.NoError(t, err)
	require.Equal(t, []bool{false, true, false, true, false}, out)
}

func TestSerializeRoundTrip(t *testing.T) {
	p := &Predicate{
		Op:    And,
		Left:  &Predicate{Op: Gt, Right: scalarU32(1)},
		Other: &Predicate{Op: Lt, Right: scalarU32(4)},
	}
	raw := p.Serialize()
	got, err := Deserialize(raw)
	require.NoError(t, err)

	out, err := EvalUint32(got, []uint32{0, 1, 2, 3, 4, 5})
	require.NoError(t, err)
	require.Equal(t, []bool{false, false, true, true, false, false}, out)
}

func TestBoolsToBitmap(t *testing.T) {
	bits := []bool{true, false, true, true, false, false, false, false, true}
	got := BoolsToBitmap(bits)
	require.Equal(t, []byte{0b00001101, 0b00000001}, got)
}
