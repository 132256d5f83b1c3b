package chunk

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/f3db/f3/encoding"
	"github.com/f3db/f3/ferrors"
	"github.com/f3db/f3/ioreader"
)

func sampleUnits() []*encoding.EncUnit {
	return []*encoding.EncUnit{
		{
			Tree:    encoding.Leaf(encoding.KindPlain, nil),
			Buffers: [][]byte{[]byte("row-group-one-payload")},
			NumRows: 3,
		},
		{
			Tree:    encoding.Leaf(encoding.KindPlain, nil),
			Buffers: [][]byte{[]byte("row-group-two-payload-longer")},
			NumRows: 5,
		},
	}
}

func assembleAndReload(t *testing.T, opts AssembleOptions) []*encoding.EncUnit {
	t.Helper()
	asm, err := Assemble(sampleUnits(), opts)
	require.NoError(t, err)

	// Place the assembled bytes at a nonzero offset so Read must honor
	// Metadata.Offset rather than assuming the chunk starts the file.
	const pad = 64
	backing := make([]byte, pad+len(asm.Bytes))
	copy(backing[pad:], asm.Bytes)
	asm.Meta.Offset = uint64(pad)

	got, err := Read(ioreader.NewInMemory(backing), asm.Meta)
	require.NoError(t, err)
	return got
}

func requireUnitsEqual(t *testing.T, want, got []*encoding.EncUnit) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		require.Equal(t, want[i].NumRows, got[i].NumRows)
		require.Equal(t, want[i].Buffers, got[i].Buffers)
		require.Equal(t, want[i].Tree.Kind, got[i].Tree.Kind)
	}
}

func TestAssembleReadRoundTripUncompressed(t *testing.T) {
	got := assembleAndReload(t, AssembleOptions{Compression: CompressionNone})
	requireUnitsEqual(t, sampleUnits(), got)
}

func TestAssembleReadRoundTripLZ4(t *testing.T) {
	got := assembleAndReload(t, AssembleOptions{Compression: CompressionLZ4})
	requireUnitsEqual(t, sampleUnits(), got)
}

func TestAssembleReadRoundTripZstd(t *testing.T) {
	got := assembleAndReload(t, AssembleOptions{Compression: CompressionZstd})
	requireUnitsEqual(t, sampleUnits(), got)
}

func TestAssembleReadRoundTripChecksummed(t *testing.T) {
	got := assembleAndReload(t, AssembleOptions{Compression: CompressionZstd, EnableChecksum: true})
	requireUnitsEqual(t, sampleUnits(), got)
}

// TestCorruptedChecksumRejected overwrites bytes within a checksummed
// chunk's region and expects Read to fail with a General "Checksum
// verification failed" error rather than silently returning garbage rows.
func TestCorruptedChecksumRejected(t *testing.T) {
	asm, err := Assemble(sampleUnits(), AssembleOptions{EnableChecksum: true})
	require.NoError(t, err)

	const offsetInFile = 100
	backing := make([]byte, offsetInFile+len(asm.Bytes)+100)
	copy(backing[offsetInFile:], asm.Bytes)
	asm.Meta.Offset = uint64(offsetInFile)

	// Flip bytes within the chunk's own region without changing its length.
	for i := offsetInFile; i < offsetInFile+len(asm.Bytes) && i < offsetInFile+8; i++ {
		backing[i] ^= 0xFF
	}

	_, err = Read(ioreader.NewInMemory(backing), asm.Meta)
	require.Error(t, err)
	require.True(t, ferrors.Is(err, ferrors.General))
	require.Contains(t, err.Error(), "Checksum verification failed")
}

func TestReadRejectsOutOfBoundsEncUnit(t *testing.T) {
	asm, err := Assemble(sampleUnits(), AssembleOptions{Compression: CompressionNone})
	require.NoError(t, err)
	asm.Meta.EncUnits[len(asm.Meta.EncUnits)-1].Size += 1000

	_, err = Read(ioreader.NewInMemory(asm.Bytes), asm.Meta)
	require.Error(t, err)
	require.True(t, ferrors.Is(err, ferrors.ParseError))
}
