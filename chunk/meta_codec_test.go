package chunk

import (
	"testing"

	"github.com/f3db/f3/checksum"
	"github.com/stretchr/testify/require"
)

func TestMetadataRoundTrip(t *testing.T) {
	m := Metadata{
		Offset:       1024,
		Size:         2048,
		RowCount:     65536,
		Compression:  CompressionZstd,
		ChecksumType: checksum.TypeXXHash,
		HasChecksum:  true,
		Checksum:     0xDEADBEEF,
		DictionaryRef: &DictionaryRef{
			DictionaryIndex: 3,
		},
		EncUnits: []EncUnitRef{
			{Offset: 0, Size: 100, NumRows: 65536},
			{Offset: 100, Size: 40, NumRows: 1},
		},
	}
	buf := m.ToWriter().Bytes()
	got, err := MetadataFromBytes(buf)
	require.NoError(t, err)
	require.Equal(t, m, got)
}

func TestMetadataWithoutChecksumOrDictionary(t *testing.T) {
	m := Metadata{
		Offset:   0,
		Size:     10,
		RowCount: 5,
		EncUnits: []EncUnitRef{{Offset: 0, Size: 10, NumRows: 5}},
	}
	buf := m.ToWriter().Bytes()
	got, err := MetadataFromBytes(buf)
	require.NoError(t, err)
	require.False(t, got.HasChecksum)
	require.Nil(t, got.DictionaryRef)
	require.Equal(t, m.EncUnits, got.EncUnits)
}
