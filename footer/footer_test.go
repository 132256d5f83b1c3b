package footer

import (
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/stretchr/testify/require"

	"github.com/f3db/f3/chunk"
	"github.com/f3db/f3/ferrors"
)

func sampleSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "a", Type: arrow.PrimitiveTypes.Uint32},
		{Name: "b", Type: arrow.BinaryTypes.String, Nullable: true},
	}, nil)
}

func TestSchemaIPCRoundTrip(t *testing.T) {
	schema := sampleSchema()
	buf, err := SchemaToIPC(schema)
	require.NoError(t, err)
	require.NotEmpty(t, buf)

	got, err := SchemaFromIPC(buf)
	require.NoError(t, err)
	require.True(t, schema.Equal(got))
}

func TestFooterRoundTrip(t *testing.T) {
	schema := sampleSchema()
	schemaIPC, err := SchemaToIPC(schema)
	require.NoError(t, err)

	f := Footer{
		SchemaIPC: schemaIPC,
		RowGroups: []RowGroup{
			{
				RowCount: 65536,
				Columns: []chunk.Metadata{
					{Offset: 0, Size: 1000, RowCount: 65536, EncUnits: []chunk.EncUnitRef{{Offset: 0, Size: 1000, NumRows: 65536}}},
					{Offset: 1000, Size: 500, RowCount: 65536, EncUnits: []chunk.EncUnitRef{{Offset: 0, Size: 500, NumRows: 65536}}},
				},
			},
		},
		Dictionaries: []DictionaryEntry{
			{
				ElementSchemaIPC: []byte("dict-schema"),
				Chunks: []chunk.Metadata{
					{Offset: 2000, Size: 200, RowCount: 100, EncUnits: []chunk.EncUnitRef{{Offset: 0, Size: 200, NumRows: 100}}},
				},
			},
		},
		WasmBinaries: []WasmBinaryRef{
			{WasmID: "custom.delta", Offset: 5000, Size: 4096},
		},
		EncodingVersions: []EncodingVersion{
			{Family: "bitpacked", Major: 1, Minor: 0},
			{Family: "cascade", Major: 1, Minor: 2},
		},
	}

	buf := f.Serialize()
	got, err := Deserialize(buf)
	require.NoError(t, err)
	require.Equal(t, f, got)
}

func TestFooterDeserializeRejectsMissingSchema(t *testing.T) {
	_, err := Deserialize(nil)
	require.Error(t, err)
	require.True(t, ferrors.Is(err, ferrors.ParseError))
}

// TestCorruptedFooterRejected mirrors overwriting bytes near the end of the
// metadata/footer region: a footer buffer with its tail truncated mid
// record must fail to parse rather than silently returning partial data.
func TestCorruptedFooterRejected(t *testing.T) {
	schemaIPC, err := SchemaToIPC(sampleSchema())
	require.NoError(t, err)
	f := Footer{
		SchemaIPC: schemaIPC,
		RowGroups: []RowGroup{{RowCount: 10, Columns: []chunk.Metadata{
			{Offset: 0, Size: 10, RowCount: 10, EncUnits: []chunk.EncUnitRef{{Offset: 0, Size: 10, NumRows: 10}}},
		}}},
	}
	buf := f.Serialize()
	truncated := buf[:len(buf)-8]

	_, err = Deserialize(truncated)
	require.Error(t, err)
	require.Contains(t, err.Error(), "Unable to get root as footer")
}

func TestPostscriptRoundTrip(t *testing.T) {
	p := Postscript{
		MetadataSize:   100,
		FooterSize:     200,
		Compression:    1,
		ChecksumType:   0,
		FileChecksum:   0xAAAABBBB,
		SchemaChecksum: 0xCCCCDDDD,
		Major:          CurrentMajor,
		Minor:          CurrentMinor,
	}
	buf := p.Marshal()
	require.Len(t, buf, PostscriptSize)
	require.Equal(t, byte('F'), buf[30])
	require.Equal(t, byte('3'), buf[31])

	got, err := UnmarshalPostscript(buf)
	require.NoError(t, err)
	require.Equal(t, p, got)
}

func TestPostscriptRejectsBadMagic(t *testing.T) {
	p := Postscript{Major: CurrentMajor}
	buf := p.Marshal()
	buf[31] = 'X'

	_, err := UnmarshalPostscript(buf)
	require.Error(t, err)
	require.True(t, ferrors.Is(err, ferrors.ParseError))
}

func TestPostscriptRejectsWrongMajorVersion(t *testing.T) {
	p := Postscript{Major: CurrentMajor + 1}
	buf := p.Marshal()

	_, err := UnmarshalPostscript(buf)
	require.Error(t, err)
	require.True(t, ferrors.Is(err, ferrors.ParseError))
}

func TestPostscriptRejectsWrongLength(t *testing.T) {
	_, err := UnmarshalPostscript(make([]byte, 10))
	require.Error(t, err)
}
