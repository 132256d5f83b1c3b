package footer

import (
	"github.com/f3db/f3/chunk"
	"github.com/f3db/f3/ferrors"
	"github.com/f3db/f3/tagbin"
)

// RowGroup indexes one row group: its row count and the per-leaf-column
// chunk metadata, in leaf-column (projection) order.
type RowGroup struct {
	RowCount int
	Columns  []chunk.Metadata
}

// DictionaryEntry is one slot in the shared-dictionary table: the ordered
// chunk(s) holding the dictionary's values (capped at two per C6) and the
// IPC-serialized single-field schema describing the element type.
type DictionaryEntry struct {
	ElementSchemaIPC []byte
	Chunks           []chunk.Metadata
}

// WasmBinaryRef locates one embedded custom-decoder module within the file.
type WasmBinaryRef struct {
	WasmID string
	Offset uint64
	Size   uint64
}

// EncodingVersion records the semantic version of one encoding family, so a
// reader can refuse a file whose encoder is newer than it understands.
type EncodingVersion struct {
	Family string
	Major  uint16
	Minor  uint16
}

// Footer is the complete metadata region: schema, row-group index, and the
// optional auxiliary tables (shared dictionaries, embedded WASM binaries,
// per-family encoding versions).
type Footer struct {
	SchemaIPC        []byte
	RowGroups        []RowGroup
	Dictionaries     []DictionaryEntry
	WasmBinaries     []WasmBinaryRef
	EncodingVersions []EncodingVersion
}

const (
	fieldSchemaIPC        uint16 = 1
	fieldRowGroups        uint16 = 2
	fieldDictionaries     uint16 = 3
	fieldWasmBinaries     uint16 = 4
	fieldEncodingVersions uint16 = 5

	fieldRGRowCount uint16 = 1
	fieldRGColumns  uint16 = 2

	fieldDictElementSchema uint16 = 1
	fieldDictChunks        uint16 = 2

	fieldWasmID     uint16 = 1
	fieldWasmOffset uint16 = 2
	fieldWasmSize   uint16 = 3

	fieldEncFamily uint16 = 1
	fieldEncMajor  uint16 = 2
	fieldEncMinor  uint16 = 3
)

// Serialize encodes f as the footer's flat metadata bytes.
func (f Footer) Serialize() []byte {
	w := tagbin.NewWriter()
	w.PutBytes(fieldSchemaIPC, f.SchemaIPC)

	rgs := make([]*tagbin.Writer, len(f.RowGroups))
	for i, rg := range f.RowGroups {
		rw := tagbin.NewWriter()
		rw.PutUint32(fieldRGRowCount, uint32(rg.RowCount))
		cols := make([]*tagbin.Writer, len(rg.Columns))
		for j, col := range rg.Columns {
			cols[j] = col.ToWriter()
		}
		rw.PutRecordList(fieldRGColumns, cols)
		rgs[i] = rw
	}
	w.PutRecordList(fieldRowGroups, rgs)

	if len(f.Dictionaries) > 0 {
		dicts := make([]*tagbin.Writer, len(f.Dictionaries))
		for i, d := range f.Dictionaries {
			dw := tagbin.NewWriter()
			dw.PutBytes(fieldDictElementSchema, d.ElementSchemaIPC)
			chunks := make([]*tagbin.Writer, len(d.Chunks))
			for j, c := range d.Chunks {
				chunks[j] = c.ToWriter()
			}
			dw.PutRecordList(fieldDictChunks, chunks)
			dicts[i] = dw
		}
		w.PutRecordList(fieldDictionaries, dicts)
	}

	if len(f.WasmBinaries) > 0 {
		wasms := make([]*tagbin.Writer, len(f.WasmBinaries))
		for i, wb := range f.WasmBinaries {
			ww := tagbin.NewWriter()
			ww.PutString(fieldWasmID, wb.WasmID)
			ww.PutUint64(fieldWasmOffset, wb.Offset)
			ww.PutUint64(fieldWasmSize, wb.Size)
			wasms[i] = ww
		}
		w.PutRecordList(fieldWasmBinaries, wasms)
	}

	if len(f.EncodingVersions) > 0 {
		vers := make([]*tagbin.Writer, len(f.EncodingVersions))
		for i, v := range f.EncodingVersions {
			vw := tagbin.NewWriter()
			vw.PutString(fieldEncFamily, v.Family)
			vw.PutUint32(fieldEncMajor, uint32(v.Major))
			vw.PutUint32(fieldEncMinor, uint32(v.Minor))
			vers[i] = vw
		}
		w.PutRecordList(fieldEncodingVersions, vers)
	}

	return w.Bytes()
}

// Deserialize reverses Serialize, failing with ferrors.ParseError on
// truncated or malformed input. Errors in the top-level record (including
// any truncation of it) carry the message "Unable to get root as footer";
// errors inside a nested row-group or table record are returned as-is.
func Deserialize(buf []byte) (Footer, error) {
	fields, err := tagbin.Fields(buf)
	if err != nil {
		return Footer{}, ferrors.ParseErrorf("footer: Unable to get root as footer: %s", err)
	}

	schemaF, ok := fields[fieldSchemaIPC]
	if !ok {
		return Footer{}, ferrors.ParseErrorf("footer: Unable to get root as footer: missing schema field")
	}
	f := Footer{SchemaIPC: schemaF.Bytes}

	if rgField, ok := fields[fieldRowGroups]; ok {
		f.RowGroups = make([]RowGroup, len(rgField.Records))
		for i, rec := range rgField.Records {
			rg, err := rowGroupFromBytes(rec)
			if err != nil {
				return Footer{}, err
			}
			f.RowGroups[i] = rg
		}
	}

	if dField, ok := fields[fieldDictionaries]; ok {
		f.Dictionaries = make([]DictionaryEntry, len(dField.Records))
		for i, rec := range dField.Records {
			d, err := dictionaryEntryFromBytes(rec)
			if err != nil {
				return Footer{}, err
			}
			f.Dictionaries[i] = d
		}
	}

	if wField, ok := fields[fieldWasmBinaries]; ok {
		f.WasmBinaries = make([]WasmBinaryRef, len(wField.Records))
		for i, rec := range wField.Records {
			wb, err := wasmBinaryRefFromBytes(rec)
			if err != nil {
				return Footer{}, err
			}
			f.WasmBinaries[i] = wb
		}
	}

	if vField, ok := fields[fieldEncodingVersions]; ok {
		f.EncodingVersions = make([]EncodingVersion, len(vField.Records))
		for i, rec := range vField.Records {
			v, err := encodingVersionFromBytes(rec)
			if err != nil {
				return Footer{}, err
			}
			f.EncodingVersions[i] = v
		}
	}

	return f, nil
}

func rowGroupFromBytes(buf []byte) (RowGroup, error) {
	fields, err := tagbin.Fields(buf)
	if err != nil {
		return RowGroup{}, err
	}
	rowCountF, ok := fields[fieldRGRowCount]
	if !ok {
		return RowGroup{}, ferrors.ParseErrorf("footer: row group missing row count field")
	}
	rg := RowGroup{RowCount: int(rowCountF.Varint)}
	if colsF, ok := fields[fieldRGColumns]; ok {
		rg.Columns = make([]chunk.Metadata, len(colsF.Records))
		for i, rec := range colsF.Records {
			col, err := chunk.MetadataFromBytes(rec)
			if err != nil {
				return RowGroup{}, err
			}
			rg.Columns[i] = col
		}
	}
	return rg, nil
}

func dictionaryEntryFromBytes(buf []byte) (DictionaryEntry, error) {
	fields, err := tagbin.Fields(buf)
	if err != nil {
		return DictionaryEntry{}, err
	}
	d := DictionaryEntry{}
	if f, ok := fields[fieldDictElementSchema]; ok {
		d.ElementSchemaIPC = f.Bytes
	}
	if f, ok := fields[fieldDictChunks]; ok {
		d.Chunks = make([]chunk.Metadata, len(f.Records))
		for i, rec := range f.Records {
			c, err := chunk.MetadataFromBytes(rec)
			if err != nil {
				return DictionaryEntry{}, err
			}
			d.Chunks[i] = c
		}
	}
	return d, nil
}

func wasmBinaryRefFromBytes(buf []byte) (WasmBinaryRef, error) {
	fields, err := tagbin.Fields(buf)
	if err != nil {
		return WasmBinaryRef{}, err
	}
	wb := WasmBinaryRef{}
	if f, ok := fields[fieldWasmID]; ok {
		wb.WasmID = string(f.Bytes)
	}
	if f, ok := fields[fieldWasmOffset]; ok {
		wb.Offset = f.Varint
	}
	if f, ok := fields[fieldWasmSize]; ok {
		wb.Size = f.Varint
	}
	return wb, nil
}

func encodingVersionFromBytes(buf []byte) (EncodingVersion, error) {
	fields, err := tagbin.Fields(buf)
	if err != nil {
		return EncodingVersion{}, err
	}
	v := EncodingVersion{}
	if f, ok := fields[fieldEncFamily]; ok {
		v.Family = string(f.Bytes)
	}
	if f, ok := fields[fieldEncMajor]; ok {
		v.Major = uint16(f.Varint)
	}
	if f, ok := fields[fieldEncMinor]; ok {
		v.Minor = uint16(f.Varint)
	}
	return v, nil
}
