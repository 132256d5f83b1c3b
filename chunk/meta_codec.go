package chunk

import (
	"github.com/f3db/f3/checksum"
	"github.com/f3db/f3/ferrors"
	"github.com/f3db/f3/tagbin"
)

const (
	fieldOffset          uint16 = 1
	fieldSize            uint16 = 2
	fieldRowCount        uint16 = 3
	fieldCompression     uint16 = 4
	fieldChecksumType    uint16 = 5
	fieldChecksum        uint16 = 6
	fieldDictionaryIndex uint16 = 7
	fieldEncUnits        uint16 = 8

	fieldEncUnitOffset  uint16 = 1
	fieldEncUnitSize    uint16 = 2
	fieldEncUnitNumRows uint16 = 3
)

// ToWriter serializes m as one tagbin record, as stored in the per-row-group
// column-metadata list of the footer.
func (m Metadata) ToWriter() *tagbin.Writer {
	w := tagbin.NewWriter()
	w.PutUint64(fieldOffset, m.Offset)
	w.PutUint64(fieldSize, m.Size)
	w.PutUint32(fieldRowCount, uint32(m.RowCount))
	w.PutUint32(fieldCompression, uint32(m.Compression))
	w.PutUint32(fieldChecksumType, uint32(m.ChecksumType))
	if m.HasChecksum {
		w.PutUint64(fieldChecksum, m.Checksum)
	}
	if m.DictionaryRef != nil {
		w.PutUint32(fieldDictionaryIndex, uint32(m.DictionaryRef.DictionaryIndex))
	}
	units := make([]*tagbin.Writer, len(m.EncUnits))
	for i, ref := range m.EncUnits {
		uw := tagbin.NewWriter()
		uw.PutUint32(fieldEncUnitOffset, uint32(ref.Offset))
		uw.PutUint32(fieldEncUnitSize, uint32(ref.Size))
		uw.PutUint32(fieldEncUnitNumRows, uint32(ref.NumRows))
		units[i] = uw
	}
	w.PutRecordList(fieldEncUnits, units)
	return w
}

// MetadataFromBytes reverses ToWriter().Bytes().
func MetadataFromBytes(buf []byte) (Metadata, error) {
	fields, err := tagbin.Fields(buf)
	if err != nil {
		return Metadata{}, err
	}
	get := func(id uint16) (*tagbin.Field, bool) { f, ok := fields[id]; return f, ok }

	offsetF, ok := get(fieldOffset)
	if !ok {
		return Metadata{}, ferrors.ParseErrorf("chunk metadata: missing offset field")
	}
	sizeF, ok := get(fieldSize)
	if !ok {
		return Metadata{}, ferrors.ParseErrorf("chunk metadata: missing size field")
	}
	rowCountF, ok := get(fieldRowCount)
	if !ok {
		return Metadata{}, ferrors.ParseErrorf("chunk metadata: missing row count field")
	}

	m := Metadata{
		Offset:   offsetF.Varint,
		Size:     sizeF.Varint,
		RowCount: int(rowCountF.Varint),
	}
	if f, ok := get(fieldCompression); ok {
		m.Compression = Compression(f.Varint)
	}
	if f, ok := get(fieldChecksumType); ok {
		m.ChecksumType = checksum.Type(f.Varint)
	}
	if f, ok := get(fieldChecksum); ok {
		m.HasChecksum = true
		m.Checksum = f.Varint
	}
	if f, ok := get(fieldDictionaryIndex); ok {
		m.DictionaryRef = &DictionaryRef{DictionaryIndex: int(f.Varint)}
	}
	if f, ok := get(fieldEncUnits); ok {
		m.EncUnits = make([]EncUnitRef, len(f.Records))
		for i, rec := range f.Records {
			ref, err := encUnitRefFromBytes(rec)
			if err != nil {
				return Metadata{}, err
			}
			m.EncUnits[i] = ref
		}
	}
	return m, nil
}

func encUnitRefFromBytes(buf []byte) (EncUnitRef, error) {
	fields, err := tagbin.Fields(buf)
	if err != nil {
		return EncUnitRef{}, err
	}
	return EncUnitRef{
		Offset:  int(fields[fieldEncUnitOffset].Varint),
		Size:    int(fields[fieldEncUnitSize].Varint),
		NumRows: int(fields[fieldEncUnitNumRows].Varint),
	}, nil
}
