// Package footer implements the fixed-size postscript trailer and the
// variable-size footer metadata region that precedes it: schema bytes, the
// row-group index, per-row-group column-chunk metadata, and the optional
// shared-dictionary and WASM-binary auxiliary tables.
package footer

import (
	"encoding/binary"

	"github.com/f3db/f3/checksum"
	"github.com/f3db/f3/ferrors"
)

// PostscriptSize is the fixed trailer length, in bytes.
const PostscriptSize = 32

var magic = [2]byte{'F', '3'}

// CurrentMajor/CurrentMinor are the version this writer emits. Readers
// accept only an exact major match; minor is forward-compatible for
// additive footer fields.
const (
	CurrentMajor uint16 = 1
	CurrentMinor uint16 = 0
)

// Postscript is the 32-byte trailer:
//
//	metadata_size:u32 | footer_size:u32 | compression:u8 | checksum_type:u8
//	| file_checksum:u64 | schema_checksum:u64 | major:u16 | minor:u16 | magic:"F3"
type Postscript struct {
	MetadataSize   uint32
	FooterSize     uint32
	Compression    uint8
	ChecksumType   checksum.Type
	FileChecksum   uint64
	SchemaChecksum uint64
	Major          uint16
	Minor          uint16
}

// Marshal encodes p to its fixed 32-byte wire form.
func (p Postscript) Marshal() []byte {
	buf := make([]byte, PostscriptSize)
	binary.LittleEndian.PutUint32(buf[0:4], p.MetadataSize)
	binary.LittleEndian.PutUint32(buf[4:8], p.FooterSize)
	buf[8] = p.Compression
	buf[9] = uint8(p.ChecksumType)
	binary.LittleEndian.PutUint64(buf[10:18], p.FileChecksum)
	binary.LittleEndian.PutUint64(buf[18:26], p.SchemaChecksum)
	binary.LittleEndian.PutUint16(buf[26:28], p.Major)
	binary.LittleEndian.PutUint16(buf[28:30], p.Minor)
	buf[30] = magic[0]
	buf[31] = magic[1]
	return buf
}

// UnmarshalPostscript reverses Marshal, validating the magic bytes and the
// major version before returning anything else. buf must be exactly
// PostscriptSize bytes, as read from the last 32 bytes of the file.
func UnmarshalPostscript(buf []byte) (Postscript, error) {
	if len(buf) != PostscriptSize {
		return Postscript{}, ferrors.ParseErrorf("footer: postscript must be %d bytes, got %d", PostscriptSize, len(buf))
	}
	if buf[30] != magic[0] || buf[31] != magic[1] {
		return Postscript{}, ferrors.ParseErrorf("footer: bad magic bytes %q", buf[30:32])
	}
	p := Postscript{
		MetadataSize:   binary.LittleEndian.Uint32(buf[0:4]),
		FooterSize:     binary.LittleEndian.Uint32(buf[4:8]),
		Compression:    buf[8],
		ChecksumType:   checksum.Type(buf[9]),
		FileChecksum:   binary.LittleEndian.Uint64(buf[10:18]),
		SchemaChecksum: binary.LittleEndian.Uint64(buf[18:26]),
		Major:          binary.LittleEndian.Uint16(buf[26:28]),
		Minor:          binary.LittleEndian.Uint16(buf[28:30]),
	}
	if p.Major != CurrentMajor {
		return Postscript{}, ferrors.ParseErrorf("footer: unsupported major version %d (reader supports %d)", p.Major, CurrentMajor)
	}
	return p, nil
}
