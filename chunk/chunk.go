// Package chunk implements the column-chunk assembler (C7): it packs an
// ordered list of EncUnits into one contiguous, optionally compressed and
// checksummed I/O unit, and reverses that on read.
package chunk

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/f3db/f3/checksum"
	"github.com/f3db/f3/encoding"
	"github.com/f3db/f3/ferrors"
	"github.com/f3db/f3/ioreader"
)

// Compression names the whole-chunk block compressor applied after every
// EncUnit has been serialized and concatenated.
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZstd
)

// EncUnitRef locates one EncUnit's serialized bytes within the
// (post-decompression) chunk payload.
type EncUnitRef struct {
	Offset  int
	Size    int
	NumRows int
}

// Metadata is the column-chunk record: byte offset/size, row count,
// encoding/compression tags, optional dictionary reference, optional
// checksum, and the EncUnit index.
type Metadata struct {
	Offset        uint64
	Size          uint64
	RowCount      int
	Compression   Compression
	ChecksumType  checksum.Type
	HasChecksum   bool
	Checksum      uint64
	DictionaryRef *DictionaryRef
	EncUnits      []EncUnitRef
}

// DictionaryRef points a column chunk at a slot in the file's shared
// dictionary table.
type DictionaryRef struct {
	DictionaryIndex int
}

// AssembleOptions configures Assemble.
type AssembleOptions struct {
	Compression    Compression
	EnableChecksum bool
}

// Assembled is the result of Assemble: the bytes to write at Metadata.Offset
// and the metadata record to store in the footer.
type Assembled struct {
	Bytes []byte
	Meta  Metadata
}

// Assemble serializes each EncUnit via C3, concatenates them, optionally
// block-compresses the result, and optionally checksums the final bytes.
func Assemble(units []*encoding.EncUnit, opts AssembleOptions) (*Assembled, error) {
	refs := make([]EncUnitRef, len(units))
	var payload []byte
	rowCount := 0
	for i, u := range units {
		serialized := u.Serialize()
		refs[i] = EncUnitRef{Offset: len(payload), Size: len(serialized), NumRows: u.NumRows}
		payload = append(payload, serialized...)
		rowCount += u.NumRows
	}

	compressed, err := compress(opts.Compression, payload)
	if err != nil {
		return nil, err
	}

	meta := Metadata{
		Size:         uint64(len(compressed)),
		RowCount:     rowCount,
		Compression:  opts.Compression,
		ChecksumType: checksum.TypeXXHash,
		EncUnits:     refs,
	}
	if opts.EnableChecksum {
		meta.HasChecksum = true
		meta.Checksum = checksum.Sum64(compressed)
	}
	return &Assembled{Bytes: compressed, Meta: meta}, nil
}

// Read seeks to meta.Offset in r, reads meta.Size bytes, verifies the
// checksum if present, decompresses, and slices the result back into
// EncUnits per meta.EncUnits. A checksum mismatch fails with
// ferrors.Generalf("Checksum verification failed").
func Read(r ioreader.Reader, meta Metadata) ([]*encoding.EncUnit, error) {
	buf := make([]byte, meta.Size)
	if err := r.ReadAt(buf, meta.Offset); err != nil {
		return nil, err
	}

	if meta.HasChecksum {
		if checksum.Sum64(buf) != meta.Checksum {
			return nil, ferrors.Generalf("Checksum verification failed")
		}
	}

	payload, err := decompress(meta.Compression, buf)
	if err != nil {
		return nil, err
	}

	units := make([]*encoding.EncUnit, len(meta.EncUnits))
	for i, ref := range meta.EncUnits {
		if ref.Offset+ref.Size > len(payload) {
			return nil, ferrors.ParseErrorf("chunk: encunit %d out of bounds", i)
		}
		u, err := encoding.Deserialize(payload[ref.Offset : ref.Offset+ref.Size])
		if err != nil {
			return nil, err
		}
		u.NumRows = ref.NumRows
		units[i] = u
	}
	return units, nil
}

func compress(c Compression, raw []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return raw, nil
	case CompressionLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, ferrors.Externalf(err)
		}
		if err := w.Close(); err != nil {
			return nil, ferrors.Externalf(err)
		}
		return buf.Bytes(), nil
	case CompressionZstd:
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, ferrors.Externalf(err)
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil), nil
	default:
		return nil, ferrors.Generalf("chunk: unknown compression tag %d", c)
	}
}

func decompress(c Compression, buf []byte) ([]byte, error) {
	switch c {
	case CompressionNone:
		return buf, nil
	case CompressionLZ4:
		r := lz4.NewReader(bytes.NewReader(buf))
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, ferrors.Externalf(err)
		}
		return out, nil
	case CompressionZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, ferrors.Externalf(err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(buf, nil)
		if err != nil {
			return nil, ferrors.Externalf(err)
		}
		return out, nil
	default:
		return nil, ferrors.Generalf("chunk: unknown compression tag %d", c)
	}
}
