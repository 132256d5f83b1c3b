// Package tagbin implements a small, deterministic, forward/backward
// compatible tagged binary encoder. It serves both the EncUnit encoding
// tree (C3) and the footer metadata section, in place of driving
// google/flatbuffers by hand without a flatc code-generation step (see
// DESIGN.md).
//
// Wire shape: every record is a sequence of fields, each written as
// `field_id:u16 | wire_type:u8 | payload`. Unknown field ids are skipped by
// their wire type's length, which is what gives the format forward
// compatibility: a reader built against an older schema can skip fields it
// doesn't know about, and a writer can omit fields a newer schema added
// defaults for.
package tagbin

import (
	"encoding/binary"
	"io"

	"github.com/f3db/f3/ferrors"
)

type WireType uint8

const (
	WireVarint WireType = iota // u64, little-endian fixed 8 bytes for determinism
	WireBytes                  // len:u32 | bytes
	WireRecord                 // len:u32 | nested record bytes
	WireRecordList             // count:u32 | (len:u32 | nested record bytes) * count
)

// Writer accumulates a single tagged record.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

func (w *Writer) field(id uint16, wt WireType) {
	w.buf = binary.LittleEndian.AppendUint16(w.buf, id)
	w.buf = append(w.buf, byte(wt))
}

func (w *Writer) PutUint64(id uint16, v uint64) {
	w.field(id, WireVarint)
	w.buf = binary.LittleEndian.AppendUint64(w.buf, v)
}

func (w *Writer) PutUint32(id uint16, v uint32) { w.PutUint64(id, uint64(v)) }

func (w *Writer) PutBytes(id uint16, v []byte) {
	w.field(id, WireBytes)
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(v)))
	w.buf = append(w.buf, v...)
}

func (w *Writer) PutString(id uint16, v string) { w.PutBytes(id, []byte(v)) }

func (w *Writer) PutRecord(id uint16, rec *Writer) {
	w.field(id, WireRecord)
	b := rec.Bytes()
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *Writer) PutRecordList(id uint16, recs []*Writer) {
	w.field(id, WireRecordList)
	w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(recs)))
	for _, rec := range recs {
		b := rec.Bytes()
		w.buf = binary.LittleEndian.AppendUint32(w.buf, uint32(len(b)))
		w.buf = append(w.buf, b...)
	}
}

// Bytes returns the serialized record. The Writer remains usable afterwards.
func (w *Writer) Bytes() []byte { return w.buf }

// Reader walks a serialized record field by field.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Field describes one decoded field; which of Varint, Bytes or Records is
// set depends on Type.
type Field struct {
	ID      uint16
	Type    WireType
	Varint  uint64
	Bytes   []byte
	Records [][]byte
}

// Next decodes the next field, or returns (nil, io.EOF) at the end of the
// record.
func (r *Reader) Next() (*Field, error) {
	if r.pos >= len(r.buf) {
		return nil, io.EOF
	}
	if r.pos+3 > len(r.buf) {
		return nil, ferrors.ParseErrorf("tagbin: truncated field header")
	}
	id := binary.LittleEndian.Uint16(r.buf[r.pos:])
	wt := WireType(r.buf[r.pos+2])
	r.pos += 3

	f := &Field{ID: id, Type: wt}
	switch wt {
	case WireVarint:
		if r.pos+8 > len(r.buf) {
			return nil, ferrors.ParseErrorf("tagbin: truncated varint field")
		}
		f.Varint = binary.LittleEndian.Uint64(r.buf[r.pos:])
		r.pos += 8
	case WireBytes:
		n, err := r.readLen()
		if err != nil {
			return nil, err
		}
		if r.pos+n > len(r.buf) {
			return nil, ferrors.ParseErrorf("tagbin: truncated bytes field")
		}
		f.Bytes = r.buf[r.pos : r.pos+n]
		r.pos += n
	case WireRecord:
		n, err := r.readLen()
		if err != nil {
			return nil, err
		}
		if r.pos+n > len(r.buf) {
			return nil, ferrors.ParseErrorf("tagbin: truncated record field")
		}
		f.Bytes = r.buf[r.pos : r.pos+n]
		r.pos += n
	case WireRecordList:
		if r.pos+4 > len(r.buf) {
			return nil, ferrors.ParseErrorf("tagbin: truncated record-list count")
		}
		count := int(binary.LittleEndian.Uint32(r.buf[r.pos:]))
		r.pos += 4
		f.Records = make([][]byte, 0, count)
		for i := 0; i < count; i++ {
			n, err := r.readLen()
			if err != nil {
				return nil, err
			}
			if r.pos+n > len(r.buf) {
				return nil, ferrors.ParseErrorf("tagbin: truncated record-list entry")
			}
			f.Records = append(f.Records, r.buf[r.pos:r.pos+n])
			r.pos += n
		}
	default:
		return nil, ferrors.ParseErrorf("tagbin: unknown wire type %d", wt)
	}
	return f, nil
}

func (r *Reader) readLen() (int, error) {
	if r.pos+4 > len(r.buf) {
		return 0, ferrors.ParseErrorf("tagbin: truncated length prefix")
	}
	n := int(binary.LittleEndian.Uint32(r.buf[r.pos:]))
	r.pos += 4
	return n, nil
}

// Fields decodes every field in the record into a map keyed by field id,
// for callers that don't care about ordering or repeated ids (the last one
// wins).
func Fields(buf []byte) (map[uint16]*Field, error) {
	r := NewReader(buf)
	out := map[uint16]*Field{}
	for {
		f, err := r.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out[f.ID] = f
	}
}
