// Package ppd implements the predicate pushdown message: a tiny typed
// expression `{op, right}` that decoders may accept to avoid
// materializing a full array, producing a row-aligned boolean buffer
// instead. Only Eq with a scalar right-hand side is required for v0; the
// other operators are defined for forward compatibility with decoders that
// choose to implement them.
package ppd

import (
	"bytes"
	"encoding/binary"

	"github.com/f3db/f3/ferrors"
	"github.com/f3db/f3/tagbin"
)

type Op uint8

const (
	Eq Op = iota
	NotEq
	Lt
	Le
	Gt
	Ge
	And
	Or
)

// Predicate is the pushdown expression. Right holds the scalar's raw
// little-endian bytes; its width is implied by the column's physical type.
// And/Or compose two child predicates instead of carrying a scalar.
type Predicate struct {
	Op    Op
	Right []byte
	Left  *Predicate
	Other *Predicate
}

const (
	fieldOp    uint16 = 1
	fieldRight uint16 = 2
	fieldLeft  uint16 = 3
	fieldOther uint16 = 4
)

// Serialize encodes the predicate using the shared tagbin TLV format, the
// same deterministic serializer used for the encoding tree and the footer.
// The result is one byte string, which can travel as the word of a "ppd"
// kwarg (see wasmrt.EncodeKWArgs).
func (p *Predicate) Serialize() []byte {
	w := tagbin.NewWriter()
	w.PutUint32(fieldOp, uint32(p.Op))
	if p.Right != nil {
		w.PutBytes(fieldRight, p.Right)
	}
	if p.Left != nil {
		w.PutRecord(fieldLeft, writerFor(p.Left))
	}
	if p.Other != nil {
		w.PutRecord(fieldOther, writerFor(p.Other))
	}
	return w.Bytes()
}

func writerFor(p *Predicate) *tagbin.Writer {
	w := tagbin.NewWriter()
	w.PutUint32(fieldOp, uint32(p.Op))
	if p.Right != nil {
		w.PutBytes(fieldRight, p.Right)
	}
	if p.Left != nil {
		w.PutRecord(fieldLeft, writerFor(p.Left))
	}
	if p.Other != nil {
		w.PutRecord(fieldOther, writerFor(p.Other))
	}
	return w
}

// Deserialize reverses Serialize.
func Deserialize(buf []byte) (*Predicate, error) {
	fields, err := tagbin.Fields(buf)
	if err != nil {
		return nil, err
	}
	opField, ok := fields[fieldOp]
	if !ok {
		return nil, ferrors.ParseErrorf("ppd: predicate missing op field")
	}
	p := &Predicate{Op: Op(opField.Varint)}
	if right, ok := fields[fieldRight]; ok {
		p.Right = right.Bytes
	}
	if left, ok := fields[fieldLeft]; ok {
		child, err := Deserialize(left.Bytes)
		if err != nil {
			return nil, err
		}
		p.Left = child
	}
	if other, ok := fields[fieldOther]; ok {
		child, err := Deserialize(other.Bytes)
		if err != nil {
			return nil, err
		}
		p.Other = child
	}
	return p, nil
}

// EvalUint32 evaluates the predicate over a []uint32 column, returning one
// bool per row. Only Eq is required for v0; the rest are provided for
// decoders that choose to push them down too.
func EvalUint32(p *Predicate, values []uint32) ([]bool, error) {
	switch p.Op {
	case And, Or:
		if p.Left == nil || p.Other == nil {
			return nil, ferrors.Generalf("ppd: And/Or require both children")
		}
		left, err := EvalUint32(p.Left, values)
		if err != nil {
			return nil, err
		}
		right, err := EvalUint32(p.Other, values)
		if err != nil {
			return nil, err
		}
		out := make([]bool, len(values))
		for i := range out {
			if p.Op == And {
				out[i] = left[i] && right[i]
			} else {
				out[i] = left[i] || right[i]
			}
		}
		return out, nil
	}

	if len(p.Right) < 4 {
		return nil, ferrors.Generalf("ppd: scalar right-hand side too short for uint32 comparison")
	}
	scalar := binary.LittleEndian.Uint32(p.Right)
	out := make([]bool, len(values))
	for i, v := range values {
		switch p.Op {
		case Eq:
			out[i] = v == scalar
		case NotEq:
			out[i] = v != scalar
		case Lt:
			out[i] = v < scalar
		case Le:
			out[i] = v <= scalar
		case Gt:
			out[i] = v > scalar
		case Ge:
			out[i] = v >= scalar
		default:
			return nil, ferrors.NYIf("ppd: operator %d not implemented for uint32", p.Op)
		}
	}
	return out, nil
}

// EvalBytes evaluates Eq/NotEq over a [][]byte column (strings/binary).
func EvalBytes(p *Predicate, values [][]byte) ([]bool, error) {
	out := make([]bool, len(values))
	for i, v := range values {
		eq := bytes.Equal(v, p.Right)
		switch p.Op {
		case Eq:
			out[i] = eq
		case NotEq:
			out[i] = !eq
		default:
			return nil, ferrors.NYIf("ppd: operator %d not implemented for byte columns", p.Op)
		}
	}
	return out, nil
}

// BoolsToBitmap packs a []bool into the little-endian-within-bytes
// validity bitmap layout used throughout the format.
func BoolsToBitmap(bits []bool) []byte {
	out := make([]byte, (len(bits)+7)/8)
	for i, b := range bits {
		if b {
			out[i/8] |= 1 << uint(i%8)
		}
	}
	return out
}
