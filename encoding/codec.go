package encoding

import (
	"encoding/binary"
	"math"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/f3db/f3/encoding/bitpacked"
	"github.com/f3db/f3/encoding/cascade"
	"github.com/f3db/f3/ferrors"
)

// CustomCodec is implemented by the WASM runtime layer and injected into
// Options so this package never imports wasmrt directly: the Custom-WASM
// leaf is otherwise opaque to the built-in codec framework.
type CustomCodec interface {
	EncodeCustom(wasmID string, arr arrow.Array) (*Tree, [][]byte, error)
	DecodeCustom(wasmID string, tree *Tree, buffers [][]byte, dtype arrow.DataType, numRows int) (arrow.Array, error)
}

// Options configures column encoding and the encoder-selection table below.
type Options struct {
	Mem    memory.Allocator
	Custom CustomCodec
	// WASMIDForType resolves custom_encoding_options' ArrowType -> WASMId
	// mapping. Returning ("", false) means no custom codec is configured
	// for this type.
	WASMIDForType func(arrow.DataType) (string, bool)
}

func (o *Options) mem() memory.Allocator {
	if o.Mem == nil {
		return memory.NewGoAllocator()
	}
	return o.Mem
}

// EncodeColumn selects an encoder by Arrow type (a configured custom WASM
// codec first, otherwise the built-in switch in encodeNonNull, with nulls
// handled by the nullable wrapper) and produces a full EncUnit for one leaf
// column's values.
func EncodeColumn(arr arrow.Array, opts Options) (*EncUnit, error) {
	if wasmID, ok := lookupWASMID(arr.DataType(), opts); ok {
		tree, buffers, err := opts.Custom.EncodeCustom(wasmID, arr)
		if err != nil {
			return nil, err
		}
		return &EncUnit{Tree: tree, Buffers: buffers, NumRows: arr.Len()}, nil
	}

	if arr.NullN() > 0 {
		validity := validityBitmapOf(arr)
		valid := nonNullOnly(arr)
		dataTree, dataBuffers, err := encodeNonNull(valid, opts)
		if err != nil {
			return nil, err
		}
		tree, buffers := WrapNullable(validity, dataTree, dataBuffers)
		return &EncUnit{Tree: tree, Buffers: buffers, NumRows: arr.Len()}, nil
	}

	tree, buffers, err := encodeNonNull(arr, opts)
	if err != nil {
		return nil, err
	}
	return &EncUnit{Tree: tree, Buffers: buffers, NumRows: arr.Len()}, nil
}

func lookupWASMID(dtype arrow.DataType, opts Options) (string, bool) {
	if opts.Custom == nil || opts.WASMIDForType == nil {
		return "", false
	}
	return opts.WASMIDForType(dtype)
}

// nonNullOnly returns the same array for encoding purposes; validity is
// handled separately by the nullable wrapper. The underlying value slots
// for null rows are not guaranteed meaningful but are still encoded
// (decoders must not trust values at invalid rows).
func nonNullOnly(arr arrow.Array) arrow.Array { return arr }

func validityBitmapOf(arr arrow.Array) []byte {
	n := arr.Len()
	out := NewValidityBitmap(n)
	for i := 0; i < n; i++ {
		if arr.IsNull(i) {
			SetValid(out, i, false)
		}
	}
	return out
}

func encodeNonNull(arr arrow.Array, opts Options) (*Tree, [][]byte, error) {
	switch a := arr.(type) {
	case *array.Uint32:
		meta, packed := bitpacked.Encode(a.Uint32Values())
		return Leaf(KindBitPacked, meta.Encode()), [][]byte{packedBytes(packed)}, nil
	case *array.Int32:
		return cascade.EncodeBytes(int32Bytes(a.Int32Values()))
	case *array.Int64:
		return cascade.EncodeBytes(int64Bytes(a.Int64Values()))
	case *array.Uint64:
		return cascade.EncodeBytes(uint64Bytes(a.Uint64Values()))
	case *array.Float64:
		return cascade.EncodeBytes(float64Bytes(a.Float64Values()))
	case *array.String:
		values := make([][]byte, a.Len())
		for i := 0; i < a.Len(); i++ {
			values[i] = []byte(a.Value(i))
		}
		return cascade.EncodeStrings(values)
	case *array.Binary:
		values := make([][]byte, a.Len())
		for i := 0; i < a.Len(); i++ {
			values[i] = a.Value(i)
		}
		return cascade.EncodeStrings(values)
	case *array.List:
		return encodeList(a, opts)
	default:
		return nil, nil, ferrors.NYIf("encoding: no built-in encoder for %s", arr.DataType())
	}
}

// encodeList splits a List array into its offsets (treated as the data
// buffer of a primitive-32 column) and its values child, recursively
// encoding the child through EncodeColumn.
func encodeList(a *array.List, opts Options) (*Tree, [][]byte, error) {
	offsets := a.Offsets()
	start, end := offsets[0], offsets[len(offsets)-1]
	values := array.NewSlice(a.ListValues(), int64(start), int64(end))
	defer values.Release()

	rebased := make([]int32, len(offsets))
	for i, o := range offsets {
		rebased[i] = o - start
	}
	offsetsTree, offsetsBuf := cascade.EncodeBytes(int32Bytes(rebased))

	valuesUnit, err := EncodeColumn(values, opts)
	if err != nil {
		return nil, nil, err
	}

	tree := &Tree{
		Kind:     KindList,
		Children: []*Tree{offsetsTree, valuesUnit.Tree},
	}
	buffers := append([][]byte{offsetsBuf}, valuesUnit.Buffers...)
	return tree, buffers, nil
}

// DecodeColumn reverses EncodeColumn.
func DecodeColumn(u *EncUnit, dtype arrow.DataType, numRows int, opts Options) (arrow.Array, error) {
	tree, buffers := u.Tree, u.Buffers

	if tree.Kind == KindCustomWASM {
		if opts.Custom == nil {
			return nil, ferrors.Generalf("encoding: custom-WASM EncUnit but no CustomCodec configured")
		}
		wasmID := string(tree.Meta)
		return opts.Custom.DecodeCustom(wasmID, tree, buffers, dtype, numRows)
	}

	if tree.Kind == KindNullable {
		validity, dataTree, dataBuffers := UnwrapNullable(tree, buffers)
		arr, err := decodeNonNull(&EncUnit{Tree: dataTree, Buffers: dataBuffers}, dtype, numRows, opts)
		if err != nil {
			return nil, err
		}
		return applyValidity(arr, validity, opts.mem())
	}

	// Plain-encoded strings/binary also use a KindList root (offsets + data),
	// so only list dtypes take the list path; the rest decode below.
	if tree.Kind == KindList && dtype.ID() == arrow.LIST {
		listType, ok := dtype.(*arrow.ListType)
		if !ok {
			return nil, ferrors.ParseErrorf("encoding: list-kind EncUnit but dtype is %s", dtype)
		}
		return decodeList(tree, buffers, listType, numRows, opts)
	}

	return decodeNonNull(u, dtype, numRows, opts)
}

// decodeList reverses encodeList.
func decodeList(tree *Tree, buffers [][]byte, listType *arrow.ListType, numRows int, opts Options) (arrow.Array, error) {
	if len(tree.Children) != 2 {
		return nil, ferrors.ParseErrorf("encoding: malformed list tree")
	}
	offsetsTree, valuesTree := tree.Children[0], tree.Children[1]
	offsetsBuf := buffers[0]
	valuesBuffers := buffers[1:]

	rawOffsets, err := cascade.DecodeBytes(offsetsTree, offsetsBuf)
	if err != nil {
		return nil, err
	}
	if len(rawOffsets)%4 != 0 || len(rawOffsets)/4 != numRows+1 {
		return nil, ferrors.ParseErrorf("encoding: list offsets length mismatch")
	}
	offsets := make([]int32, numRows+1)
	for i := range offsets {
		offsets[i] = int32(binary.LittleEndian.Uint32(rawOffsets[i*4:]))
	}
	numValues := int(offsets[len(offsets)-1])

	values, err := DecodeColumn(&EncUnit{Tree: valuesTree, Buffers: valuesBuffers}, listType.Elem(), numValues, opts)
	if err != nil {
		return nil, err
	}
	defer values.Release()

	mem := opts.mem()
	b := array.NewListBuilder(mem, listType.Elem())
	defer b.Release()
	for i := 0; i < numRows; i++ {
		b.Append(true)
		if err := appendRange(b.ValueBuilder(), values, int(offsets[i]), int(offsets[i+1])); err != nil {
			return nil, err
		}
	}
	return b.NewArray(), nil
}

// appendRange appends values[start:end] onto vb, the list builder's value
// builder. Only the element types EncodeColumn already supports are
// handled; nested lists-of-lists are not.
func appendRange(vb array.Builder, values arrow.Array, start, end int) error {
	switch v := values.(type) {
	case *array.Uint32:
		ub := vb.(*array.Uint32Builder)
		for i := start; i < end; i++ {
			appendOrNull(v, i, ub, func() { ub.Append(v.Value(i)) })
		}
	case *array.Int32:
		ib := vb.(*array.Int32Builder)
		for i := start; i < end; i++ {
			appendOrNull(v, i, ib, func() { ib.Append(v.Value(i)) })
		}
	case *array.Int64:
		ib := vb.(*array.Int64Builder)
		for i := start; i < end; i++ {
			appendOrNull(v, i, ib, func() { ib.Append(v.Value(i)) })
		}
	case *array.Uint64:
		ub := vb.(*array.Uint64Builder)
		for i := start; i < end; i++ {
			appendOrNull(v, i, ub, func() { ub.Append(v.Value(i)) })
		}
	case *array.Float64:
		fb := vb.(*array.Float64Builder)
		for i := start; i < end; i++ {
			appendOrNull(v, i, fb, func() { fb.Append(v.Value(i)) })
		}
	case *array.String:
		sb := vb.(*array.StringBuilder)
		for i := start; i < end; i++ {
			appendOrNull(v, i, sb, func() { sb.Append(v.Value(i)) })
		}
	case *array.Binary:
		bb := vb.(*array.BinaryBuilder)
		for i := start; i < end; i++ {
			appendOrNull(v, i, bb, func() { bb.Append(v.Value(i)) })
		}
	default:
		return ferrors.NYIf("encoding: cannot append list values of type %T", values)
	}
	return nil
}

// appendOrNull appends a null onto b if arr is null at row i, otherwise
// runs appendValue to append the real value.
func appendOrNull(arr arrow.Array, i int, b array.Builder, appendValue func()) {
	if arr.IsNull(i) {
		b.AppendNull()
		return
	}
	appendValue()
}

func decodeNonNull(u *EncUnit, dtype arrow.DataType, numRows int, opts Options) (arrow.Array, error) {
	mem := opts.mem()
	switch dtype.ID() {
	case arrow.UINT32:
		meta, err := bitpacked.DecodeMetadata(u.Tree.Meta)
		if err != nil {
			return nil, err
		}
		values, err := bitpacked.Decode(meta, bytesToWords(u.Buffers[0]))
		if err != nil {
			return nil, err
		}
		b := array.NewUint32Builder(mem)
		defer b.Release()
		b.AppendValues(values, nil)
		return b.NewArray(), nil
	case arrow.INT32:
		raw, err := cascade.DecodeBytes(u.Tree, u.Buffers[0])
		if err != nil {
			return nil, err
		}
		return bytesToInt32Array(raw, mem), nil
	case arrow.INT64:
		raw, err := cascade.DecodeBytes(u.Tree, u.Buffers[0])
		if err != nil {
			return nil, err
		}
		return bytesToInt64Array(raw, mem), nil
	case arrow.UINT64:
		raw, err := cascade.DecodeBytes(u.Tree, u.Buffers[0])
		if err != nil {
			return nil, err
		}
		return bytesToUint64Array(raw, mem), nil
	case arrow.FLOAT64:
		raw, err := cascade.DecodeBytes(u.Tree, u.Buffers[0])
		if err != nil {
			return nil, err
		}
		return bytesToFloat64Array(raw, mem), nil
	case arrow.STRING:
		values, err := cascade.DecodeStrings(u.Tree, u.Buffers)
		if err != nil {
			return nil, err
		}
		b := array.NewStringBuilder(mem)
		defer b.Release()
		for _, v := range values {
			b.Append(string(v))
		}
		return b.NewArray(), nil
	case arrow.BINARY:
		values, err := cascade.DecodeStrings(u.Tree, u.Buffers)
		if err != nil {
			return nil, err
		}
		b := array.NewBinaryBuilder(mem, arrow.BinaryTypes.Binary)
		defer b.Release()
		for _, v := range values {
			b.Append(v)
		}
		return b.NewArray(), nil
	default:
		return nil, ferrors.NYIf("encoding: no built-in decoder for %s", dtype)
	}
}

// applyValidity rebuilds arr with null rows masked in by validity, since
// the built-in leaf decoders above always produce fully-valid arrays.
func applyValidity(arr arrow.Array, validity []byte, mem memory.Allocator) (arrow.Array, error) {
	switch a := arr.(type) {
	case *array.Uint32:
		b := array.NewUint32Builder(mem)
		defer b.Release()
		for i := 0; i < a.Len(); i++ {
			if IsValid(validity, i) {
				b.Append(a.Value(i))
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray(), nil
	case *array.Int32:
		b := array.NewInt32Builder(mem)
		defer b.Release()
		for i := 0; i < a.Len(); i++ {
			if IsValid(validity, i) {
				b.Append(a.Value(i))
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray(), nil
	case *array.Int64:
		b := array.NewInt64Builder(mem)
		defer b.Release()
		for i := 0; i < a.Len(); i++ {
			if IsValid(validity, i) {
				b.Append(a.Value(i))
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray(), nil
	case *array.Uint64:
		b := array.NewUint64Builder(mem)
		defer b.Release()
		for i := 0; i < a.Len(); i++ {
			if IsValid(validity, i) {
				b.Append(a.Value(i))
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray(), nil
	case *array.Float64:
		b := array.NewFloat64Builder(mem)
		defer b.Release()
		for i := 0; i < a.Len(); i++ {
			if IsValid(validity, i) {
				b.Append(a.Value(i))
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray(), nil
	case *array.String:
		b := array.NewStringBuilder(mem)
		defer b.Release()
		for i := 0; i < a.Len(); i++ {
			if IsValid(validity, i) {
				b.Append(a.Value(i))
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray(), nil
	case *array.Binary:
		b := array.NewBinaryBuilder(mem, arrow.BinaryTypes.Binary)
		defer b.Release()
		for i := 0; i < a.Len(); i++ {
			if IsValid(validity, i) {
				b.Append(a.Value(i))
			} else {
				b.AppendNull()
			}
		}
		return b.NewArray(), nil
	default:
		return nil, ferrors.NYIf("encoding: cannot apply validity to %T", arr)
	}
}

func packedBytes(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

func bytesToWords(buf []byte) []uint32 {
	out := make([]uint32, len(buf)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return out
}

func int32Bytes(values []int32) []byte {
	out := make([]byte, len(values)*4)
	for i, v := range values {
		binary.LittleEndian.PutUint32(out[i*4:], uint32(v))
	}
	return out
}

func int64Bytes(values []int64) []byte {
	out := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[i*8:], uint64(v))
	}
	return out
}

func uint64Bytes(values []uint64) []byte {
	out := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[i*8:], v)
	}
	return out
}

func float64Bytes(values []float64) []byte {
	out := make([]byte, len(values)*8)
	for i, v := range values {
		binary.LittleEndian.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}

func bytesToInt32Array(raw []byte, mem memory.Allocator) arrow.Array {
	b := array.NewInt32Builder(mem)
	defer b.Release()
	for i := 0; i+4 <= len(raw); i += 4 {
		b.Append(int32(binary.LittleEndian.Uint32(raw[i:])))
	}
	return b.NewArray()
}

func bytesToInt64Array(raw []byte, mem memory.Allocator) arrow.Array {
	b := array.NewInt64Builder(mem)
	defer b.Release()
	for i := 0; i+8 <= len(raw); i += 8 {
		b.Append(int64(binary.LittleEndian.Uint64(raw[i:])))
	}
	return b.NewArray()
}

func bytesToUint64Array(raw []byte, mem memory.Allocator) arrow.Array {
	b := array.NewUint64Builder(mem)
	defer b.Release()
	for i := 0; i+8 <= len(raw); i += 8 {
		b.Append(binary.LittleEndian.Uint64(raw[i:]))
	}
	return b.NewArray()
}

func bytesToFloat64Array(raw []byte, mem memory.Allocator) arrow.Array {
	b := array.NewFloat64Builder(mem)
	defer b.Release()
	for i := 0; i+8 <= len(raw); i += 8 {
		b.Append(math.Float64frombits(binary.LittleEndian.Uint64(raw[i:])))
	}
	return b.NewArray()
}
