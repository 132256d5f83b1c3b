package wasmrt

import (
	"context"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/f3db/f3/encoding"
	"github.com/f3db/f3/ferrors"
)

// Adapter implements encoding.CustomCodec over a Manager, so the built-in
// codec framework can dispatch Custom-WASM leaves without importing wazero
// itself. Encode and decode both run through the same registered module: a
// custom codec is required to export both directions' symbols, since Go has
// no cross-platform equivalent of the native encode_lib_path/dlopen plugin
// Rust uses for the (trusted) write side — everything instead goes through
// the one sandboxed boundary.
type Adapter struct {
	Manager *Manager
}

// NewAdapter wraps mgr for use as an encoding.CustomCodec.
func NewAdapter(mgr *Manager) *Adapter {
	return &Adapter{Manager: mgr}
}

// EncodeCustom sends arr's Arrow data buffer 1 (the value buffer of a
// fixed-width type) through the module's "encode" general/iterator export.
// For variable-width types buffer 1 is the offsets buffer, and only it is
// sent; the data buffer is not. The resulting buffers become the Custom-WASM
// leaf's buffers directly; the leaf's Meta carries the wasmID so decode can
// find the same module again.
func (a *Adapter) EncodeCustom(wasmID string, arr arrow.Array) (*encoding.Tree, [][]byte, error) {
	rt, err := a.Manager.Runtime(wasmID)
	if err != nil {
		return nil, nil, err
	}
	ctx := context.Background()
	if !rt.HasFunction("encode") {
		return nil, nil, ferrors.Generalf("no such function")
	}

	input, err := arrayValueBytes(arr)
	if err != nil {
		return nil, nil, err
	}
	out, err := rt.CallGeneral(ctx, "encode", input)
	if err != nil {
		return nil, nil, err
	}
	buffers := make([][]byte, len(out))
	for i, buf := range out {
		buffers[i] = buf.Bytes()
		if err := buf.Close(ctx); err != nil {
			return nil, nil, err
		}
	}
	return encoding.Leaf(encoding.KindCustomWASM, []byte(wasmID)), buffers, nil
}

// DecodeCustom runs buffers[0] through the module's "decode" scalar export
// and reinterprets the guest's output bytes as dtype's native little-endian
// layout, zero-copy via array.NewData.
func (a *Adapter) DecodeCustom(wasmID string, tree *encoding.Tree, buffers [][]byte, dtype arrow.DataType, numRows int) (arrow.Array, error) {
	rt, err := a.Manager.Runtime(wasmID)
	if err != nil {
		return nil, err
	}
	ctx := context.Background()
	if !rt.HasFunction("decode") {
		return nil, ferrors.Generalf("no such function")
	}
	var input []byte
	if len(buffers) > 0 {
		input = buffers[0]
	}
	raw, err := rt.CallScalar(ctx, "decode", input)
	if err != nil {
		return nil, err
	}
	return bytesToArray(dtype, numRows, raw)
}

// arrayValueBytes returns the raw little-endian value buffer for a
// fixed-width array, the same layout Arrow already stores it in.
func arrayValueBytes(arr arrow.Array) ([]byte, error) {
	data := arr.Data()
	if len(data.Buffers()) < 2 || data.Buffers()[1] == nil {
		return nil, ferrors.NYIf("wasmrt: no fixed-width value buffer for %s", arr.DataType())
	}
	return data.Buffers()[1].Bytes(), nil
}

// bytesToArray wraps raw guest bytes as an Arrow array of dtype without
// copying, via the same NewData-based builder fast path used elsewhere.
func bytesToArray(dtype arrow.DataType, numRows int, raw []byte) (arrow.Array, error) {
	fw, ok := dtype.(arrow.FixedWidthDataType)
	if !ok {
		return nil, ferrors.NYIf("wasmrt: cannot decode custom output into %s", dtype)
	}
	data := array.NewData(
		fw,
		numRows,
		[]*memory.Buffer{nil, memory.NewBufferBytes(raw)},
		nil,
		0,
		0,
	)
	defer data.Release()
	return array.MakeFromData(data), nil
}
