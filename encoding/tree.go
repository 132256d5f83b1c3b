// Package encoding implements the self-describing EncUnit codec framework
// (C3) and the built-in encoders/decoders (C4): the encoding tree, the flat
// on-disk EncUnit layout, bit-packing, and the cascaded codec. Custom-WASM
// leaves are represented here only as a Kind tag plus an opaque id; the
// actual sandboxed dispatch lives in package wasmrt and is wired in by the
// writer/reader through the CustomCodec interface, keeping this package
// free of any WASM runtime dependency.
package encoding

import (
	"github.com/f3db/f3/ferrors"
	"github.com/f3db/f3/tagbin"
)

// Kind names a codec variant in the rose-tree node vocabulary: {built-in
// bit-packed, cascaded, custom-WASM} plus the structural wrapper kinds
// (nullable, list) used to compose them.
type Kind uint8

const (
	KindBitPacked Kind = iota
	KindPlain
	KindZstd
	KindDictionary
	KindNullable
	KindList
	KindCustomWASM
)

func (k Kind) String() string {
	switch k {
	case KindBitPacked:
		return "bitpacked"
	case KindPlain:
		return "plain"
	case KindZstd:
		return "zstd"
	case KindDictionary:
		return "dictionary"
	case KindNullable:
		return "nullable"
	case KindList:
		return "list"
	case KindCustomWASM:
		return "custom-wasm"
	default:
		return "unknown"
	}
}

const (
	fieldKind     uint16 = 1
	fieldMeta     uint16 = 2
	fieldChildren uint16 = 3
)

// Tree is the rose tree describing how an EncUnit's flattened buffer list
// composes into a decoded Arrow array. Leaves carry buffers (consumed in
// depth-first order from the EncUnit's buffer list); internal nodes
// (nullable, list) compose children.
type Tree struct {
	Kind Kind
	// Meta is codec-specific metadata: mini-block offsets and bit widths
	// for KindBitPacked, the WASM id for KindCustomWASM, the local
	// dictionary's entry count (u32) for KindDictionary, etc.
	Meta     []byte
	Children []*Tree
}

// Leaf constructs a leaf node with no children.
func Leaf(kind Kind, meta []byte) *Tree {
	return &Tree{Kind: kind, Meta: meta}
}

// NumLeafBuffers returns how many buffers this subtree consumes, i.e. the
// number of leaves in depth-first order.
func (t *Tree) NumLeafBuffers() int {
	if len(t.Children) == 0 {
		return 1
	}
	n := 0
	for _, c := range t.Children {
		n += c.NumLeafBuffers()
	}
	return n
}

func (t *Tree) toWriter() *tagbin.Writer {
	w := tagbin.NewWriter()
	w.PutUint32(fieldKind, uint32(t.Kind))
	if len(t.Meta) > 0 {
		w.PutBytes(fieldMeta, t.Meta)
	}
	if len(t.Children) > 0 {
		children := make([]*tagbin.Writer, len(t.Children))
		for i, c := range t.Children {
			children[i] = c.toWriter()
		}
		w.PutRecordList(fieldChildren, children)
	}
	return w
}

// SerializeTree encodes a Tree to its tagged binary form (the `tree_bytes`
// payload in the EncUnit layout).
func SerializeTree(t *Tree) []byte {
	return t.toWriter().Bytes()
}

// DeserializeTree reverses SerializeTree, failing with ferrors.ParseError on
// malformed input.
func DeserializeTree(buf []byte) (*Tree, error) {
	fields, err := tagbin.Fields(buf)
	if err != nil {
		return nil, err
	}
	kindField, ok := fields[fieldKind]
	if !ok {
		return nil, ferrors.ParseErrorf("encoding tree missing kind field")
	}
	t := &Tree{Kind: Kind(kindField.Varint)}
	if meta, ok := fields[fieldMeta]; ok {
		t.Meta = meta.Bytes
	}
	if children, ok := fields[fieldChildren]; ok {
		for _, rec := range children.Records {
			child, err := DeserializeTree(rec)
			if err != nil {
				return nil, err
			}
			t.Children = append(t.Children, child)
		}
	}
	return t, nil
}
