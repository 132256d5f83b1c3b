package encoding

// WrapNullable composes a validity child (one bit per row, little-endian
// within bytes) and a data child into a KindNullable node, and prepends the
// validity buffer to the data buffers.
func WrapNullable(validity []byte, dataTree *Tree, dataBuffers [][]byte) (*Tree, [][]byte) {
	tree := &Tree{
		Kind: KindNullable,
		Children: []*Tree{
			Leaf(KindPlain, nil),
			dataTree,
		},
	}
	buffers := make([][]byte, 0, len(dataBuffers)+1)
	buffers = append(buffers, validity)
	buffers = append(buffers, dataBuffers...)
	return tree, buffers
}

// UnwrapNullable splits a KindNullable node's children/buffers back into
// the validity bitmap and the data subtree + its buffers.
func UnwrapNullable(tree *Tree, buffers [][]byte) (validity []byte, dataTree *Tree, dataBuffers [][]byte) {
	return buffers[0], tree.Children[1], buffers[1:]
}

// IsValid reports whether row i is non-null given a validity bitmap (nil
// bitmap means "all valid").
func IsValid(validity []byte, i int) bool {
	if validity == nil {
		return true
	}
	return validity[i/8]&(1<<uint(i%8)) != 0
}

// SetValid sets or clears the bit for row i in a validity bitmap sized for
// n rows.
func SetValid(validity []byte, i int, valid bool) {
	if valid {
		validity[i/8] |= 1 << uint(i%8)
	} else {
		validity[i/8] &^= 1 << uint(i%8)
	}
}

// NewValidityBitmap allocates a bitmap for n rows, every row initially
// valid.
func NewValidityBitmap(n int) []byte {
	buf := make([]byte, (n+7)/8)
	for i := range buf {
		buf[i] = 0xFF
	}
	return buf
}
