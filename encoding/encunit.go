package encoding

import (
	"encoding/binary"

	"github.com/f3db/f3/ferrors"
)

// Alignment is the byte boundary every EncUnit starts and ends on.
const Alignment = 4

// EncUnit is the finest unit of decode (C3 data model): a self-contained
// byte region carrying a count of inner buffers, each buffer's size, a
// serialized encoding tree, alignment padding, the concatenated buffers,
// and final padding so the next EncUnit is 4-byte aligned.
type EncUnit struct {
	Tree    *Tree
	Buffers [][]byte
	// NumRows is not part of the serialized payload (it lives in the
	// column-chunk metadata instead) but travels with the EncUnit in memory
	// for convenience.
	NumRows int
}

// PaddingSize returns how many zero bytes are needed to round n up to the
// given alignment.
func PaddingSize(n, alignment int) int {
	rem := n % alignment
	if rem == 0 {
		return 0
	}
	return alignment - rem
}

// Serialize writes the EncUnit in its on-disk layout:
//
//	num_buffers:u32 | [buffer_size:u32 × num_buffers] | tree_len:u32 | tree_bytes
//	| padding to 4B | concatenation of buffers | padding to 4B
func (u *EncUnit) Serialize() []byte {
	treeBytes := SerializeTree(u.Tree)

	header := 4 + len(u.Buffers)*4 + 4 + len(treeBytes)
	pad1 := PaddingSize(header, Alignment)

	dataLen := 0
	for _, b := range u.Buffers {
		dataLen += len(b)
	}
	pad2 := PaddingSize(dataLen, Alignment)

	out := make([]byte, 0, header+pad1+dataLen+pad2)
	out = binary.LittleEndian.AppendUint32(out, uint32(len(u.Buffers)))
	for _, b := range u.Buffers {
		out = binary.LittleEndian.AppendUint32(out, uint32(len(b)))
	}
	out = binary.LittleEndian.AppendUint32(out, uint32(len(treeBytes)))
	out = append(out, treeBytes...)
	out = append(out, make([]byte, pad1)...)
	for _, b := range u.Buffers {
		out = append(out, b...)
	}
	out = append(out, make([]byte, pad2)...)
	return out
}

// Deserialize reverses Serialize. It fails with ferrors.ParseError on
// truncation, a size mismatch, or an unparseable tree. The returned
// EncUnit's Buffers alias into buf (zero-copy).
func Deserialize(buf []byte) (*EncUnit, error) {
	if len(buf) < 8 {
		return nil, ferrors.ParseErrorf("encunit: too short to contain a header (%d bytes)", len(buf))
	}
	numBuffers := int(binary.LittleEndian.Uint32(buf[0:4]))
	pos := 4

	if pos+numBuffers*4 > len(buf) {
		return nil, ferrors.ParseErrorf("encunit: truncated buffer-size table")
	}
	sizes := make([]int, numBuffers)
	for i := 0; i < numBuffers; i++ {
		sizes[i] = int(binary.LittleEndian.Uint32(buf[pos:]))
		pos += 4
	}

	if pos+4 > len(buf) {
		return nil, ferrors.ParseErrorf("encunit: truncated tree length")
	}
	treeLen := int(binary.LittleEndian.Uint32(buf[pos:]))
	pos += 4

	if pos+treeLen > len(buf) {
		return nil, ferrors.ParseErrorf("encunit: truncated encoding tree")
	}
	treeBytes := buf[pos : pos+treeLen]
	pos += treeLen

	header := 4 + numBuffers*4 + 4 + treeLen
	pos += PaddingSize(header, Alignment)

	tree, err := DeserializeTree(treeBytes)
	if err != nil {
		return nil, err
	}

	buffers := make([][]byte, numBuffers)
	for i, size := range sizes {
		if pos+size > len(buf) {
			return nil, ferrors.ParseErrorf("encunit: buffer %d truncated (want %d bytes, have %d)", i, size, len(buf)-pos)
		}
		buffers[i] = buf[pos : pos+size]
		pos += size
	}

	return &EncUnit{Tree: tree, Buffers: buffers}, nil
}

// BufferOffsets returns the byte offset (relative to the start of the
// concatenated-buffers region) of each buffer, derived by prefix sum over
// the sizes table, giving O(k) random access to the k-th buffer.
func BufferOffsets(sizes []int) []int {
	offsets := make([]int, len(sizes))
	sum := 0
	for i, s := range sizes {
		offsets[i] = sum
		sum += s
	}
	return offsets
}
