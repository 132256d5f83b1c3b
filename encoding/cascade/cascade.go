// Package cascade implements the cascaded codec (C4) used for broad
// primitive and string/UTF-8 types. The original Rust implementation
// delegates to the Vortex cascading compressor, which has no Go binding in
// this corpus (see SPEC_FULL.md, C4). This package grounds "cascaded" in its
// literal sense instead: a small decision tree of its own, built on
// klauspost/compress/zstd, that chooses among {Plain, Zstd, Dictionary}
// leaves and records the choice as nodes in the same encoding.Tree that C3
// serializes — cascading expressed as tree depth rather than as an
// external compressor's internal format.
package cascade

import (
	"bytes"
	"encoding/binary"

	"github.com/klauspost/compress/zstd"

	"github.com/f3db/f3/encoding"
	"github.com/f3db/f3/encoding/bitpacked"
	"github.com/f3db/f3/ferrors"
)

// DictionaryThreshold is the distinct/total value ratio below which a
// string column is dictionary-encoded instead of plain/zstd-compressed.
const DictionaryThreshold = 0.1

var encoder, _ = zstd.NewWriter(nil)
var decoder, _ = zstd.NewReader(nil)

func compress(raw []byte) []byte {
	return encoder.EncodeAll(raw, make([]byte, 0, len(raw)))
}

func decompress(compressed []byte, hint int) ([]byte, error) {
	out, err := decoder.DecodeAll(compressed, make([]byte, 0, hint))
	if err != nil {
		return nil, ferrors.Externalf(err)
	}
	return out, nil
}

// EncodeBytes chooses between Plain and Zstd for a flat byte buffer,
// picking whichever is smaller. It returns the tree node (a single leaf)
// and the one buffer that leaf consumes.
func EncodeBytes(raw []byte) (*encoding.Tree, []byte) {
	zstdBytes := compress(raw)
	if len(zstdBytes) < len(raw) {
		meta := binary.LittleEndian.AppendUint32(nil, uint32(len(raw)))
		return encoding.Leaf(encoding.KindZstd, meta), zstdBytes
	}
	return encoding.Leaf(encoding.KindPlain, nil), raw
}

// DecodeBytes reverses EncodeBytes.
func DecodeBytes(tree *encoding.Tree, buf []byte) ([]byte, error) {
	switch tree.Kind {
	case encoding.KindPlain:
		return buf, nil
	case encoding.KindZstd:
		if len(tree.Meta) < 4 {
			return nil, ferrors.ParseErrorf("cascade: zstd leaf missing decompressed-size metadata")
		}
		hint := int(binary.LittleEndian.Uint32(tree.Meta))
		return decompress(buf, hint)
	default:
		return nil, ferrors.ParseErrorf("cascade: unexpected leaf kind %s", tree.Kind)
	}
}

// EncodeStrings encodes a slice of (possibly nil, meaning empty) byte
// values as offsets ([]int32, treated as the data buffer of a primitive-32
// column) plus a data buffer, choosing a dictionary encoding when the
// distinct/total ratio is below DictionaryThreshold.
func EncodeStrings(values [][]byte) (*encoding.Tree, [][]byte) {
	if shouldDictionaryEncode(values) {
		return encodeDictionary(values)
	}
	return encodePlainStrings(values)
}

func shouldDictionaryEncode(values [][]byte) bool {
	if len(values) == 0 {
		return false
	}
	seen := map[string]struct{}{}
	for _, v := range values {
		seen[string(v)] = struct{}{}
		if float64(len(seen))/float64(len(values)) >= DictionaryThreshold {
			return false
		}
	}
	return true
}

func encodePlainStrings(values [][]byte) (*encoding.Tree, [][]byte) {
	offsets := make([]byte, 0, (len(values)+1)*4)
	var data bytes.Buffer
	off := int32(0)
	offsets = binary.LittleEndian.AppendUint32(offsets, uint32(off))
	for _, v := range values {
		data.Write(v)
		off += int32(len(v))
		offsets = binary.LittleEndian.AppendUint32(offsets, uint32(off))
	}

	offsetsTree, offsetsBuf := EncodeBytes(offsets)
	dataTree, dataBuf := EncodeBytes(data.Bytes())

	tree := &encoding.Tree{
		Kind:     encoding.KindList,
		Children: []*encoding.Tree{offsetsTree, dataTree},
	}
	return tree, [][]byte{offsetsBuf, dataBuf}
}

// encodeDictionary builds a local dictionary of distinct values and
// bit-packs the per-row indices into the dictionary.
func encodeDictionary(values [][]byte) (*encoding.Tree, [][]byte) {
	index := map[string]uint32{}
	var dict [][]byte
	codes := make([]uint32, len(values))
	for i, v := range values {
		key := string(v)
		code, ok := index[key]
		if !ok {
			code = uint32(len(dict))
			index[key] = code
			dict = append(dict, v)
		}
		codes[i] = code
	}

	codesMeta, codesPacked := bitpacked.Encode(codes)
	codesMetaBuf := codesMeta.Encode()
	codesBuf := packedToBytes(codesPacked)

	dictTree, dictBufs := encodePlainStrings(dict)

	tree := &encoding.Tree{
		Kind: encoding.KindDictionary,
		Meta: encodeUint32(uint32(len(dict))),
		Children: []*encoding.Tree{
			{Kind: encoding.KindBitPacked, Meta: codesMetaBuf},
			dictTree,
		},
	}
	bufs := [][]byte{codesBuf}
	bufs = append(bufs, dictBufs...)
	return tree, bufs
}

// DecodeStrings reverses EncodeStrings.
func DecodeStrings(tree *encoding.Tree, buffers [][]byte) ([][]byte, error) {
	switch tree.Kind {
	case encoding.KindList:
		if len(tree.Children) != 2 || len(buffers) != 2 {
			return nil, ferrors.ParseErrorf("cascade: malformed plain-string tree")
		}
		offsetsRaw, err := DecodeBytes(tree.Children[0], buffers[0])
		if err != nil {
			return nil, err
		}
		dataRaw, err := DecodeBytes(tree.Children[1], buffers[1])
		if err != nil {
			return nil, err
		}
		return splitByOffsets(offsetsRaw, dataRaw)
	case encoding.KindDictionary:
		if len(tree.Children) != 2 || len(buffers) < 3 {
			return nil, ferrors.ParseErrorf("cascade: malformed dictionary tree")
		}
		codesMeta, err := bitpacked.DecodeMetadata(tree.Children[0].Meta)
		if err != nil {
			return nil, err
		}
		codes, err := bitpacked.Decode(codesMeta, bytesToPacked(buffers[0]))
		if err != nil {
			return nil, err
		}
		dict, err := DecodeStrings(tree.Children[1], buffers[1:])
		if err != nil {
			return nil, err
		}
		out := make([][]byte, len(codes))
		for i, c := range codes {
			if int(c) >= len(dict) {
				return nil, ferrors.IndexOutOfBoundErr(int(c), len(dict))
			}
			out[i] = dict[c]
		}
		return out, nil
	default:
		return nil, ferrors.ParseErrorf("cascade: unexpected string tree kind %s", tree.Kind)
	}
}

func splitByOffsets(offsetsRaw, dataRaw []byte) ([][]byte, error) {
	if len(offsetsRaw)%4 != 0 || len(offsetsRaw) < 4 {
		return nil, ferrors.ParseErrorf("cascade: malformed offsets buffer")
	}
	n := len(offsetsRaw)/4 - 1
	out := make([][]byte, n)
	prev := binary.LittleEndian.Uint32(offsetsRaw[0:4])
	for i := 0; i < n; i++ {
		cur := binary.LittleEndian.Uint32(offsetsRaw[(i+1)*4:])
		if int(cur) > len(dataRaw) || cur < prev {
			return nil, ferrors.ParseErrorf("cascade: offsets out of range")
		}
		out[i] = dataRaw[prev:cur]
		prev = cur
	}
	return out, nil
}

func packedToBytes(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

func bytesToPacked(buf []byte) []uint32 {
	out := make([]uint32, len(buf)/4)
	for i := range out {
		out[i] = binary.LittleEndian.Uint32(buf[i*4:])
	}
	return out
}

func encodeUint32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}
