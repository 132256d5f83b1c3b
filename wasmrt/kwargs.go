package wasmrt

import (
	"encoding/binary"

	"github.com/f3db/f3/ferrors"
)

// KWArg is one key/word pair passed to a guest init call. "word" follows the
// original decoder terminology: an opaque byte string, not necessarily text.
type KWArg struct {
	Key  []byte
	Word []byte
}

// EncodeKWArgs serializes kwargs per the host->guest wire format:
// num_keys:i32 | key_lens:[i32;N] | word_lens:[i32;N] | key0 | word0 | ...
func EncodeKWArgs(args []KWArg) []byte {
	n := len(args)
	buf := make([]byte, 4+8*n)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(n))
	for i, a := range args {
		binary.LittleEndian.PutUint32(buf[4+4*i:], uint32(len(a.Key)))
		binary.LittleEndian.PutUint32(buf[4+4*n+4*i:], uint32(len(a.Word)))
	}
	for _, a := range args {
		buf = append(buf, a.Key...)
		buf = append(buf, a.Word...)
	}
	return buf
}

// DecodeKWArgs parses the wire format produced by EncodeKWArgs. Only used by
// tests and by guest-side fixtures embedded for testing; the runtime itself
// only ever serializes kwargs for the guest.
func DecodeKWArgs(buf []byte) ([]KWArg, error) {
	if len(buf) < 4 {
		return nil, ferrors.ParseErrorf("kwargs: truncated header")
	}
	n := int(binary.LittleEndian.Uint32(buf[0:4]))
	headerLen := 4 + 8*n
	if len(buf) < headerLen {
		return nil, ferrors.ParseErrorf("kwargs: truncated length arrays")
	}
	keyLens := make([]int, n)
	wordLens := make([]int, n)
	for i := 0; i < n; i++ {
		keyLens[i] = int(binary.LittleEndian.Uint32(buf[4+4*i:]))
		wordLens[i] = int(binary.LittleEndian.Uint32(buf[4+4*n+4*i:]))
	}
	out := make([]KWArg, n)
	off := headerLen
	for i := 0; i < n; i++ {
		if off+keyLens[i]+wordLens[i] > len(buf) {
			return nil, ferrors.ParseErrorf("kwargs: truncated payload")
		}
		out[i].Key = buf[off : off+keyLens[i]]
		off += keyLens[i]
		out[i].Word = buf[off : off+wordLens[i]]
		off += wordLens[i]
	}
	return out, nil
}
