// Package bitpacked implements the bit-packed codec (C4) used for unsigned
// 32-bit fixed-width columns. Values are chopped into 1024-value
// mini-blocks, each packed at its own minimal bit width.
//
// Note on layout: a FastLanes-style 16x64 transposed SIMD layout is the
// usual way to arrange mini-block bits for vectorized decode. No Go
// FastLanes binding is available, so this package packs
// each mini-block as a plain contiguous bitstream instead — same
// mini-block framing, bit-width-per-block metadata, and round-trip
// semantics, but without the SIMD-oriented transpose. The transpose is a
// decode vectorization detail; it does not change what bit width is chosen
// or what values come back out.
package bitpacked

import (
	"encoding/binary"
	"math/bits"

	"github.com/f3db/f3/ferrors"
)

// MiniBlockSize is the number of values packed independently at their own
// bit width.
const MiniBlockSize = 1024

// MaxBitWidth is the largest bit width this codec can represent (u32).
const MaxBitWidth = 32

// Metadata is {num_values, mini_block_offsets[], bit_width_per_mini_block[]}.
type Metadata struct {
	NumValues        uint32
	MiniBlockOffsets []uint32 // in u32 words, len == numMiniBlocks+1
	BitWidthPerBlock []uint8
}

// Encode serializes Metadata to its on-wire form:
// num_values:u32 | mini_block_offsets:[u32] | bit_width_per_mini_block:[u8]
func (m *Metadata) Encode() []byte {
	out := make([]byte, 0, 4+4*len(m.MiniBlockOffsets)+len(m.BitWidthPerBlock))
	out = binary.LittleEndian.AppendUint32(out, m.NumValues)
	for _, off := range m.MiniBlockOffsets {
		out = binary.LittleEndian.AppendUint32(out, off)
	}
	out = append(out, m.BitWidthPerBlock...)
	return out
}

// DecodeMetadata reverses Encode.
func DecodeMetadata(buf []byte) (*Metadata, error) {
	if len(buf) < 4 {
		return nil, ferrors.ParseErrorf("bitpacked: metadata too short")
	}
	numValues := binary.LittleEndian.Uint32(buf[0:4])
	numMiniBlocks := ceilDiv(int(numValues), MiniBlockSize)
	pos := 4
	offsetsLen := (numMiniBlocks + 1) * 4
	if pos+offsetsLen > len(buf) {
		return nil, ferrors.ParseErrorf("bitpacked: truncated mini-block offsets")
	}
	offsets := make([]uint32, numMiniBlocks+1)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint32(buf[pos:])
		pos += 4
	}
	if pos+numMiniBlocks > len(buf) {
		return nil, ferrors.ParseErrorf("bitpacked: truncated bit-width table")
	}
	widths := make([]uint8, numMiniBlocks)
	copy(widths, buf[pos:pos+numMiniBlocks])
	return &Metadata{NumValues: numValues, MiniBlockOffsets: offsets, BitWidthPerBlock: widths}, nil
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}

func bitWidth(v uint32) uint8 {
	if v == 0 {
		return 0
	}
	return uint8(32 - bits.LeadingZeros32(v))
}

// Encode packs values (whose length need not be a multiple of
// MiniBlockSize; the final mini-block holds the remainder) and returns the
// metadata plus the packed u32 words.
func Encode(values []uint32) (*Metadata, []uint32) {
	numMiniBlocks := ceilDiv(len(values), MiniBlockSize)
	widths := make([]uint8, 0, numMiniBlocks)
	offsets := make([]uint32, 0, numMiniBlocks+1)
	var packed []uint32

	offsets = append(offsets, 0)
	for start := 0; start < len(values); start += MiniBlockSize {
		end := start + MiniBlockSize
		if end > len(values) {
			end = len(values)
		}
		block := values[start:end]
		var w uint8
		for _, v := range block {
			if bw := bitWidth(v); bw > w {
				w = bw
			}
		}
		widths = append(widths, w)
		packed = append(packed, packMiniBlock(block, w)...)
		offsets = append(offsets, uint32(len(packed)))
	}

	return &Metadata{
		NumValues:        uint32(len(values)),
		MiniBlockOffsets: offsets,
		BitWidthPerBlock: widths,
	}, packed
}

// Decode reverses Encode, rejecting bit widths greater than 32.
func Decode(meta *Metadata, packed []uint32) ([]uint32, error) {
	out := make([]uint32, meta.NumValues)
	for i := 1; i < len(meta.MiniBlockOffsets); i++ {
		w := meta.BitWidthPerBlock[i-1]
		if w > MaxBitWidth {
			return nil, ferrors.ParseErrorf("bitpacked: bit width %d exceeds %d", w, MaxBitWidth)
		}
		start := meta.MiniBlockOffsets[i-1]
		end := meta.MiniBlockOffsets[i]
		if int(end) > len(packed) {
			return nil, ferrors.EOFf("bitpacked: packed words truncated")
		}
		blockStart := (i - 1) * MiniBlockSize
		blockEnd := blockStart + MiniBlockSize
		if blockEnd > len(out) {
			blockEnd = len(out)
		}
		unpackMiniBlock(packed[start:end], int(w), out[blockStart:blockEnd])
	}
	return out, nil
}

// packMiniBlock packs up to MiniBlockSize values at width bits each into a
// contiguous little-endian bitstream of u32 words.
func packMiniBlock(values []uint32, width uint8) []uint32 {
	if width == 0 {
		return nil
	}
	totalBits := len(values) * int(width)
	out := make([]uint32, ceilDiv(totalBits, 32))

	var acc uint64
	var accBits uint
	word := 0
	for _, v := range values {
		acc |= uint64(v) << accBits
		accBits += uint(width)
		for accBits >= 32 {
			out[word] = uint32(acc)
			word++
			acc >>= 32
			accBits -= 32
		}
	}
	if accBits > 0 {
		out[word] = uint32(acc)
	}
	return out
}

func unpackMiniBlock(packed []uint32, width int, out []uint32) {
	if width == 0 {
		for i := range out {
			out[i] = 0
		}
		return
	}
	mask := uint64(1)<<uint(width) - 1
	var acc uint64
	var accBits uint
	word := 0
	for i := range out {
		for accBits < uint(width) {
			if word < len(packed) {
				acc |= uint64(packed[word]) << accBits
				word++
			}
			accBits += 32
		}
		out[i] = uint32(acc & mask)
		acc >>= uint(width)
		accBits -= uint(width)
	}
}
