// Package checksum implements the streaming non-cryptographic checksum kit
// (C2) used at multiple granularities: per column chunk, over the schema
// bytes, and over the whole file prefix. It wraps cespare/xxhash/v2 for fast,
// non-cryptographic digests.
package checksum

import "github.com/cespare/xxhash/v2"

// Type identifies the checksum family stored in the postscript. Only the
// xxhash family is currently implemented.
type Type uint8

const (
	TypeXXHash Type = 0
)

// Digest is a streaming checksum accumulator. Two Digests fed identical
// concatenated byte streams, regardless of how the input was chunked
// across Update calls, must Finalize to the same value.
type Digest struct {
	d xxhash.Digest
}

// New returns a fresh Digest ready to accept Update calls.
func New() *Digest {
	d := &Digest{}
	d.d.Reset()
	return d
}

// Update feeds more bytes into the running hash.
func (d *Digest) Update(p []byte) {
	_, _ = d.d.Write(p)
}

// Finalize returns the checksum of all bytes seen so far. It does not reset
// the digest; call Reset explicitly to reuse it for a new stream.
func (d *Digest) Finalize() uint64 {
	return d.d.Sum64()
}

// Reset returns the digest to its initial state.
func (d *Digest) Reset() {
	d.d.Reset()
}

// Sum64 is a convenience one-shot checksum over a single byte slice.
func Sum64(p []byte) uint64 {
	return xxhash.Sum64(p)
}
