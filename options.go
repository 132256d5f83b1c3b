package f3

import (
	"github.com/apache/arrow/go/v17/arrow"

	"github.com/f3db/f3/chunk"
	"github.com/f3db/f3/checksum"
	"github.com/f3db/f3/wasmrt"
)

// DictionaryMode selects how dictionary-encodable columns share their
// dictionary chunks across a file.
type DictionaryMode uint8

const (
	DictionaryNone DictionaryMode = iota
	DictionaryEncoderLocal
	DictionaryGlobal
	DictionaryGlobalMultiColSharing
)

// WasmLib names one registered custom encoding: the guest module used for
// decode (and, symmetrically in this implementation, for encode too — see
// wasmrt.Adapter's doc comment).
type WasmLib struct {
	WasmID       string
	DecodeBinary []byte
}

// WriterConfig is the options record that drives the writer (C8): row-group
// and EncUnit sizing, compression, checksum, dictionary mode, and custom
// encoding registration. Construct with NewWriterConfig and Option funcs.
type WriterConfig struct {
	RowGroupSize int
	IOUnitSize   int

	Compression    chunk.Compression
	ChecksumType   checksum.Type
	EnableChecksum bool

	DictionaryMode DictionaryMode

	CustomEncUnitLen map[int]int

	WasmLibs         map[string]WasmLib
	TypeToWasmID     map[arrow.Type]string
	WriteBuiltinWasm bool
}

const (
	defaultRowGroupSize = 1 << 20
	defaultIOUnitSize   = 1 << 16
)

// Option configures a WriterConfig.
type Option func(*WriterConfig)

// NewWriterConfig builds a WriterConfig with the default row-group and
// EncUnit sizing, xxhash checksums, and no dictionary sharing, then applies
// opts in order.
func NewWriterConfig(opts ...Option) *WriterConfig {
	cfg := &WriterConfig{
		RowGroupSize:     defaultRowGroupSize,
		IOUnitSize:       defaultIOUnitSize,
		Compression:      chunk.CompressionZstd,
		ChecksumType:     checksum.TypeXXHash,
		DictionaryMode:   DictionaryNone,
		CustomEncUnitLen: map[int]int{},
		WasmLibs:         map[string]WasmLib{},
		TypeToWasmID:     map[arrow.Type]string{},
	}
	for _, o := range opts {
		o(cfg)
	}
	return cfg
}

// WithRowGroupSize sets the target row count per row group.
func WithRowGroupSize(n int) Option {
	return func(c *WriterConfig) { c.RowGroupSize = n }
}

// WithIOUnitSize sets the target EncUnit row count.
func WithIOUnitSize(n int) Option {
	return func(c *WriterConfig) { c.IOUnitSize = n }
}

// WithCompression sets the per-chunk block compressor.
func WithCompression(c chunk.Compression) Option {
	return func(cfg *WriterConfig) { cfg.Compression = c }
}

// WithChecksum enables per-chunk checksumming.
func WithChecksum(enabled bool) Option {
	return func(c *WriterConfig) { c.EnableChecksum = enabled }
}

// WithDictionaryMode sets the dictionary-encoding strategy.
func WithDictionaryMode(m DictionaryMode) Option {
	return func(c *WriterConfig) { c.DictionaryMode = m }
}

// WithCustomEncUnitLen overrides the EncUnit row count for one leaf column
// index, used for nested types whose natural unit differs from the file
// default.
func WithCustomEncUnitLen(columnIndex, rows int) Option {
	return func(c *WriterConfig) { c.CustomEncUnitLen[columnIndex] = rows }
}

// WithCustomEncoding registers a WASM decoder module for wasmID and routes
// dtype's leaf encoding through it instead of the built-in table.
func WithCustomEncoding(dtype arrow.Type, wasmID string, lib WasmLib) Option {
	return func(c *WriterConfig) {
		c.WasmLibs[wasmID] = lib
		c.TypeToWasmID[dtype] = wasmID
	}
}

// WithBuiltinWasm sets WriterConfig.WriteBuiltinWasm. Writer does not read
// this field: no built-in decoder module is emitted into the file,
// whatever its value.
func WithBuiltinWasm(enabled bool) Option {
	return func(c *WriterConfig) { c.WriteBuiltinWasm = enabled }
}

// ReadOptions configures a Reader's verification behavior.
type ReadOptions struct {
	VerifyIOUnitChecksum bool
	VerifyFileChecksum   bool
	WasmConfig           wasmrt.Config
}

// DefaultReadOptions verifies both per-chunk and file-level checksums.
func DefaultReadOptions() ReadOptions {
	return ReadOptions{VerifyIOUnitChecksum: true, VerifyFileChecksum: true}
}

// Projection selects which leaf columns a Reader materializes.
type Projection struct {
	// All, when true, ignores Columns and selects every leaf column.
	All     bool
	Columns []int
}

// AllColumns is the Projection that selects every leaf column.
func AllColumns() Projection { return Projection{All: true} }

// Selection selects which rows a Reader materializes.
type Selection struct {
	// All, when true, ignores Rows and selects every row.
	All  bool
	Rows []int
}

// AllRows is the Selection that selects every row.
func AllRows() Selection { return Selection{All: true} }
