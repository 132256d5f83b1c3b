package f3

import (
	"context"
	"encoding/binary"
	"io"
	"slices"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/f3db/f3/checksum"
	"github.com/f3db/f3/chunk"
	"github.com/f3db/f3/dictionary"
	"github.com/f3db/f3/encoding"
	"github.com/f3db/f3/ferrors"
	"github.com/f3db/f3/footer"
	"github.com/f3db/f3/wasmrt"
)

// dictionarySlot is one entry of the writer's in-progress shared-dictionary
// table. values holds every distinct value promoted into the slot so far,
// in the same order as their concatenation across chunks (chunk.Metadata
// already records the chunk read order, so a reader concatenating them
// lands on the same global ordinal used by indexOf here). The sketch is
// recomputed over the full value set whenever it grows, so later
// candidates are compared against everything the slot currently covers.
type dictionarySlot struct {
	sketch *dictionary.BottomKSketch
	values []int32
	chunks []chunk.Metadata
}

// MultiColSharingThreshold is the estimated-Jaccard cutoff above which two
// columns' dictionaries are considered similar enough to share a slot in
// GlobalMultiColSharing mode.
const MultiColSharingThreshold = 0.3

type writerMetrics struct {
	rowGroupsFlushed prometheus.Counter
	rowsWritten      prometheus.Counter
	bytesWritten     prometheus.Counter
}

// Writer implements the file writer (C8): it cuts each row batch into row
// groups, encodes each leaf column through the built-in or custom codec,
// assembles column chunks, and emits the footer and postscript once the
// caller closes it. A Writer is not safe for concurrent use.
type Writer struct {
	w      io.Writer
	schema *arrow.Schema
	cfg    *WriterConfig
	mem    memory.Allocator
	logger log.Logger

	manager *wasmrt.Manager
	custom  *wasmrt.Adapter

	offset    uint64
	prefix    *checksum.Digest
	schemaIPC []byte

	rowGroups []footer.RowGroup
	dictSlots []*dictionarySlot

	metrics *writerMetrics
	closed  bool
}

// WriterOption configures ancillary Writer dependencies not carried by
// WriterConfig (logger, metrics registry, allocator).
type WriterOption func(*Writer)

// WithLogger sets the writer's logger.
func WithLogger(logger log.Logger) WriterOption {
	return func(w *Writer) { w.logger = logger }
}

// WithRegisterer sets the Prometheus registerer metrics are registered
// against.
func WithRegisterer(reg prometheus.Registerer) WriterOption {
	return func(w *Writer) { w.registerMetrics(reg) }
}

// WithAllocator sets the Arrow memory allocator used for intermediate
// buffers.
func WithAllocator(mem memory.Allocator) WriterOption {
	return func(w *Writer) { w.mem = mem }
}

// NewWriter opens a Writer over sink, ready to accept record batches
// conforming to schema.
func NewWriter(sink io.Writer, schema *arrow.Schema, cfg *WriterConfig, opts ...WriterOption) (*Writer, error) {
	if cfg == nil {
		cfg = NewWriterConfig()
	}
	schemaIPC, err := footer.SchemaToIPC(schema)
	if err != nil {
		return nil, err
	}

	manager := wasmrt.NewManager()
	for wasmID, lib := range cfg.WasmLibs {
		if err := manager.Load(context.Background(), wasmID, lib.DecodeBinary, wasmrt.Config{}); err != nil {
			return nil, err
		}
	}

	w := &Writer{
		w:         sink,
		schema:    schema,
		cfg:       cfg,
		mem:       memory.NewGoAllocator(),
		logger:    log.NewNopLogger(),
		manager:   manager,
		custom:    wasmrt.NewAdapter(manager),
		prefix:    checksum.New(),
		schemaIPC: schemaIPC,
	}
	for _, o := range opts {
		o(w)
	}
	if w.metrics == nil {
		w.registerMetrics(prometheus.NewRegistry())
	}
	return w, nil
}

func (w *Writer) registerMetrics(reg prometheus.Registerer) {
	w.metrics = &writerMetrics{
		rowGroupsFlushed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "f3_writer_row_groups_flushed_total",
			Help: "Number of row groups flushed to the sink.",
		}),
		rowsWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "f3_writer_rows_written_total",
			Help: "Number of rows written across all row groups.",
		}),
		bytesWritten: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "f3_writer_bytes_written_total",
			Help: "Number of bytes written to the sink, including the footer and postscript.",
		}),
	}
}

// WriteRecord appends rec to the file, slicing it into one or more row
// groups of at most cfg.RowGroupSize rows each and flushing every slice
// immediately, including a final slice shorter than cfg.RowGroupSize. Rows
// are not carried over to the next call, so every call starts a new row
// group. rec must have as many columns as the file schema.
func (w *Writer) WriteRecord(rec arrow.Record) error {
	if w.closed {
		return ferrors.Generalf("f3: write on closed writer")
	}
	if int(rec.NumCols()) != len(w.schema.Fields()) {
		return ferrors.Generalf("f3: record has %d columns, schema has %d", rec.NumCols(), len(w.schema.Fields()))
	}

	total := rec.NumRows()
	target := int64(w.cfg.RowGroupSize)
	for offset := int64(0); offset < total; offset += target {
		end := offset + target
		if end > total {
			end = total
		}
		slice := rec.NewSlice(offset, end)
		err := w.flushRowGroup(slice)
		slice.Release()
		if err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) flushRowGroup(rec arrow.Record) error {
	columns := make([]chunk.Metadata, rec.NumCols())
	for i := 0; i < int(rec.NumCols()); i++ {
		meta, err := w.flushColumn(i, rec.Column(i))
		if err != nil {
			return err
		}
		columns[i] = meta
	}
	w.rowGroups = append(w.rowGroups, footer.RowGroup{
		RowCount: int(rec.NumRows()),
		Columns:  columns,
	})
	w.metrics.rowGroupsFlushed.Inc()
	w.metrics.rowsWritten.Add(float64(rec.NumRows()))
	level.Debug(w.logger).Log("msg", "flushed row group", "rows", rec.NumRows(), "columns", rec.NumCols())
	return nil
}

func (w *Writer) flushColumn(columnIndex int, arr arrow.Array) (chunk.Metadata, error) {
	if values, ok := w.dictionaryEligible(columnIndex, arr); ok {
		return w.flushDictionaryColumn(columnIndex, arr, values)
	}

	units, err := w.encodeUnits(columnIndex, arr)
	if err != nil {
		return chunk.Metadata{}, err
	}
	return w.assembleAndWrite(units)
}

func (w *Writer) encodeOptions() encoding.Options {
	return encoding.Options{
		Mem:    w.mem,
		Custom: w.custom,
		WASMIDForType: func(dtype arrow.DataType) (string, bool) {
			id, ok := w.cfg.TypeToWasmID[dtype.ID()]
			return id, ok
		},
	}
}

// encodeUnits splits arr into EncUnits of at most cfg.IOUnitSize rows
// (overridable per column index), the last one holding the remainder.
func (w *Writer) encodeUnits(columnIndex int, arr arrow.Array) ([]*encoding.EncUnit, error) {
	unitLen := w.cfg.IOUnitSize
	if custom, ok := w.cfg.CustomEncUnitLen[columnIndex]; ok {
		unitLen = custom
	}
	if unitLen <= 0 {
		unitLen = defaultIOUnitSize
	}

	var units []*encoding.EncUnit
	opts := w.encodeOptions()
	for start := 0; start < arr.Len(); start += unitLen {
		end := start + unitLen
		if end > arr.Len() {
			end = arr.Len()
		}
		slice := array.NewSlice(arr, int64(start), int64(end))
		unit, err := encoding.EncodeColumn(slice, opts)
		slice.Release()
		if err != nil {
			return nil, err
		}
		units = append(units, unit)
	}
	if len(units) == 0 {
		units = append(units, &encoding.EncUnit{Tree: encoding.Leaf(encoding.KindPlain, nil), NumRows: 0})
	}
	return units, nil
}

func (w *Writer) assembleAndWrite(units []*encoding.EncUnit) (chunk.Metadata, error) {
	asm, err := chunk.Assemble(units, chunk.AssembleOptions{
		Compression:    w.cfg.Compression,
		EnableChecksum: w.cfg.EnableChecksum,
	})
	if err != nil {
		return chunk.Metadata{}, err
	}
	asm.Meta.Offset = w.offset
	if err := w.write(asm.Bytes); err != nil {
		return chunk.Metadata{}, err
	}
	return asm.Meta, nil
}

func (w *Writer) write(p []byte) error {
	if _, err := w.w.Write(p); err != nil {
		return ferrors.IOErrorf("Writer.write", "%s", err)
	}
	w.prefix.Update(p)
	w.offset += uint64(len(p))
	w.metrics.bytesWritten.Add(float64(len(p)))
	return nil
}

// dictionaryEligible reports whether columnIndex should go through the
// shared-dictionary path: only non-null int32 columns under
// DictionaryGlobal or DictionaryGlobalMultiColSharing take it. Under
// DictionaryNone and DictionaryEncoderLocal every column takes the regular
// per-column encoding path.
func (w *Writer) dictionaryEligible(columnIndex int, arr arrow.Array) (*array.Int32, bool) {
	if w.cfg.DictionaryMode != DictionaryGlobal && w.cfg.DictionaryMode != DictionaryGlobalMultiColSharing {
		return nil, false
	}
	a, ok := arr.(*array.Int32)
	if !ok || a.NullN() > 0 {
		return nil, false
	}
	return a, true
}

func (w *Writer) flushDictionaryColumn(columnIndex int, arr arrow.Array, values *array.Int32) (chunk.Metadata, error) {
	colValues := distinctSortedInt32(values)
	colSketch := sketchOfInt32s(colValues)

	slotIndex := -1
	if w.cfg.DictionaryMode == DictionaryGlobalMultiColSharing {
		for i, slot := range w.dictSlots {
			if slot.sketch.EstimateJaccard(colSketch) > MultiColSharingThreshold {
				slotIndex = i
				break
			}
		}
	}

	if slotIndex < 0 {
		dictArr := int32ArrayFrom(colValues, w.mem)
		defer dictArr.Release()
		dictUnits, err := w.encodeUnits(columnIndex, dictArr)
		if err != nil {
			return chunk.Metadata{}, err
		}
		meta, err := w.assembleAndWrite(dictUnits)
		if err != nil {
			return chunk.Metadata{}, err
		}
		w.dictSlots = append(w.dictSlots, &dictionarySlot{
			sketch: colSketch,
			values: colValues,
			chunks: []chunk.Metadata{meta},
		})
		slotIndex = len(w.dictSlots) - 1
	} else if newValues := setDifferenceInt32(colValues, w.dictSlots[slotIndex].values); len(newValues) > 0 {
		slot := w.dictSlots[slotIndex]
		if len(slot.chunks) >= 2 {
			return chunk.Metadata{}, ferrors.NYIf("f3: dictionary slot %d already spans two chunks, cannot append a third", slotIndex)
		}
		deltaArr := int32ArrayFrom(newValues, w.mem)
		defer deltaArr.Release()
		deltaUnits, err := w.encodeUnits(columnIndex, deltaArr)
		if err != nil {
			return chunk.Metadata{}, err
		}
		meta, err := w.assembleAndWrite(deltaUnits)
		if err != nil {
			return chunk.Metadata{}, err
		}
		slot.chunks = append(slot.chunks, meta)
		slot.values = append(slot.values, newValues...)
		slot.sketch = sketchOfInt32s(slot.values)
	}

	indexOf := buildIndexOf(w.dictSlots[slotIndex].values)
	codes := buildCodes(values, indexOf, w.mem)
	defer codes.Release()
	return w.flushIndexColumn(columnIndex, codes, slotIndex)
}

func (w *Writer) flushIndexColumn(columnIndex int, codes *array.Uint32, slotIndex int) (chunk.Metadata, error) {
	units, err := w.encodeUnits(columnIndex, codes)
	if err != nil {
		return chunk.Metadata{}, err
	}
	meta, err := w.assembleAndWrite(units)
	if err != nil {
		return chunk.Metadata{}, err
	}
	meta.DictionaryRef = &chunk.DictionaryRef{DictionaryIndex: slotIndex}
	return meta, nil
}

// distinctSortedInt32 returns the sorted distinct values of values.
func distinctSortedInt32(values *array.Int32) []int32 {
	seen := make(map[int32]struct{}, values.Len())
	out := make([]int32, 0, values.Len())
	for i := 0; i < values.Len(); i++ {
		v := values.Value(i)
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

// setDifferenceInt32 returns the values in candidate not already present in
// existing. Both slices are sorted on input; existing need not stay sorted
// for this to be correct since it's only used as a membership test here.
func setDifferenceInt32(candidate, existing []int32) []int32 {
	present := make(map[int32]struct{}, len(existing))
	for _, v := range existing {
		present[v] = struct{}{}
	}
	var diff []int32
	for _, v := range candidate {
		if _, ok := present[v]; !ok {
			diff = append(diff, v)
		}
	}
	return diff
}

// sketchOfInt32s builds a bottom-K sketch over vals' hashes, for comparing
// dictionary value sets by estimated Jaccard similarity.
func sketchOfInt32s(vals []int32) *dictionary.BottomKSketch {
	sketch := dictionary.NewBottomKSketch()
	for _, v := range vals {
		var key [4]byte
		binary.LittleEndian.PutUint32(key[:], uint32(v))
		sketch.AddHash(checksum.Sum64(key[:]))
	}
	sketch.Finish()
	return sketch
}

// buildIndexOf returns the ordinal of each value in sortedValues, the global
// dictionary-ordinal space a reader reconstructs by concatenating a slot's
// chunks in order.
func buildIndexOf(sortedValues []int32) map[int32]uint32 {
	indexOf := make(map[int32]uint32, len(sortedValues))
	for i, v := range sortedValues {
		indexOf[v] = uint32(i)
	}
	return indexOf
}

func int32ArrayFrom(vals []int32, mem memory.Allocator) *array.Int32 {
	b := array.NewInt32Builder(mem)
	defer b.Release()
	b.AppendValues(vals, nil)
	return b.NewInt32Array()
}

func buildCodes(values *array.Int32, indexOf map[int32]uint32, mem memory.Allocator) *array.Uint32 {
	b := array.NewUint32Builder(mem)
	defer b.Release()
	for i := 0; i < values.Len(); i++ {
		b.Append(indexOf[values.Value(i)])
	}
	return b.NewUint32Array()
}

// Close finalizes the file: the shared-dictionary table, the footer, and
// the 32-byte postscript. The writer never commits a partial footer — if
// any step fails, the caller must discard the bytes written so far.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	dicts := make([]footer.DictionaryEntry, len(w.dictSlots))
	for i, slot := range w.dictSlots {
		dicts[i] = footer.DictionaryEntry{Chunks: slot.chunks}
	}

	ft := footer.Footer{
		SchemaIPC:    w.schemaIPC,
		RowGroups:    w.rowGroups,
		Dictionaries: dicts,
	}
	footerBytes := ft.Serialize()
	fileChecksum := w.prefix.Finalize()

	if err := w.write(footerBytes); err != nil {
		return err
	}

	ps := footer.Postscript{
		MetadataSize:   uint32(len(footerBytes)),
		FooterSize:     uint32(len(footerBytes)),
		Compression:    uint8(w.cfg.Compression),
		ChecksumType:   w.cfg.ChecksumType,
		FileChecksum:   fileChecksum,
		SchemaChecksum: checksum.Sum64(w.schemaIPC),
		Major:          footer.CurrentMajor,
		Minor:          footer.CurrentMinor,
	}
	if err := w.write(ps.Marshal()); err != nil {
		return err
	}

	return w.manager.Close(context.Background())
}
