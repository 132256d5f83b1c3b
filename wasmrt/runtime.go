// Package wasmrt implements the sandboxed decoder runtime: a wazero-backed
// loader for custom encode/decode WASM modules, a thread-safe instance pool,
// and the host/guest calling conventions (scalar, general/iterator,
// stateful init/decode) used to invoke them.
package wasmrt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"

	"github.com/f3db/f3/ferrors"
)

// Config bounds what a loaded module may do.
type Config struct {
	// MemorySizeLimit caps an instance's linear memory in bytes. Zero means
	// wazero's module default (driven by the module's own memory limits).
	MemorySizeLimit uint64
	// FileSizeLimit caps the size of the WASM binary accepted by New.
	FileSizeLimit uint64
}

// Runtime is the WASM encoders/decoders runtime. It holds one compiled
// module and a pool of instances, and may be shared by multiple callers.
type Runtime struct {
	ctx      context.Context
	engine   wazero.Runtime
	compiled wazero.CompiledModule
	config   Config

	// functions maps user-facing function name -> export symbol.
	functions map[string]string

	mu     sync.Mutex
	free   []*instance
	closed bool
}

var instanceSeq atomic.Uint64

// New loads a WASM binary and decodes its exported symbol table.
func New(ctx context.Context, binary []byte, config Config) (*Runtime, error) {
	if config.FileSizeLimit != 0 && uint64(len(binary)) > config.FileSizeLimit {
		return nil, ferrors.Generalf("wasm binary exceeds file size limit")
	}
	rtConfig := wazero.NewRuntimeConfig()
	if config.MemorySizeLimit != 0 {
		// wazero limits memory in 64 KiB pages, at most 65536 of them.
		pages := config.MemorySizeLimit / 65536
		if pages > 65536 {
			pages = 65536
		}
		rtConfig = rtConfig.WithMemoryLimitPages(uint32(pages))
	}
	engine := wazero.NewRuntimeWithConfig(ctx, rtConfig)
	compiled, err := engine.CompileModule(ctx, binary)
	if err != nil {
		_ = engine.Close(ctx)
		return nil, ferrors.Externalf(fmt.Errorf("compile wasm module: %w", err))
	}

	functions := make(map[string]string)
	for _, export := range compiled.ExportedFunctions() {
		name, err := decodeSymbol(export.Name())
		if err != nil {
			continue // not every export need be a base64-named user function
		}
		functions[name] = export.Name()
	}

	return &Runtime{
		ctx:       ctx,
		engine:    engine,
		compiled:  compiled,
		config:    config,
		functions: functions,
	}, nil
}

// Close tears down every pooled instance and the underlying wazero runtime.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	free := r.free
	r.free = nil
	r.mu.Unlock()
	for _, inst := range free {
		_ = inst.mod.Close(ctx)
	}
	return r.engine.Close(ctx)
}

// HasFunction reports whether the module exports a user function of this
// name (after base64 symbol decoding).
func (r *Runtime) HasFunction(name string) bool {
	_, ok := r.functions[name]
	return ok
}

type instance struct {
	mod     api.Module
	mem     api.Memory
	alloc   api.Function
	dealloc api.Function
	funcs   map[string]api.Function

	mu             sync.Mutex
	outstanding    int
	pendingRelease bool
}

func (r *Runtime) instantiate(ctx context.Context) (*instance, error) {
	cfg := wazero.NewModuleConfig().WithName(fmt.Sprintf("f3-decoder-%d", instanceSeq.Add(1)))
	mod, err := r.engine.InstantiateModule(ctx, r.compiled, cfg)
	if err != nil {
		return nil, ferrors.Externalf(fmt.Errorf("instantiate wasm module: %w", err))
	}
	alloc := mod.ExportedFunction("alloc")
	dealloc := mod.ExportedFunction("dealloc")
	mem := mod.Memory()
	if alloc == nil || dealloc == nil || mem == nil {
		_ = mod.Close(ctx)
		return nil, ferrors.Generalf("wasm module missing required alloc/dealloc/memory exports")
	}
	funcs := make(map[string]api.Function, len(r.functions))
	for name, export := range r.functions {
		funcs[name] = mod.ExportedFunction(export)
	}
	return &instance{mod: mod, mem: mem, alloc: alloc, dealloc: dealloc, funcs: funcs}, nil
}

// acquire pops an idle instance from the pool or creates a new one.
func (r *Runtime) acquire(ctx context.Context) (*instance, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, ferrors.Generalf("wasm runtime is closed")
	}
	if n := len(r.free); n > 0 {
		inst := r.free[n-1]
		r.free = r.free[:n-1]
		r.mu.Unlock()
		return inst, nil
	}
	r.mu.Unlock()
	return r.instantiate(ctx)
}

// release returns an instance to the pool, unless it still has buffers
// outstanding — in that case Buffer.Close does the release once the last
// one drops, per the "live buffer pins its instance" contract.
func (r *Runtime) release(inst *instance) {
	inst.mu.Lock()
	if inst.outstanding > 0 {
		inst.pendingRelease = true
		inst.mu.Unlock()
		return
	}
	inst.mu.Unlock()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.free = append(r.free, inst)
}

func (inst *instance) function(name string) (api.Function, error) {
	f, ok := inst.funcs[name]
	if !ok || f == nil {
		return nil, ferrors.Generalf("no such function")
	}
	return f, nil
}

func (inst *instance) readU32(addr uint32) (uint32, error) {
	v, ok := inst.mem.ReadUint32Le(addr)
	if !ok {
		return 0, ferrors.IndexOutOfBoundErr(int(addr), int(inst.mem.Size()))
	}
	return v, nil
}

func (inst *instance) readBytes(addr, length uint32) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	raw, ok := inst.mem.Read(addr, length)
	if !ok {
		return nil, ferrors.IndexOutOfBoundErr(int(addr+length), int(inst.mem.Size()))
	}
	out := make([]byte, length)
	copy(out, raw)
	return out, nil
}

func (inst *instance) writeBytes(addr uint32, data []byte) error {
	if !inst.mem.Write(addr, data) {
		return ferrors.IndexOutOfBoundErr(int(addr+uint32(len(data))), int(inst.mem.Size()))
	}
	return nil
}

func (inst *instance) callAlloc(ctx context.Context, length, align uint32) (uint32, error) {
	res, err := inst.alloc.Call(ctx, uint64(length), uint64(align))
	if err != nil {
		return 0, ferrors.Externalf(err)
	}
	return uint32(res[0]), nil
}

func (inst *instance) callDealloc(ctx context.Context, ptr, length, align uint32) error {
	_, err := inst.dealloc.Call(ctx, uint64(ptr), uint64(length), uint64(align))
	if err != nil {
		return ferrors.Externalf(err)
	}
	return nil
}

// CallScalar implements the scalar calling convention (spec §4.5): one
// input buffer in, one output buffer out. The input/descriptor block is
// host-allocated, the output buffer is allocated by the guest, and the host
// deallocates both within the call.
func (r *Runtime) CallScalar(ctx context.Context, name string, input []byte) ([]byte, error) {
	inst, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer r.release(inst)

	fn, err := inst.function(name)
	if err != nil {
		return nil, err
	}

	allocLen := uint32(len(input)) + 8
	allocPtr, err := inst.callAlloc(ctx, allocLen, 4)
	if err != nil {
		return nil, err
	}
	if err := inst.writeBytes(allocPtr+8, input); err != nil {
		return nil, err
	}

	if _, err := fn.Call(ctx, uint64(allocPtr+8), uint64(len(input)), uint64(allocPtr)); err != nil {
		return nil, ferrors.Externalf(err)
	}

	outPtr, err := inst.readU32(allocPtr)
	if err != nil {
		return nil, err
	}
	outLen, err := inst.readU32(allocPtr + 4)
	if err != nil {
		return nil, err
	}
	out, err := inst.readBytes(outPtr, outLen)
	if err != nil {
		return nil, err
	}

	if err := inst.callDealloc(ctx, allocPtr, allocLen, 4); err != nil {
		return nil, err
	}
	if outLen > 0 {
		if err := inst.callDealloc(ctx, outPtr, outLen, 1); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// CallGeneral implements the general/iterator calling convention: the
// output descriptor is count:u32 followed by count (ptr,len) pairs, each
// naming one Arrow-shaped buffer in depth-first order. Returned buffers pin
// the instance until closed.
func (r *Runtime) CallGeneral(ctx context.Context, name string, input []byte) ([]*Buffer, error) {
	inst, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	released := false
	defer func() {
		if !released {
			r.release(inst)
		}
	}()

	fn, err := inst.function(name)
	if err != nil {
		return nil, err
	}

	allocLen := uint32(len(input)) + 8
	allocPtr, err := inst.callAlloc(ctx, allocLen, 4)
	if err != nil {
		return nil, err
	}
	if err := inst.writeBytes(allocPtr+8, input); err != nil {
		return nil, err
	}

	if _, err := fn.Call(ctx, uint64(allocPtr+8), uint64(len(input)), uint64(allocPtr)); err != nil {
		return nil, ferrors.Externalf(err)
	}

	descPtr, err := inst.readU32(allocPtr)
	if err != nil {
		return nil, err
	}
	count, err := inst.readU32(descPtr)
	if err != nil {
		return nil, err
	}

	buffers := make([]*Buffer, 0, count)
	inst.mu.Lock()
	inst.outstanding += int(count)
	inst.mu.Unlock()
	for i := uint32(0); i < count; i++ {
		entryOff := descPtr + 4 + i*8
		ptr, err := inst.readU32(entryOff)
		if err != nil {
			return nil, err
		}
		length, err := inst.readU32(entryOff + 4)
		if err != nil {
			return nil, err
		}
		data, err := inst.readBytes(ptr, length)
		if err != nil {
			return nil, err
		}
		buffers = append(buffers, &Buffer{rt: r, inst: inst, handle: ptr, data: data})
	}

	if err := inst.callDealloc(ctx, allocPtr, allocLen, 4); err != nil {
		return nil, err
	}
	// The instance stays pinned until every returned Buffer is Closed; the
	// deferred release becomes a no-op release call that records the pin.
	r.release(inst)
	released = true
	return buffers, nil
}

// Buffer is a host-visible view of guest-owned bytes. Closing it tells the
// guest to drop its wrapper object and, once the owning instance has no
// other outstanding buffers, returns the instance to the pool.
type Buffer struct {
	rt     *Runtime
	inst   *instance
	handle uint32
	data   []byte
	closed bool
}

// Bytes returns the buffer contents. The returned slice is a host-side copy
// and remains valid after Close.
func (b *Buffer) Bytes() []byte { return b.data }

// Close invokes buffer_drop(handle) on the owning instance and, if that was
// the last outstanding buffer, returns the instance to the pool.
func (b *Buffer) Close(ctx context.Context) error {
	if b.closed {
		return nil
	}
	b.closed = true

	drop := b.inst.funcs["buffer_drop"]
	if drop != nil {
		if _, err := drop.Call(ctx, uint64(b.handle)); err != nil {
			return ferrors.Externalf(err)
		}
	}

	b.inst.mu.Lock()
	b.inst.outstanding--
	shouldRelease := b.inst.pendingRelease && b.inst.outstanding == 0
	if shouldRelease {
		b.inst.pendingRelease = false
	}
	b.inst.mu.Unlock()

	if shouldRelease {
		b.rt.mu.Lock()
		if !b.rt.closed {
			b.rt.free = append(b.rt.free, b.inst)
		}
		b.rt.mu.Unlock()
	}
	return nil
}

// StatefulInit implements init(input, kwargs) -> handle. The descriptor's
// first word is the opaque guest-side decoder handle; the remainder is
// unused by the convention.
func (r *Runtime) StatefulInit(ctx context.Context, name string, input []byte, kwargs []byte) (*Decoder, error) {
	inst, err := r.acquire(ctx)
	if err != nil {
		return nil, err
	}
	released := false
	defer func() {
		if !released {
			r.release(inst)
		}
	}()

	fn, err := inst.function(name)
	if err != nil {
		return nil, err
	}

	allocLen := uint32(len(input)+len(kwargs)) + 8
	allocPtr, err := inst.callAlloc(ctx, allocLen, 4)
	if err != nil {
		return nil, err
	}
	if err := inst.writeBytes(allocPtr+8, input); err != nil {
		return nil, err
	}
	if err := inst.writeBytes(allocPtr+8+uint32(len(input)), kwargs); err != nil {
		return nil, err
	}

	if _, err := fn.Call(ctx,
		uint64(allocPtr+8), uint64(len(input)),
		uint64(allocPtr+8+uint32(len(input))), uint64(len(kwargs)),
		uint64(allocPtr)); err != nil {
		return nil, ferrors.Externalf(err)
	}

	handle, err := inst.readU32(allocPtr)
	if err != nil {
		return nil, err
	}
	if err := inst.callDealloc(ctx, allocPtr, allocLen, 4); err != nil {
		return nil, err
	}

	inst.mu.Lock()
	inst.outstanding++
	inst.mu.Unlock()
	r.release(inst)
	released = true
	return &Decoder{rt: r, inst: inst, handle: handle}, nil
}

// Decoder is a live stateful decode handle inside one instance. It pins the
// instance, the same as a Buffer, until Close.
type Decoder struct {
	rt     *Runtime
	inst   *instance
	handle uint32
	closed bool
	done   bool
}

// Next calls decode(handle) and returns the next sequence of buffers, or
// ok=false once the guest reports end of stream (a zero-count sequence).
func (d *Decoder) Next(ctx context.Context) (buffers []*Buffer, ok bool, err error) {
	fn, err := d.inst.function("decode")
	if err != nil {
		return nil, false, err
	}

	allocLen := uint32(8)
	allocPtr, err := d.inst.callAlloc(ctx, allocLen, 4)
	if err != nil {
		return nil, false, err
	}
	if _, err := fn.Call(ctx, uint64(d.handle), uint64(allocPtr)); err != nil {
		return nil, false, ferrors.Externalf(err)
	}
	descPtr, err := d.inst.readU32(allocPtr)
	if err != nil {
		return nil, false, err
	}
	count, err := d.inst.readU32(descPtr)
	if err != nil {
		return nil, false, err
	}
	if err := d.inst.callDealloc(ctx, allocPtr, allocLen, 4); err != nil {
		return nil, false, err
	}
	if count == 0 {
		d.done = true
		return nil, false, nil
	}

	out := make([]*Buffer, 0, count)
	d.inst.mu.Lock()
	d.inst.outstanding += int(count)
	d.inst.mu.Unlock()
	for i := uint32(0); i < count; i++ {
		entryOff := descPtr + 4 + i*8
		ptr, err := d.inst.readU32(entryOff)
		if err != nil {
			return nil, false, err
		}
		length, err := d.inst.readU32(entryOff + 4)
		if err != nil {
			return nil, false, err
		}
		data, err := d.inst.readBytes(ptr, length)
		if err != nil {
			return nil, false, err
		}
		out = append(out, &Buffer{rt: d.rt, inst: d.inst, handle: ptr, data: data})
	}
	return out, true, nil
}

// Close unpins the decoder's instance and must be called in every case. The
// guest drops its own decoder on terminal decode, so Close calls
// decoder_drop(handle) only when the stream was abandoned before Next
// reported its end.
func (d *Decoder) Close(ctx context.Context) error {
	if d.closed {
		return nil
	}
	d.closed = true
	drop := d.inst.funcs["decoder_drop"]
	if drop != nil && !d.done {
		if _, err := drop.Call(ctx, uint64(d.handle)); err != nil {
			return ferrors.Externalf(err)
		}
	}
	d.inst.mu.Lock()
	d.inst.outstanding--
	shouldRelease := d.inst.pendingRelease && d.inst.outstanding == 0
	if shouldRelease {
		d.inst.pendingRelease = false
	}
	d.inst.mu.Unlock()
	if shouldRelease {
		d.rt.mu.Lock()
		if !d.rt.closed {
			d.rt.free = append(d.rt.free, d.inst)
		}
		d.rt.mu.Unlock()
	}
	return nil
}
