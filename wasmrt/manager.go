package wasmrt

import (
	"context"
	"sync"

	"github.com/f3db/f3/ferrors"
)

// Manager owns one Runtime per registered WASM decoder id, as named by the
// file's WASM binary index.
type Manager struct {
	mu       sync.Mutex
	runtimes map[string]*Runtime
}

// NewManager returns an empty decoder registry.
func NewManager() *Manager {
	return &Manager{runtimes: make(map[string]*Runtime)}
}

// Load compiles and registers the decoder module for wasmID, replacing any
// previous registration.
func (m *Manager) Load(ctx context.Context, wasmID string, binary []byte, config Config) error {
	rt, err := New(ctx, binary, config)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.runtimes[wasmID]; ok {
		_ = old.Close(ctx)
	}
	m.runtimes[wasmID] = rt
	return nil
}

// Runtime looks up the registered decoder for wasmID.
func (m *Manager) Runtime(wasmID string) (*Runtime, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rt, ok := m.runtimes[wasmID]
	if !ok {
		return nil, ferrors.Generalf("wasmrt: no runtime registered for id %q", wasmID)
	}
	return rt, nil
}

// Close tears down every registered runtime.
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var firstErr error
	for id, rt := range m.runtimes {
		if err := rt.Close(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(m.runtimes, id)
	}
	return firstErr
}
