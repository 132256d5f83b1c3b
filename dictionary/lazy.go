package dictionary

import (
	"github.com/apache/arrow/go/v17/arrow/memory"
	"golang.org/x/sync/singleflight"
)

// Lazy builds a Cache at most once, the first time any caller asks for it,
// and shares that build across concurrent callers racing to trigger it —
// the dictionary cache is created lazily on first need and lives for the
// reader's lifetime.
type Lazy struct {
	group     singleflight.Group
	positions [][]int
	chunks    []ChunkRef
	mem       memory.Allocator
	decode    DecodeFunc

	built bool
	cache *Cache
	err   error
}

// NewLazy captures everything Build needs but defers running it.
func NewLazy(positions [][]int, chunks []ChunkRef, mem memory.Allocator, decode DecodeFunc) *Lazy {
	return &Lazy{positions: positions, chunks: chunks, mem: mem, decode: decode}
}

// Get returns the built cache, building it on the first call — racing
// concurrent first calls collapse into one singleflight.Do — and replaying
// that same result (or error) forever after.
func (l *Lazy) Get() (*Cache, error) {
	v, err, _ := l.group.Do("build", func() (interface{}, error) {
		if l.built {
			return l.cache, l.err
		}
		cache, err := Build(l.positions, l.chunks, l.mem, l.decode)
		l.cache, l.err, l.built = cache, err, true
		return cache, err
	})
	if err != nil {
		return nil, err
	}
	return v.(*Cache), nil
}
