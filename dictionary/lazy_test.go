package dictionary

import (
	"sync"
	"testing"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/stretchr/testify/require"
)

func TestLazyBuildsOnce(t *testing.T) {
	chunks := []ChunkRef{{Size: 1}}
	positions := [][]int{{0}}
	var calls int
	var mu sync.Mutex
	decode := func(ref ChunkRef) (arrow.Array, error) {
		mu.Lock()
		calls++
		mu.Unlock()
		return stringArray("x"), nil
	}
	l := NewLazy(positions, chunks, nil, decode)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Get()
			require.NoError(t, err)
		}()
	}
	wg.Wait()

	_, err := l.Get()
	require.NoError(t, err)
	require.Equal(t, 1, calls)
}
