package dictionary

import (
	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/memory"

	"github.com/f3db/f3/ferrors"
)

// ChunkRef locates one physical dictionary chunk within the file.
type ChunkRef struct {
	Offset  uint64
	Size    uint64
	NumRows int
}

// DecodeFunc decodes one dictionary chunk into a single Arrow array. The
// cache never interprets chunk bytes itself; it is supplied by the reader,
// which already knows how to run a column chunk's EncUnits through C3/C4/C5.
type DecodeFunc func(ref ChunkRef) (arrow.Array, error)

// Cache holds every shared dictionary declared by a file's dictionary
// positions table, decoded at most once per dictionary regardless of how
// many columns reference it.
type Cache struct {
	dictionaries    []arrow.Array
	compressedSizes []int
	chunkSizes      []int
	chunkReferences [][]int
}

// Build decodes every dictionary named by positions (one []int of chunk
// indices per dictionary slot) using chunks for chunk metadata and decode
// to materialize bytes. A dictionary spanning more than two chunks is not
// yet supported.
func Build(positions [][]int, chunks []ChunkRef, mem memory.Allocator, decode DecodeFunc) (*Cache, error) {
	if mem == nil {
		mem = memory.NewGoAllocator()
	}
	c := &Cache{
		dictionaries:    make([]arrow.Array, len(positions)),
		compressedSizes: make([]int, len(positions)),
		chunkSizes:      make([]int, len(chunks)),
		chunkReferences: positions,
	}
	for i, chunkMeta := range chunks {
		c.chunkSizes[i] = int(chunkMeta.Size)
	}

	for i, chunkIDs := range positions {
		var parts []arrow.Array
		size := 0
		for _, id := range chunkIDs {
			if id < 0 || id >= len(chunks) {
				return nil, ferrors.IndexOutOfBoundErr(id, len(chunks))
			}
			ref := chunks[id]
			size += int(ref.Size)
			arr, err := decode(ref)
			if err != nil {
				return nil, err
			}
			parts = append(parts, arr)
		}
		c.compressedSizes[i] = size

		switch len(parts) {
		case 0:
			c.dictionaries[i] = nil
		case 1:
			c.dictionaries[i] = parts[0]
		case 2:
			merged, err := array.Concatenate(parts, mem)
			if err != nil {
				return nil, ferrors.Externalf(err)
			}
			c.dictionaries[i] = merged
		default:
			return nil, ferrors.NYIf("dictionary: a shared dictionary may span at most 2 chunks, got %d", len(parts))
		}
	}
	return c, nil
}

// Dict returns the decoded dictionary array at index, or nil if that slot
// had no chunks.
func (c *Cache) Dict(index int) arrow.Array {
	if index < 0 || index >= len(c.dictionaries) {
		return nil
	}
	return c.dictionaries[index]
}

// DictSize returns the total compressed byte size of the dictionary at
// index, across all of its chunks.
func (c *Cache) DictSize(index int) (int, bool) {
	if index < 0 || index >= len(c.compressedSizes) {
		return 0, false
	}
	return c.compressedSizes[index], true
}

// ChunkSizes returns the compressed size of each underlying dictionary
// chunk, indexed by chunk id.
func (c *Cache) ChunkSizes() []int { return c.chunkSizes }

// ChunkReferences returns, for each dictionary slot, the chunk ids that
// compose it.
func (c *Cache) ChunkReferences() [][]int { return c.chunkReferences }
