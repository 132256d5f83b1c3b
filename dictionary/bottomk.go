// Package dictionary implements the shared-dictionary cache (C6): a
// bottom-K sketch used to estimate column similarity for dictionary
// sharing, and the cache that decodes each shared dictionary's chunk(s)
// exactly once and serves them back out by index.
package dictionary

import (
	"container/heap"
	"slices"
)

// K is the number of hash values retained per hash function.
const K = 2048

// M is the number of independent hash functions the sketch runs.
const M = 3

// hashCoeffs are the M (a, b) affine-hash coefficients shared by every
// sketch in the process. Upstream draws these randomly once per process;
// here they are fixed so that two sketches built in different runs (e.g.
// across a test and a real write) remain comparable, at the cost of losing
// resistance to an adversary who knows the constants — acceptable since
// this sketch drives a storage-layout heuristic, not a security boundary.
var hashCoeffs = [M][2]uint64{
	{0x9E3779B97F4A7C15, 0xBF58476D1CE4E5B9},
	{0x94D049BB133111EB, 0x2545F4914F6CDD1D},
	{0xFF51AFD7ED558CCD, 0xC4CEB9FE1A85EC53},
}

// u64Heap is a max-heap of hash values, used to keep the K smallest.
type u64Heap []uint64

func (h u64Heap) Len() int            { return len(h) }
func (h u64Heap) Less(i, j int) bool  { return h[i] > h[j] } // max-heap
func (h u64Heap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *u64Heap) Push(x interface{}) { *h = append(*h, x.(uint64)) }
func (h *u64Heap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// BottomKSketch estimates the Jaccard similarity of the value sets fed to
// two sketches via AddHash, without storing every value.
type BottomKSketch struct {
	heaps  [M]u64Heap
	sorted [M][]uint64
}

// NewBottomKSketch returns an empty sketch ready for AddHash.
func NewBottomKSketch() *BottomKSketch {
	return &BottomKSketch{}
}

// AddHash folds one value's hash into the sketch via each of the M affine
// hash functions, keeping only the K smallest per function.
func (s *BottomKSketch) AddHash(val uint64) {
	for i, c := range hashCoeffs {
		hv := c[0]*val + c[1]
		h := &s.heaps[i]
		if h.Len() < K {
			heap.Push(h, hv)
		} else if hv < (*h)[0] {
			heap.Pop(h)
			heap.Push(h, hv)
		}
	}
}

// Finish freezes the sketch, sorting each bottom-K set ascending so
// EstimateJaccard can merge-walk them. AddHash must not be called after
// Finish.
func (s *BottomKSketch) Finish() {
	for i := range s.heaps {
		vals := append([]uint64(nil), s.heaps[i]...)
		slices.Sort(vals)
		s.sorted[i] = vals
	}
}

// EstimateJaccard returns the estimated Jaccard similarity between this
// sketch's value set and other's, averaged across the M hash functions.
// Both sketches must have been Finish-ed.
func (s *BottomKSketch) EstimateJaccard(other *BottomKSketch) float64 {
	var jaccard float64
	for i := 0; i < M; i++ {
		a, b := s.sorted[i], other.sorted[i]
		collected, common := 0, 0
		ai, bi := 0, 0
		for {
			if ai == len(a) {
				collected = minInt(K, collected+len(b)-bi)
				break
			}
			if bi == len(b) {
				collected = minInt(K, collected+len(a)-ai)
				break
			}
			collected++
			switch {
			case a[ai] == b[bi]:
				common++
				ai++
				bi++
			case a[ai] < b[bi]:
				ai++
			default:
				bi++
			}
			if collected >= K {
				break
			}
		}
		if collected > 0 {
			jaccard += float64(common) / float64(collected)
		}
	}
	return jaccard / float64(M)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

