package dictionary

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sketchOf(values []uint64) *BottomKSketch {
	s := NewBottomKSketch()
	for _, v := range values {
		s.AddHash(v)
	}
	s.Finish()
	return s
}

func TestIdenticalSetsEstimateOne(t *testing.T) {
	values := make([]uint64, 5000)
	for i := range values {
		values[i] = uint64(i)
	}
	a := sketchOf(values)
	b := sketchOf(values)
	require.InDelta(t, 1.0, a.EstimateJaccard(b), 1e-9)
}

func TestDisjointSetsEstimateZero(t *testing.T) {
	a := make([]uint64, 5000)
	b := make([]uint64, 5000)
	for i := range a {
		a[i] = uint64(i)
		b[i] = uint64(i) + 1<<40
	}
	require.InDelta(t, 0.0, sketchOf(a).EstimateJaccard(sketchOf(b)), 1e-9)
}

func TestPartialOverlapIsBetweenZeroAndOne(t *testing.T) {
	a := make([]uint64, 4000)
	b := make([]uint64, 4000)
	for i := range a {
		a[i] = uint64(i)
	}
	for i := range b {
		b[i] = uint64(i + 2000)
	}
	got := sketchOf(a).EstimateJaccard(sketchOf(b))
	require.Greater(t, got, 0.0)
	require.Less(t, got, 1.0)
}

func TestSmallSetBelowK(t *testing.T) {
	a := sketchOf([]uint64{1, 2, 3})
	b := sketchOf([]uint64{1, 2, 3})
	require.InDelta(t, 1.0, a.EstimateJaccard(b), 1e-9)
}
