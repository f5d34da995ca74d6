package partitions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout(t *testing.T) {
	l := NewLayout([]int{3, 0, 4})
	require.NoError(t, l.Validate())

	assert.Equal(t, 3, l.NumProcs())
	assert.Equal(t, 7, l.Global())
	assert.Equal(t, []int{0, 2}, l.Active())

	t.Run("Owner", func(t *testing.T) {
		expect := []int{0, 0, 0, 2, 2, 2, 2}
		for g, p := range expect {
			assert.Equal(t, p, l.Owner(g), "global %d", g)
		}
		assert.Equal(t, -1, l.Owner(7))
		assert.Equal(t, -1, l.Owner(-1))
	})

	t.Run("Range", func(t *testing.T) {
		lo, hi := l.Range(1)
		assert.Equal(t, lo, hi)
		lo, hi = l.Range(2)
		assert.Equal(t, 3, lo)
		assert.Equal(t, 7, hi)
	})

	t.Run("InvalidOffsets", func(t *testing.T) {
		bad := &Layout{Offsets: []int{0, 4, 2}}
		assert.Error(t, bad.Validate())
		assert.Error(t, (&Layout{Offsets: []int{1, 2}}).Validate())
	})
}

func TestLayoutBuilder(t *testing.T) {
	t.Run("BlockPartition", func(t *testing.T) {
		l, err := BlockLayout(10, 3, 1)
		require.NoError(t, err)
		assert.Equal(t, []int{0, 4, 8, 10}, l.Offsets)
		stats := l.LayoutStatistics()
		assert.Equal(t, 2, stats.MinOwned)
		assert.Equal(t, 4, stats.MaxOwned)
	})

	t.Run("NodesNotSplit", func(t *testing.T) {
		l, err := BlockLayout(12, 4, 3)
		require.NoError(t, err)
		for p := 0; p < l.NumProcs(); p++ {
			assert.Zero(t, l.LocalSize(p)%3)
		}
		_, err = BlockLayout(10, 2, 3)
		assert.Error(t, err)
	})

	t.Run("Weighted", func(t *testing.T) {
		lb := &LayoutBuilder{
			NumUnknowns: 6,
			NumProcs:    2,
			Weights:     []int{5, 1, 1, 1, 1, 1},
			Strategy:    WeightedPartition,
		}
		l, err := lb.BuildLayout()
		require.NoError(t, err)
		assert.Equal(t, 6, l.Global())
		assert.Less(t, l.LocalSize(0), l.LocalSize(1))
	})
}

func TestProcessGroupMerge(t *testing.T) {
	l := NewLayout([]int{2, 2, 2, 2, 2})
	g := GroupOf(l)
	assert.Equal(t, 0, g.Master())
	merged, mapping := g.Merge(2)
	assert.Equal(t, []int{0, 3}, merged.Members)
	assert.Equal(t, map[int]int{0: 0, 1: 0, 2: 0, 3: 3, 4: 3}, mapping)
	// merge does not touch the receiver
	assert.Equal(t, 5, g.Size())

	agg, err := l.Agglomerate(mapping)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 6, 6, 6, 10, 10}, agg.Offsets)
	assert.Equal(t, merged.Members, GroupOf(agg).Members)
	assert.True(t, GroupOf(agg).Contains(3))
	assert.False(t, GroupOf(agg).Contains(1))
	assert.Equal(t, 3, GroupOf(NewLayout([]int{0, 0, 0, 4, 2})).Master())

	t.Run("NonContiguousRejected", func(t *testing.T) {
		_, err := l.Agglomerate(map[int]int{2: 0})
		assert.Error(t, err)
	})
}
