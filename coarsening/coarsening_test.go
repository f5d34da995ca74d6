package coarsening

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/DGAMG/algebra"
	"github.com/notargets/DGAMG/partitions"
)

func diagonal(n int) *algebra.Matrix {
	b := algebra.NewBuilder(n, n)
	for i := 0; i < n; i++ {
		b.Add(i, i, 3)
	}
	return b.Build()
}

func TestStrengthGraph(t *testing.T) {
	t.Run("Path", func(t *testing.T) {
		sg, err := NewStrengthGraph(algebra.Laplace1D(5), DefaultTheta)
		require.NoError(t, err)
		assert.Equal(t, []int{1}, sg.Strong(0))
		assert.Equal(t, []int{1, 3}, sg.Strong(2))
		assert.Equal(t, []int{0, 2}, sg.Influences(1))
		comps, isolated := sg.Components()
		assert.Equal(t, 1, comps)
		assert.Equal(t, 0, isolated)
	})

	t.Run("WeakCouplingDropped", func(t *testing.T) {
		b := algebra.NewBuilder(3, 3)
		b.Add(0, 0, 2)
		b.Add(0, 1, -1)
		b.Add(0, 2, -0.1)
		b.Add(1, 1, 1)
		b.Add(2, 2, 1)
		sg, err := NewStrengthGraph(b.Build(), DefaultTheta)
		require.NoError(t, err)
		assert.Equal(t, []int{1}, sg.Strong(0))
		assert.True(t, sg.IsIsolated(2))
	})

	t.Run("Diagonal", func(t *testing.T) {
		sg, err := NewStrengthGraph(diagonal(4), DefaultTheta)
		require.NoError(t, err)
		comps, isolated := sg.Components()
		assert.Equal(t, 4, comps)
		assert.Equal(t, 4, isolated)
	})

	t.Run("RowSlice", func(t *testing.T) {
		// middle third of a 300x300 grid; the couplings to the rows below and
		// above belong to other ranks and are never strong
		const nx = 300
		A := algebra.Laplace2DRows(nx, nx, 100*nx, 200*nx)
		sg, err := NewStrengthGraph(A, DefaultTheta)
		require.NoError(t, err)
		require.Equal(t, 100*nx, sg.NumNodes())
		assert.Equal(t, []int{1, nx}, sg.Strong(0))
		assert.Equal(t, []int{149, 151, 450}, sg.Strong(150))
		assert.Equal(t, []int{15007 - nx, 15006, 15008, 15007 + nx}, sg.Strong(15007))
		assert.Equal(t, []int{0, 2, nx + 1}, sg.Influences(1))
		last := sg.NumNodes() - 1
		assert.Equal(t, []int{last - nx, last - 1}, sg.Strong(last))
	})

	t.Run("BadTheta", func(t *testing.T) {
		_, err := NewStrengthGraph(diagonal(2), 0)
		assert.Error(t, err)
	})
}

func TestClassical(t *testing.T) {
	strategy := &Classical{}

	t.Run("Path17", func(t *testing.T) {
		res, err := strategy.Coarsen(algebra.Laplace1D(17))
		require.NoError(t, err)
		assert.Equal(t, "FCFCFCFCFCFCFCFCF", Tagging(res.Tags))
		assert.Equal(t, 8, res.NumCoarse)
		assert.True(t, res.RestrictionIsTranspose())
		for i, s := range RowSums(res.P) {
			assert.InDelta(t, 1.0, s, 1e-12, "row %d", i)
		}
		assert.InDelta(t, 0.5, res.P.At(2, 0), 1e-15)
		assert.InDelta(t, 0.5, res.P.At(2, 1), 1e-15)
		assert.InDelta(t, 1.0, res.P.At(0, 0), 1e-15)
		assert.InDelta(t, 1.0, res.P.At(16, 7), 1e-15)
	})

	t.Run("Laplace2D", func(t *testing.T) {
		A := algebra.Laplace2D(6, 6)
		res, err := strategy.Coarsen(A)
		require.NoError(t, err)
		assert.Less(t, res.NumCoarse, 36)
		assert.Greater(t, res.NumCoarse, 0)
		for i, tag := range res.Tags {
			if tag == Fine {
				cols, _ := res.P.Row(i)
				assert.NotEmpty(t, cols, "fine node %d has no parent", i)
			}
		}
		for _, s := range RowSums(res.P) {
			assert.InDelta(t, 1.0, s, 1e-12)
		}
	})

	t.Run("Degenerate", func(t *testing.T) {
		_, err := strategy.Coarsen(diagonal(6))
		require.ErrorIs(t, err, ErrDegenerate)
		assert.Contains(t, err.Error(), "6 isolated")
	})

	t.Run("Block", func(t *testing.T) {
		A := algebra.BlockLaplace1D(9, 2)
		res, err := strategy.Coarsen(A)
		require.NoError(t, err)
		assert.Equal(t, "FCFCFCFCF", Tagging(res.Tags))
		assert.Equal(t, 8, res.NumCoarse)
		assert.Equal(t, 2, res.P.BlockSize())
		// node 2 interpolates both of its unknowns from coarse nodes 0 and 1
		assert.InDelta(t, 0.5, res.P.At(4, 0), 1e-15)
		assert.InDelta(t, 0.5, res.P.At(5, 3), 1e-15)
		assert.Zero(t, res.P.At(4, 1))
	})

	t.Run("Distributed", func(t *testing.T) {
		tags := make([]string, 2)
		offsets := make([][]int, 2)
		err := partitions.RunWorld(2, func(comm partitions.Communicator) error {
			lo := 8 * comm.Rank()
			A := algebra.Laplace1DRows(16, lo, lo+8)
			if err := A.Attach(nil, comm); err != nil {
				return err
			}
			res, err := strategy.Coarsen(A)
			if err != nil {
				return err
			}
			if res.P.RowOffset() != lo {
				return fmt.Errorf("P offset %d", res.P.RowOffset())
			}
			tags[comm.Rank()] = Tagging(res.Tags)
			offsets[comm.Rank()] = res.CoarseLayout.Offsets
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, "FCFCFCFC", tags[0])
		assert.Equal(t, "FCFCFCFC", tags[1])
		assert.Equal(t, []int{0, 4, 8}, offsets[0])
	})
}

func TestFiltering(t *testing.T) {
	A := algebra.Laplace2D(5, 5)

	t.Run("Constant", func(t *testing.T) {
		res, err := (&Filtering{}).Coarsen(A)
		require.NoError(t, err)
		require.NotNil(t, res.R)
		assert.False(t, res.RestrictionIsTranspose())
		for i := 0; i < res.P.Rows(); i++ {
			cols, _ := res.P.Row(i)
			assert.LessOrEqual(t, len(cols), MaxParents)
		}
		for _, s := range RowSums(res.P) {
			assert.InDelta(t, 1.0, s, 1e-12)
		}
		// symmetric matrix and equal test vectors give R = Pᵀ
		for i := 0; i < res.R.Rows(); i++ {
			cols, vals := res.R.Row(i)
			for k, j := range cols {
				assert.InDelta(t, res.P.At(j, i), vals[k], 1e-14)
			}
		}
	})

	t.Run("TestVectorReproduced", func(t *testing.T) {
		tv := func(g int) float64 { return 1 + 0.1*float64(g) }
		res, err := (&Filtering{Right: tv}).Coarsen(A)
		require.NoError(t, err)
		coarse := make([]float64, res.NumCoarse)
		c := 0
		for i, tag := range res.Tags {
			if tag == Coarse {
				coarse[c] = tv(i)
				c++
			}
		}
		fine := make([]float64, A.Rows())
		require.NoError(t, res.P.Apply(fine, coarse))
		for i := range fine {
			assert.InDelta(t, tv(i), fine[i], 1e-12, "node %d", i)
		}
	})

	t.Run("Degenerate", func(t *testing.T) {
		_, err := (&Filtering{}).Coarsen(diagonal(3))
		assert.ErrorIs(t, err, ErrDegenerate)
	})
}

func TestTruncate(t *testing.T) {
	b := algebra.NewBuilder(2, 3)
	b.Add(0, 0, 0.6)
	b.Add(0, 1, 0.35)
	b.Add(0, 2, 0.05)
	b.Add(1, 1, 1)
	P := b.Build()

	before := RowSums(P)
	T := Truncate(P, 0.1)
	assert.Zero(t, T.At(0, 2))
	assert.InDelta(t, 0.6/0.95, T.At(0, 0), 1e-14)
	for i, s := range RowSums(T) {
		assert.InDelta(t, before[i], s, 1e-14)
	}
	assert.Same(t, P, Truncate(P, 0))
}
