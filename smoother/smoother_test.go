package smoother

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/DGAMG/algebra"
	"github.com/notargets/DGAMG/partitions"
)

func residualNorm(t *testing.T, A *algebra.Matrix, c, d []float64) float64 {
	r := append([]float64(nil), d...)
	require.NoError(t, A.Residual(r, c))
	n, err := algebra.Norm(nil, r)
	require.NoError(t, err)
	return n
}

func TestJacobi(t *testing.T) {
	A := algebra.Laplace1D(4)
	j := NewJacobi(0)
	c := make([]float64, 4)
	assert.ErrorIs(t, j.Apply(c, c), ErrNotInitialized)
	require.NoError(t, j.Init(A))
	d := []float64{2, 4, 6, 8}
	require.NoError(t, j.Apply(c, d))
	assert.InDeltaSlice(t, []float64{2.0 / 3, 4.0 / 3, 2, 8.0 / 3}, c, 1e-15)
	assert.Equal(t, []float64{2, 4, 6, 8}, d)

	clone := j.Clone()
	assert.Equal(t, "jacobi", clone.Name())
	assert.ErrorIs(t, clone.Apply(c, d), ErrNotInitialized)
}

func TestGaussSeidel(t *testing.T) {
	A := algebra.Laplace1D(5)
	dense := A.Dense()
	d := []float64{1, -2, 3, 0.5, 1}

	lower := mat.NewDense(5, 5, nil)
	upper := mat.NewDense(5, 5, nil)
	for i := 0; i < 5; i++ {
		for j := 0; j < 5; j++ {
			if j <= i {
				lower.Set(i, j, dense.At(i, j))
			}
			if j >= i {
				upper.Set(i, j, dense.At(i, j))
			}
		}
	}

	check := func(t *testing.T, M mat.Matrix, c []float64) {
		var got mat.VecDense
		got.MulVec(M, mat.NewVecDense(5, c))
		assert.InDeltaSlice(t, d, got.RawVector().Data, 1e-12)
	}

	t.Run("Forward", func(t *testing.T) {
		gs := NewGaussSeidel(Forward)
		require.NoError(t, gs.Init(A))
		c := make([]float64, 5)
		require.NoError(t, gs.Apply(c, d))
		check(t, lower, c)
	})

	t.Run("Backward", func(t *testing.T) {
		gs := NewGaussSeidel(Backward)
		require.NoError(t, gs.Init(A))
		c := make([]float64, 5)
		require.NoError(t, gs.Apply(c, d))
		check(t, upper, c)
	})

	t.Run("Symmetric", func(t *testing.T) {
		gs := NewGaussSeidel(Symmetric)
		require.NoError(t, gs.Init(A))
		c := make([]float64, 5)
		require.NoError(t, gs.Apply(c, d))
		// (D+L)·D⁻¹·(D+U)
		var dinvU, M mat.Dense
		dinv := mat.NewDiagDense(5, []float64{0.5, 0.5, 0.5, 0.5, 0.5})
		dinvU.Mul(dinv, upper)
		M.Mul(lower, &dinvU)
		check(t, &M, c)
		assert.Equal(t, "gauss-seidel-symmetric", gs.Name())
	})

	t.Run("BlockReducesResidual", func(t *testing.T) {
		B := algebra.BlockLaplace1D(6, 2)
		gs := NewGaussSeidel(Symmetric)
		require.NoError(t, gs.Init(B))
		rhs := make([]float64, 12)
		for i := range rhs {
			rhs[i] = 1
		}
		c := make([]float64, 12)
		require.NoError(t, gs.Apply(c, rhs))
		assert.Less(t, residualNorm(t, B, c, rhs), residualNorm(t, B, make([]float64, 12), rhs))
	})
}

func TestILU(t *testing.T) {
	t.Run("TridiagonalIsExact", func(t *testing.T) {
		A := algebra.Laplace1D(6)
		ilu := NewILU()
		require.NoError(t, ilu.Init(A))
		d := []float64{1, 2, 3, 4, 5, 6}
		c := make([]float64, 6)
		require.NoError(t, ilu.Apply(c, d))
		assert.InDelta(t, 0, residualNorm(t, A, c, d), 1e-12)
	})

	t.Run("Laplace2D", func(t *testing.T) {
		A := algebra.Laplace2D(4, 4)
		ilu := NewILU()
		require.NoError(t, ilu.Init(A))
		d := make([]float64, 16)
		for i := range d {
			d[i] = 1
		}
		c := make([]float64, 16)
		require.NoError(t, ilu.Apply(c, d))
		assert.Less(t, residualNorm(t, A, c, d), 0.5*residualNorm(t, A, make([]float64, 16), d))
	})

	t.Run("MissingDiagonal", func(t *testing.T) {
		b := algebra.NewBuilder(2, 2)
		b.Add(0, 1, 1)
		b.Add(1, 1, 1)
		assert.ErrorIs(t, NewILU().Init(b.Build()), ErrBreakdown)
	})
}

func TestLU(t *testing.T) {
	A := algebra.Laplace1D(7)
	lu := NewLU()
	require.NoError(t, lu.Init(A))
	d := []float64{1, 0, 0, 1, 0, 0, 1}
	c := make([]float64, 7)
	require.NoError(t, lu.Apply(c, d))
	assert.InDelta(t, 0, residualNorm(t, A, c, d), 1e-12)

	t.Run("Singular", func(t *testing.T) {
		b := algebra.NewBuilder(2, 2)
		b.Add(0, 0, 1)
		b.Add(0, 1, 1)
		b.Add(1, 0, 1)
		b.Add(1, 1, 1)
		assert.ErrorIs(t, NewLU().Init(b.Build()), ErrIllConditioned)
	})

	t.Run("DistributedRejected", func(t *testing.T) {
		assert.ErrorIs(t, NewLU().Init(algebra.Laplace1DRows(6, 3, 6)), ErrDistributedBase)
	})

	t.Run("EmptyRank", func(t *testing.T) {
		empty := NewLU()
		require.NoError(t, empty.Init(algebra.Zero(0, 6, 6, 1)))
		assert.NoError(t, empty.Apply(nil, nil))
	})
}

func TestIterativeBase(t *testing.T) {
	A := algebra.Laplace2D(5, 5)
	it := &IterativeBase{Tolerance: 1e-12}
	require.NoError(t, it.Init(A))
	d := make([]float64, 25)
	d[12] = 1
	c := make([]float64, 25)
	require.NoError(t, it.Apply(c, d))
	assert.InDelta(t, 0, residualNorm(t, A, c, d), 1e-10)
	assert.Greater(t, it.Iterations(), 1)

	zero := make([]float64, 25)
	require.NoError(t, it.Apply(c, zero))
	assert.Equal(t, zero, c)

	t.Run("NotConverged", func(t *testing.T) {
		short := &IterativeBase{MaxIterations: 1}
		require.NoError(t, short.Init(A))
		assert.ErrorIs(t, short.Apply(c, d), ErrNotConverged)
	})

	t.Run("Distributed", func(t *testing.T) {
		layout, err := partitions.BlockLayout(25, 2, 1)
		require.NoError(t, err)
		err = partitions.RunWorld(2, func(comm partitions.Communicator) error {
			lo, hi := layout.Range(comm.Rank())
			Ap := algebra.Laplace2DRows(5, 5, lo, hi)
			if err := Ap.Attach(nil, comm); err != nil {
				return err
			}
			pcg := &IterativeBase{Tolerance: 1e-12}
			if err := pcg.Init(Ap); err != nil {
				return err
			}
			cp := make([]float64, hi-lo)
			return pcg.Apply(cp, d[lo:hi])
		})
		assert.NoError(t, err)
	})
}

func TestBaseSolverClone(t *testing.T) {
	lu := NewLU()
	lu.MaxCondition = 1e10
	require.NoError(t, lu.Init(algebra.Laplace1D(4)))
	luc := lu.Clone().(*LU)
	assert.NotSame(t, lu, luc)
	assert.Equal(t, 1e10, luc.MaxCondition)
	assert.Zero(t, luc.n)

	jac := NewJacobi(0.5)
	it := &IterativeBase{Tolerance: 1e-8, MaxIterations: 7, Preconditioner: jac}
	require.NoError(t, it.Init(algebra.Laplace1D(4)))
	itc := it.Clone().(*IterativeBase)
	assert.Equal(t, 1e-8, itc.Tolerance)
	assert.Equal(t, 7, itc.MaxIterations)
	assert.NotSame(t, jac, itc.Preconditioner)
	assert.ErrorIs(t, itc.Apply(make([]float64, 4), make([]float64, 4)), ErrNotInitialized)
}
