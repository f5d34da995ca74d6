package smoother

import (
	"errors"
	"fmt"
	"math"

	"github.com/notargets/gocfd/utils"
	"gonum.org/v1/gonum/mat"

	"github.com/notargets/DGAMG/algebra"
	"github.com/notargets/DGAMG/solver"
)

// BaseSolver solves the coarsest level of a hierarchy
type BaseSolver interface {
	Init(A *algebra.Matrix) error
	Apply(c, d []float64) error
	// Clone returns an uninitialized copy carrying the same parameters
	Clone() BaseSolver
	Name() string
}

// DefaultMaxCondition rejects base operators whose LU factors are numerically singular
const DefaultMaxCondition = 1e14

// LU is a dense direct solver. All rows of the operator must live on one rank;
// ranks without rows do nothing.
type LU struct {
	MaxCondition float64

	n  int
	lu mat.LU
	b  *mat.VecDense
}

// NewLU rejects base operators with a condition above DefaultMaxCondition
func NewLU() *LU { return &LU{MaxCondition: DefaultMaxCondition} }

func (l *LU) Name() string { return "lu" }

func (l *LU) Clone() BaseSolver { return &LU{MaxCondition: l.MaxCondition} }

func (l *LU) Init(A *algebra.Matrix) error {
	n := A.Rows()
	l.n = n
	if n == 0 {
		return nil
	}
	if A.RowOffset() != 0 || A.Cols() != n {
		return fmt.Errorf("%d of %d rows at offset %d: %w", n, A.Cols(), A.RowOffset(), ErrDistributedBase)
	}
	dense := utils.NewMatrix(n, n)
	for i := 0; i < n; i++ {
		cols, vals := A.Row(i)
		for k, j := range cols {
			dense.M.Set(i, j, vals[k])
		}
	}
	l.lu.Factorize(dense.M)
	maxCond := l.MaxCondition
	if maxCond == 0 {
		maxCond = DefaultMaxCondition
	}
	if cond := l.lu.Cond(); math.IsInf(cond, 1) || math.IsNaN(cond) || cond > maxCond {
		return fmt.Errorf("%dx%d base operator, condition %g: %w", n, n, cond, ErrIllConditioned)
	}
	l.b = mat.NewVecDense(n, nil)
	return nil
}

func (l *LU) Apply(c, d []float64) error {
	if l.n == 0 {
		return nil
	}
	if l.b == nil {
		return ErrNotInitialized
	}
	copy(l.b.RawVector().Data, d)
	x := mat.NewVecDense(l.n, c)
	if err := l.lu.SolveVecTo(x, false, l.b); err != nil {
		return fmt.Errorf("lu solve: %v: %w", err, ErrIllConditioned)
	}
	return nil
}

// IterativeBase solves the coarsest level with preconditioned conjugate
// gradients to a tight relative tolerance. It works on distributed operators.
type IterativeBase struct {
	Tolerance      float64        // relative defect reduction, 1e-10 when zero
	MaxIterations  int            // 500 when zero
	Preconditioner LinearIterator // Jacobi when nil

	A             *algebra.Matrix
	cg            *solver.CG
	lastIteration int
}

func (it *IterativeBase) Name() string { return "pcg" }

func (it *IterativeBase) Clone() BaseSolver {
	c := &IterativeBase{Tolerance: it.Tolerance, MaxIterations: it.MaxIterations}
	if it.Preconditioner != nil {
		c.Preconditioner = it.Preconditioner.Clone()
	}
	return c
}

// Iterations is the iteration count of the last Apply
func (it *IterativeBase) Iterations() int { return it.lastIteration }

func (it *IterativeBase) Init(A *algebra.Matrix) error {
	if it.Preconditioner == nil {
		it.Preconditioner = NewJacobi(1)
	}
	if err := it.Preconditioner.Init(A); err != nil {
		return fmt.Errorf("base preconditioner: %w", err)
	}
	tol, maxIter := it.Tolerance, it.MaxIterations
	if tol == 0 {
		tol = 1e-10
	}
	if maxIter == 0 {
		maxIter = 500
	}
	it.A = A
	it.cg = solver.NewCG(
		solver.WithPreconditioner(it.Preconditioner),
		solver.WithConvergenceCheck(solver.NewStdConvergenceCheck(maxIter, 0, tol)))
	return nil
}

// Apply solves A·c = d from a zero start
func (it *IterativeBase) Apply(c, d []float64) error {
	if it.A == nil {
		return ErrNotInitialized
	}
	clear(c)
	res, err := it.cg.Solve(it.A, c, d)
	it.lastIteration = res.Iterations
	if errors.Is(err, solver.ErrNotConverged) {
		return fmt.Errorf("%w: %w", ErrNotConverged, err)
	}
	return err
}
