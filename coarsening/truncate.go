package coarsening

import (
	"math"

	"github.com/notargets/DGAMG/algebra"
)

// Truncate drops interpolation weights below eps times the largest weight of
// their row and rescales the survivors so each row keeps its original sum.
// eps <= 0 returns P unchanged.
func Truncate(P *algebra.Matrix, eps float64) *algebra.Matrix {
	if eps <= 0 {
		return P
	}
	b := algebra.NewBuilder(P.Rows(), P.Cols()).
		WithRowOffset(P.RowOffset()).
		WithBlockSize(P.BlockSize())
	for i := 0; i < P.Rows(); i++ {
		cols, vals := P.Row(i)
		maxW, sum := 0.0, 0.0
		for _, v := range vals {
			maxW = math.Max(maxW, math.Abs(v))
			sum += v
		}
		kept := 0.0
		for _, v := range vals {
			if math.Abs(v) >= eps*maxW {
				kept += v
			}
		}
		scale := 1.0
		if kept != 0 {
			scale = sum / kept
		}
		for k, j := range cols {
			if math.Abs(vals[k]) >= eps*maxW {
				b.Add(i, j, vals[k]*scale)
			}
		}
	}
	return b.Build()
}

// RowSums returns the sum of every local row
func RowSums(P *algebra.Matrix) []float64 {
	s := make([]float64, P.Rows())
	for i := range s {
		_, vals := P.Row(i)
		for _, v := range vals {
			s[i] += v
		}
	}
	return s
}
