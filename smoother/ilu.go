package smoother

import (
	"fmt"

	"github.com/notargets/DGAMG/algebra"
)

// ILU is the incomplete LU factorization with the sparsity pattern of the
// locally owned diagonal block of A
type ILU struct {
	n      int
	rowPtr []int
	cols   []int // local column indices, sorted per row
	vals   []float64
	diag   []int // position of the diagonal entry in each row
	y      []float64
}

// NewILU returns an ILU(0) of the locally owned diagonal block
func NewILU() *ILU { return &ILU{} }

func (ilu *ILU) Name() string { return "ilu0" }

func (ilu *ILU) Clone() LinearIterator { return &ILU{} }

func (ilu *ILU) Init(A *algebra.Matrix) error {
	n, lo := A.Rows(), A.RowOffset()
	ilu.n = n
	ilu.rowPtr = make([]int, n+1)
	ilu.cols, ilu.vals = nil, nil
	ilu.diag = make([]int, n)
	for i := 0; i < n; i++ {
		ilu.diag[i] = -1
		cols, vals := A.Row(i)
		for k, c := range cols {
			lc := c - lo
			if lc < 0 || lc >= n {
				continue
			}
			if lc == i {
				ilu.diag[i] = len(ilu.cols)
			}
			ilu.cols = append(ilu.cols, lc)
			ilu.vals = append(ilu.vals, vals[k])
		}
		if ilu.diag[i] < 0 {
			return fmt.Errorf("ilu row %d has no diagonal: %w", lo+i, ErrBreakdown)
		}
		ilu.rowPtr[i+1] = len(ilu.cols)
	}

	// IKJ variant restricted to the pattern
	pos := make([]int, n)
	for i := range pos {
		pos[i] = -1
	}
	for i := 0; i < n; i++ {
		for e := ilu.rowPtr[i]; e < ilu.rowPtr[i+1]; e++ {
			pos[ilu.cols[e]] = e
		}
		for e := ilu.rowPtr[i]; e < ilu.diag[i]; e++ {
			k := ilu.cols[e]
			pivot := ilu.vals[ilu.diag[k]]
			if pivot == 0 {
				return fmt.Errorf("ilu pivot %d: %w", lo+k, ErrBreakdown)
			}
			ilu.vals[e] /= pivot
			for f := ilu.diag[k] + 1; f < ilu.rowPtr[k+1]; f++ {
				if p := pos[ilu.cols[f]]; p >= 0 {
					ilu.vals[p] -= ilu.vals[e] * ilu.vals[f]
				}
			}
		}
		if ilu.vals[ilu.diag[i]] == 0 {
			return fmt.Errorf("ilu pivot %d: %w", lo+i, ErrBreakdown)
		}
		for e := ilu.rowPtr[i]; e < ilu.rowPtr[i+1]; e++ {
			pos[ilu.cols[e]] = -1
		}
	}
	ilu.y = make([]float64, n)
	return nil
}

// Apply solves L·U·c = d with unit lower L
func (ilu *ILU) Apply(c, d []float64) error {
	if ilu.y == nil {
		return ErrNotInitialized
	}
	for i := 0; i < ilu.n; i++ {
		s := d[i]
		for e := ilu.rowPtr[i]; e < ilu.diag[i]; e++ {
			s -= ilu.vals[e] * ilu.y[ilu.cols[e]]
		}
		ilu.y[i] = s
	}
	for i := ilu.n - 1; i >= 0; i-- {
		s := ilu.y[i]
		for e := ilu.diag[i] + 1; e < ilu.rowPtr[i+1]; e++ {
			s -= ilu.vals[e] * c[ilu.cols[e]]
		}
		c[i] = s / ilu.vals[ilu.diag[i]]
	}
	return nil
}
