package smoother

import (
	"fmt"

	"github.com/notargets/DGAMG/algebra"
)

// Sweep is the traversal order of a Gauss-Seidel step
type Sweep uint8

const (
	Forward Sweep = iota
	Backward
	Symmetric
)

func (s Sweep) String() string {
	switch s {
	case Backward:
		return "backward"
	case Symmetric:
		return "symmetric"
	}
	return "forward"
}

// GaussSeidel is node-block Gauss-Seidel over the locally owned rows. Couplings
// to other ranks are ignored, giving a hybrid Jacobi between ranks that needs
// no communication.
type GaussSeidel struct {
	Sweep Sweep

	A    *algebra.Matrix
	dinv *algebra.BlockDiagonal
	tmp  []float64
}

// NewGaussSeidel sweeps the local rows in the order s
func NewGaussSeidel(s Sweep) *GaussSeidel { return &GaussSeidel{Sweep: s} }

func (gs *GaussSeidel) Name() string { return "gauss-seidel-" + gs.Sweep.String() }

func (gs *GaussSeidel) Clone() LinearIterator { return &GaussSeidel{Sweep: gs.Sweep} }

func (gs *GaussSeidel) Init(A *algebra.Matrix) error {
	dinv, err := A.DiagonalInverse()
	if err != nil {
		return fmt.Errorf("gauss-seidel: %w", err)
	}
	gs.A, gs.dinv = A, dinv
	gs.tmp = make([]float64, A.Rows())
	return nil
}

func (gs *GaussSeidel) Apply(c, d []float64) error {
	if gs.A == nil {
		return ErrNotInitialized
	}
	switch gs.Sweep {
	case Forward:
		gs.sweep(c, d, true)
	case Backward:
		gs.sweep(c, d, false)
	case Symmetric:
		// c = (D+U)⁻¹·D·(D+L)⁻¹·d
		gs.sweep(gs.tmp, d, true)
		gs.blockDiagonal(c, gs.tmp)
		copy(gs.tmp, c)
		gs.sweep(c, gs.tmp, false)
	}
	return nil
}

// sweep solves (D+L)·c = d when forward, (D+U)·c = d otherwise
func (gs *GaussSeidel) sweep(c, d []float64, forward bool) {
	A := gs.A
	bs := A.BlockSize()
	n := A.Rows() / bs
	lo := A.RowOffset()
	r := make([]float64, bs)
	for step := 0; step < n; step++ {
		node := step
		if !forward {
			node = n - 1 - step
		}
		for k := 0; k < bs; k++ {
			row := node*bs + k
			s := d[row]
			cols, vals := A.Row(row)
			for e, col := range cols {
				lc := col - lo
				if lc < 0 || lc >= A.Rows() {
					continue
				}
				other := lc / bs
				if (forward && other < node) || (!forward && other > node) {
					s -= vals[e] * c[lc]
				}
			}
			r[k] = s
		}
		blk := gs.dinv.Block(node)
		for k := 0; k < bs; k++ {
			var s float64
			for m := 0; m < bs; m++ {
				s += blk[k*bs+m] * r[m]
			}
			c[node*bs+k] = s
		}
	}
}

// blockDiagonal computes dst = D·src with D the diagonal blocks of A
func (gs *GaussSeidel) blockDiagonal(dst, src []float64) {
	A := gs.A
	bs := A.BlockSize()
	lo := A.RowOffset()
	for row := 0; row < A.Rows(); row++ {
		node := row / bs
		var s float64
		cols, vals := A.Row(row)
		for e, col := range cols {
			lc := col - lo
			if lc >= node*bs && lc < (node+1)*bs {
				s += vals[e] * src[lc]
			}
		}
		dst[row] = s
	}
}
