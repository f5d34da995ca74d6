// Package smoother provides the per-level linear iterations and the coarsest
// level solvers of a multigrid hierarchy.
package smoother

import (
	"errors"
	"fmt"

	"github.com/notargets/DGAMG/algebra"
)

var (
	ErrNotInitialized  = errors.New("smoother: not initialized")
	ErrBreakdown       = errors.New("smoother: zero pivot")
	ErrNotConverged    = errors.New("smoother: iteration did not converge")
	ErrIllConditioned  = errors.New("smoother: ill-conditioned operator")
	ErrDistributedBase = errors.New("smoother: direct base solver needs all rows on one rank")
)

// LinearIterator computes a correction c ≈ M⁻¹·d for an approximate inverse M
// of the operator given to Init. Apply never modifies d.
type LinearIterator interface {
	Init(A *algebra.Matrix) error
	Apply(c, d []float64) error
	// Clone returns an uninitialized copy carrying the same parameters
	Clone() LinearIterator
	Name() string
}

// DefaultJacobiDamping is the classical smoothing factor for the Laplacian
const DefaultJacobiDamping = 2.0 / 3.0

// Jacobi is damped (block) Jacobi: c = ω·D⁻¹·d
type Jacobi struct {
	Damping float64 // DefaultJacobiDamping when zero

	dinv *algebra.BlockDiagonal
}

// NewJacobi returns Jacobi damped by damping, DefaultJacobiDamping when 0
func NewJacobi(damping float64) *Jacobi { return &Jacobi{Damping: damping} }

func (j *Jacobi) Name() string { return "jacobi" }

func (j *Jacobi) Clone() LinearIterator { return &Jacobi{Damping: j.Damping} }

// Init inverts the (block) diagonal of A
func (j *Jacobi) Init(A *algebra.Matrix) error {
	dinv, err := A.DiagonalInverse()
	if err != nil {
		return fmt.Errorf("jacobi: %w", err)
	}
	j.dinv = dinv
	return nil
}

func (j *Jacobi) Apply(c, d []float64) error {
	if j.dinv == nil {
		return ErrNotInitialized
	}
	j.dinv.Apply(c, d)
	w := j.Damping
	if w == 0 {
		w = DefaultJacobiDamping
	}
	for i := range c {
		c[i] *= w
	}
	return nil
}
