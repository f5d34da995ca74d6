package solver

import (
	"fmt"
	"log/slog"

	"github.com/notargets/DGAMG/algebra"
)

// CG is the preconditioned conjugate gradient method for symmetric positive
// definite operators and preconditioners
type CG struct {
	settings
}

// NewCG returns PCG, unpreconditioned unless WithPreconditioner is given
func NewCG(opts ...Option) *CG { return &CG{settings: newSettings(opts)} }

func (cg *CG) Name() string { return "cg" }

func (cg *CG) Solve(A Operator, x, b []float64) (Result, error) {
	if err := checkSizes(A, x, b); err != nil {
		return Result{}, err
	}
	comm := A.Comm()
	n := A.Rows()
	r, z, p, q := make([]float64, n), make([]float64, n), make([]float64, n), make([]float64, n)
	if err := defect(A, r, x, b); err != nil {
		return Result{}, err
	}
	norm, err := algebra.Norm(comm, r)
	if err != nil {
		return Result{}, err
	}
	cg.check.Start(norm)
	res := Result{InitialDefect: norm}

	rho := 0.0
	for !cg.check.Done() {
		if err := cg.precondition(z, r); err != nil {
			return res, err
		}
		rhoNew, err := algebra.Dot(comm, r, z)
		if err != nil {
			return res, err
		}
		if cg.check.Step() == 0 {
			copy(p, z)
		} else {
			beta := rhoNew / rho
			for i := range p {
				p[i] = z[i] + beta*p[i]
			}
		}
		rho = rhoNew
		if err := A.Apply(q, p); err != nil {
			return res, err
		}
		pq, err := algebra.Dot(comm, p, q)
		if err != nil {
			return res, err
		}
		if pq <= 0 {
			return res, fmt.Errorf("cg: pᵀAp = %g, operator not positive definite: %w", pq, ErrNotConverged)
		}
		alpha := rho / pq
		algebra.Axpy(x, alpha, p)
		algebra.Axpy(r, -alpha, q)
		if norm, err = algebra.Norm(comm, r); err != nil {
			return res, err
		}
		cg.check.Update(norm)
		cg.log.Debug("cg step", slog.Int("step", cg.check.Step()), slog.Float64("defect", norm))
	}
	return cg.finish(cg.Name(), res)
}
