package solver

import (
	"log/slog"

	"github.com/notargets/DGAMG/algebra"
)

// Richardson iterates x += ω·M⁻¹(b - A·x)
type Richardson struct {
	Damping float64 // 1 when zero
	settings
}

// NewRichardson damps every correction by damping, 1 when zero
func NewRichardson(damping float64, opts ...Option) *Richardson {
	return &Richardson{Damping: damping, settings: newSettings(opts)}
}

func (r *Richardson) Name() string { return "richardson" }

func (r *Richardson) Solve(A Operator, x, b []float64) (Result, error) {
	if err := checkSizes(A, x, b); err != nil {
		return Result{}, err
	}
	comm := A.Comm()
	w := r.Damping
	if w == 0 {
		w = 1
	}
	n := A.Rows()
	d, c, ac := make([]float64, n), make([]float64, n), make([]float64, n)
	if err := defect(A, d, x, b); err != nil {
		return Result{}, err
	}
	norm, err := algebra.Norm(comm, d)
	if err != nil {
		return Result{}, err
	}
	r.check.Start(norm)
	res := Result{InitialDefect: norm}
	for !r.check.Done() {
		if err := r.precondition(c, d); err != nil {
			return res, err
		}
		if err := A.Apply(ac, c); err != nil {
			return res, err
		}
		algebra.Axpy(x, w, c)
		algebra.Axpy(d, -w, ac)
		if norm, err = algebra.Norm(comm, d); err != nil {
			return res, err
		}
		r.check.Update(norm)
		r.log.Debug("richardson step", slog.Int("step", r.check.Step()), slog.Float64("defect", norm))
	}
	return r.finish(r.Name(), res)
}
