// Package solver holds the outer iterations driven by a multigrid preconditioner
package solver

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/notargets/DGAMG/algebra"
	"github.com/notargets/DGAMG/metrics"
	"github.com/notargets/DGAMG/partitions"
)

var ErrNotConverged = errors.New("solver: not converged")

// Operator is the distributed linear operator of a solve
type Operator interface {
	Rows() int
	Comm() partitions.Communicator
	Apply(dst, src []float64) error
}

// Preconditioner computes a correction c ≈ A⁻¹·d. amg.AMG and the smoothers
// implement it.
type Preconditioner interface {
	Init(A *algebra.Matrix) error
	Apply(c, d []float64) error
}

// Result summarises one solve
type Result struct {
	Iterations    int
	InitialDefect float64
	FinalDefect   float64
	Converged     bool
}

// Solver is common to Richardson and CG
type Solver interface {
	Solve(A Operator, x, b []float64) (Result, error)
	Name() string
}

type settings struct {
	precond Preconditioner
	check   ConvergenceCheck
	log     *slog.Logger
	metrics *metrics.Collector
}

// Option configures a Solver at construction
type Option func(*settings)

// WithPreconditioner applies p to every defect
func WithPreconditioner(p Preconditioner) Option { return func(s *settings) { s.precond = p } }

// WithConvergenceCheck replaces the default check of 100 steps, 1e-14
// absolute and 1e-8 relative
func WithConvergenceCheck(c ConvergenceCheck) Option { return func(s *settings) { s.check = c } }

// WithLogger receives one record per solve and per step at Debug
func WithLogger(l *slog.Logger) Option { return func(s *settings) { s.log = l } }

// WithMetrics records the iterations of each solve
func WithMetrics(m *metrics.Collector) Option { return func(s *settings) { s.metrics = m } }

func newSettings(opts []Option) settings {
	s := settings{
		check: NewStdConvergenceCheck(100, 1e-14, 1e-8),
		log:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

// precondition applies the preconditioner, or copies d without one
func (s *settings) precondition(c, d []float64) error {
	if s.precond == nil {
		copy(c, d)
		return nil
	}
	return s.precond.Apply(c, d)
}

// finish records the outcome of a solve
func (s *settings) finish(name string, res Result) (Result, error) {
	res.Iterations = s.check.Step()
	res.FinalDefect = s.check.Defect()
	res.Converged = s.check.Converged()
	s.metrics.ObserveSolve(name, res.Iterations, res.Converged)
	s.log.Info("linear solve",
		slog.String("solver", name),
		slog.Int("iterations", res.Iterations),
		slog.Float64("defect", res.FinalDefect),
		slog.Float64("reduction", s.check.Reduction()),
		slog.Bool("converged", res.Converged))
	if !res.Converged {
		return res, fmt.Errorf("%s after %d iterations, defect %g: %w",
			name, res.Iterations, res.FinalDefect, ErrNotConverged)
	}
	return res, nil
}

// defect computes d = b - A·x
func defect(A Operator, d, x, b []float64) error {
	if err := A.Apply(d, x); err != nil {
		return err
	}
	for i := range d {
		d[i] = b[i] - d[i]
	}
	return nil
}

func checkSizes(A Operator, x, b []float64) error {
	if len(x) != A.Rows() || len(b) != A.Rows() {
		return fmt.Errorf("x of %d and b of %d for %d rows: %w", len(x), len(b), A.Rows(), algebra.ErrDimension)
	}
	return nil
}
