package solver

import (
	"fmt"
	"math"
	"strings"
)

// ConvergenceCheck tracks the defect norm of an iteration
type ConvergenceCheck interface {
	Start(defect float64)
	Update(defect float64)
	// Done reports whether the iteration should stop
	Done() bool
	Converged() bool
	Step() int
	Defect() float64
	// Reduction is the current defect relative to the initial one
	Reduction() float64
}

// StdConvergenceCheck stops once the defect drops below Absolute or by the
// factor Relative, after MaxSteps steps, or when the defect is not finite
type StdConvergenceCheck struct {
	MaxSteps int
	Absolute float64
	Relative float64

	History []float64
	step    int
}

// NewStdConvergenceCheck stops after maxSteps steps, below the absolute
// defect, or once the defect dropped by the relative factor
func NewStdConvergenceCheck(maxSteps int, absolute, relative float64) *StdConvergenceCheck {
	return &StdConvergenceCheck{MaxSteps: maxSteps, Absolute: absolute, Relative: relative}
}

func (s *StdConvergenceCheck) Start(defect float64) {
	s.step = 0
	s.History = append(s.History[:0], defect)
}

func (s *StdConvergenceCheck) Update(defect float64) {
	s.step++
	s.History = append(s.History, defect)
}

func (s *StdConvergenceCheck) Step() int { return s.step }

func (s *StdConvergenceCheck) Defect() float64 {
	if len(s.History) == 0 {
		return math.NaN()
	}
	return s.History[len(s.History)-1]
}

func (s *StdConvergenceCheck) initial() float64 {
	if len(s.History) == 0 {
		return math.NaN()
	}
	return s.History[0]
}

func (s *StdConvergenceCheck) Reduction() float64 {
	if s.initial() == 0 {
		return 0
	}
	return s.Defect() / s.initial()
}

func (s *StdConvergenceCheck) Converged() bool {
	d := s.Defect()
	return d <= s.Absolute || d <= s.Relative*s.initial()
}

func (s *StdConvergenceCheck) Done() bool {
	d := s.Defect()
	return s.Converged() || s.step >= s.MaxSteps || math.IsNaN(d) || math.IsInf(d, 0)
}

// Rates returns the per-step reduction factors
func (s *StdConvergenceCheck) Rates() []float64 {
	var r []float64
	for i := 1; i < len(s.History); i++ {
		if s.History[i-1] == 0 {
			r = append(r, 0)
			continue
		}
		r = append(r, s.History[i]/s.History[i-1])
	}
	return r
}

func (s *StdConvergenceCheck) String() string {
	var b strings.Builder
	for i, d := range s.History {
		fmt.Fprintf(&b, "%4d %12.6e\n", i, d)
	}
	return b.String()
}

// FixedConvergenceCheck runs exactly Steps steps and always counts as converged
type FixedConvergenceCheck struct {
	StdConvergenceCheck
	Steps int
}

// NewFixedConvergenceCheck runs exactly steps steps
func NewFixedConvergenceCheck(steps int) *FixedConvergenceCheck {
	return &FixedConvergenceCheck{Steps: steps}
}

func (f *FixedConvergenceCheck) Converged() bool { return f.step >= f.Steps }
func (f *FixedConvergenceCheck) Done() bool      { return f.step >= f.Steps }
