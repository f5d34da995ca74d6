package amg

import (
	"fmt"
	"strconv"

	"github.com/notargets/DGAMG/algebra"
	"github.com/notargets/DGAMG/coarsening"
	"github.com/notargets/DGAMG/smoother"
)

// GetCorrection applies one multigrid cycle: c ≈ A⁻¹·d. d is not modified.
// Collective.
func (a *AMG) GetCorrection(c, d []float64) error {
	if len(a.levels) == 0 {
		return ErrNotPreprocessed
	}
	if len(c) != a.inputRows || len(d) != a.inputRows {
		return fmt.Errorf("correction of %d and defect of %d for %d rows: %w",
			len(c), len(d), a.inputRows, algebra.ErrDimension)
	}
	lv := a.levels[0]
	if lv.Collect != nil {
		if err := lv.Collect.Forward(d, lv.d); err != nil {
			return err
		}
	} else {
		copy(lv.d, d)
	}
	if err := a.cycle(0); err != nil {
		a.metrics.IncFailure("cycle", kindLabel(err))
		return err
	}
	if lv.Collect != nil {
		if err := lv.Collect.Backward(lv.c, c); err != nil {
			return err
		}
	} else {
		copy(c, lv.c)
	}
	a.metrics.IncCycle(a.cycleName())
	return nil
}

func (a *AMG) cycleName() string {
	switch {
	case a.yCycle > 0:
		return "Y"
	case a.cycleType == 1:
		return "V"
	case a.cycleType == 2:
		return "W"
	}
	return strconv.Itoa(a.cycleType)
}

// cycle computes lv.c from lv.d on level L and the levels below it. On return
// lv.d holds the remaining defect.
func (a *AMG) cycle(L int) error {
	lv := a.levels[L]
	a.calls[L]++
	clear(lv.c)
	if lv.IsBase() {
		if err := a.baseSolver.Apply(lv.c, lv.d); err != nil {
			return &LevelError{Level: L, Op: "base solver", Kind: ErrNumerical, Err: err}
		}
		return nil
	}

	for i := 0; i < a.numPresmooth; i++ {
		if err := a.smooth(lv, lv.Pre); err != nil {
			return &LevelError{Level: L, Op: "presmoothing", Kind: ErrNumerical, Err: err}
		}
	}
	if lv.dinv != nil {
		if err := a.fineSmooth(lv); err != nil {
			return &LevelError{Level: L, Op: "f-smoothing", Kind: ErrNumerical, Err: err}
		}
	}

	next := a.levels[L+1]
	var first float64
	for i := 0; i < max(a.cycleType, a.yCycle); i++ {
		if err := lv.R.Apply(lv.dH, lv.d); err != nil {
			return &LevelError{Level: L, Op: "restriction", Kind: ErrNumerical, Err: err}
		}
		if a.yCycle > 0 {
			norm, err := algebra.Norm(lv.R.Comm(), lv.dH)
			if err != nil {
				return &LevelError{Level: L, Op: "y-cycle", Kind: ErrNumerical, Err: err}
			}
			if i == 0 {
				first = norm
			} else if norm <= a.yReduce*first || norm <= a.yAbs {
				break
			}
		}
		if next.Collect != nil {
			if err := next.Collect.Forward(lv.dH, next.d); err != nil {
				return &LevelError{Level: L, Op: "collect", Kind: ErrNumerical, Err: err}
			}
		} else {
			copy(next.d, lv.dH)
		}
		if err := a.cycle(L + 1); err != nil {
			return err
		}
		if next.Collect != nil {
			if err := next.Collect.Backward(next.c, lv.cH); err != nil {
				return &LevelError{Level: L, Op: "scatter", Kind: ErrNumerical, Err: err}
			}
		} else {
			copy(lv.cH, next.c)
		}
		if err := lv.P.Apply(lv.tmp, lv.cH); err != nil {
			return &LevelError{Level: L, Op: "interpolation", Kind: ErrNumerical, Err: err}
		}
		if err := a.addCorrection(lv, lv.tmp); err != nil {
			return &LevelError{Level: L, Op: "coarse correction", Kind: ErrNumerical, Err: err}
		}
	}

	for i := 0; i < a.numPostsmooth; i++ {
		if err := a.smooth(lv, lv.Post); err != nil {
			return &LevelError{Level: L, Op: "postsmoothing", Kind: ErrNumerical, Err: err}
		}
	}
	return nil
}

func (a *AMG) smooth(lv *Level, s smoother.LinearIterator) error {
	if err := s.Apply(lv.tmp, lv.d); err != nil {
		return err
	}
	return a.addCorrection(lv, lv.tmp)
}

// fineSmooth relaxes the fine nodes only with one Jacobi step
func (a *AMG) fineSmooth(lv *Level) error {
	lv.dinv.Apply(lv.tmp, lv.d)
	bs := lv.A.BlockSize()
	for node, t := range lv.Tags {
		if t == coarsening.Coarse {
			clear(lv.tmp[node*bs : (node+1)*bs])
		}
	}
	return a.addCorrection(lv, lv.tmp)
}

// addCorrection adds step to the correction and removes A·step from the defect
func (a *AMG) addCorrection(lv *Level, step []float64) error {
	algebra.Axpy(lv.c, 1, step)
	return lv.A.Residual(lv.d, step)
}
