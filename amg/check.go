package amg

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/notargets/DGAMG/algebra"
)

// LevelCheck is the defect history of cycles started on one level
type LevelCheck struct {
	Level   int
	Defects []float64 // before the first cycle and after each cycle
}

// Rates returns the defect reduction of each cycle
func (lc LevelCheck) Rates() []float64 {
	var r []float64
	for i := 1; i < len(lc.Defects); i++ {
		if lc.Defects[i-1] == 0 {
			r = append(r, 0)
			continue
		}
		r = append(r, lc.Defects[i]/lc.Defects[i-1])
	}
	return r
}

// AverageRate is the geometric mean of Rates
func (lc LevelCheck) AverageRate() float64 {
	n := len(lc.Defects) - 1
	if n < 1 || lc.Defects[0] == 0 {
		return 0
	}
	return math.Pow(lc.Defects[n]/lc.Defects[0], 1/float64(n))
}

// CheckLevel measures how well the hierarchy below level L solves that level:
// it runs cycles cycles starting on L for the defect of a fixed oscillating
// error and records the defect norms. The start vector depends on the global
// index only, so the history does not depend on the number of ranks. Cycle
// counters are left as they were. Collective.
func (a *AMG) CheckLevel(L, cycles int) (LevelCheck, error) {
	if len(a.levels) == 0 {
		return LevelCheck{}, ErrNotPreprocessed
	}
	if L < 0 || L >= len(a.levels)-1 {
		return LevelCheck{}, configErr("check level %d outside the %d non-base levels", L, len(a.levels)-1)
	}
	if cycles < 1 {
		return LevelCheck{}, configErr("check cycles %d, has to be > 0", cycles)
	}
	lv := a.levels[L]
	comm := lv.A.Comm()
	e := make([]float64, lv.A.Rows())
	for i := range e {
		g := lv.A.RowOffset() + i
		e[i] = math.Mod(float64(g+1)*0.6180339887498949, 1) - 0.5
	}
	if err := lv.A.Apply(lv.d, e); err != nil {
		return LevelCheck{}, fmt.Errorf("check level %d: %w", L, err)
	}

	saved := append([]int(nil), a.calls...)
	defer copy(a.calls, saved)

	lc := LevelCheck{Level: L}
	norm, err := algebra.Norm(comm, lv.d)
	if err != nil {
		return lc, err
	}
	lc.Defects = append(lc.Defects, norm)
	for k := 0; k < cycles; k++ {
		// cycle leaves the remaining defect in lv.d
		if err := a.cycle(L); err != nil {
			return lc, err
		}
		if norm, err = algebra.Norm(comm, lv.d); err != nil {
			return lc, err
		}
		lc.Defects = append(lc.Defects, norm)
	}
	a.log.Info("amg level check",
		slog.String("build", a.buildID.String()),
		slog.Int("level", L),
		slog.Int("cycles", cycles),
		slog.Float64("average_rate", lc.AverageRate()))
	return lc, nil
}
