package amg

import (
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/notargets/DGAMG/algebra"
	"github.com/notargets/DGAMG/coarsening"
	"github.com/notargets/DGAMG/partitions"
	"github.com/notargets/DGAMG/smoother"
)

// Level is one operator of the hierarchy with the transfers to the next
// coarser level. The base level has no P, R or smoothers.
type Level struct {
	Index int
	A     *algebra.Matrix
	// P interpolates from the coarse unknowns in the layout Coarsen produced, R
	// restricts into it. The next level may live on fewer ranks, Collect of the
	// next level moves between the two layouts.
	P, R *algebra.Matrix
	Tags []coarsening.NodeTag

	Pre, Post smoother.LinearIterator
	// Collect maps the layout A was produced in onto the layout A lives in, nil
	// when no ranks were merged
	Collect *partitions.Redistribution

	Info LevelInformation

	dinv      *algebra.BlockDiagonal // F-smoothing only
	c, d, tmp []float64
	dH, cH    []float64
}

// IsBase reports whether the level is solved directly
func (lv *Level) IsBase() bool { return lv.P == nil }

// LevelInformation summarises one level over all ranks
type LevelInformation struct {
	Level             int
	Unknowns          algebra.MinMaxSum
	NNZ               algebra.MinMaxSum
	MaxRowNNZ         int
	Fill              float64
	ActiveRanks       int
	InterfaceElements int     // ghost columns summed over ranks
	Imbalance         float64 // largest rank size over the mean rank size

	// CreationTime covers coarsening, transfers, Galerkin product and smoother
	// setup, or the base solver setup on the base level
	CreationTime time.Duration

	// CoarseningRate is the unknown count of the next level over this one, 0 on
	// the base level
	CoarseningRate float64

	Merged bool
	Base   bool
}

// AvgNNZPerRow is the mean number of nonzeros in a row of the level
func (li LevelInformation) AvgNNZPerRow() float64 {
	if li.Unknowns.Sum == 0 {
		return 0
	}
	return float64(li.NNZ.Sum) / float64(li.Unknowns.Sum)
}

func (li LevelInformation) String() string {
	kind := "smooth"
	if li.Base {
		kind = "base"
	}
	return fmt.Sprintf("%2d %-6s n=%8d nnz=%10d fill=%6.2f%% avg/row=%6.2f rate=%5.3f procs=%3d min/max n=%d/%d imbalance=%.2f interface=%d time=%v",
		li.Level, kind, li.Unknowns.Sum, li.NNZ.Sum, 100*li.Fill, li.AvgNNZPerRow(), li.CoarseningRate,
		li.ActiveRanks, li.Unknowns.Min, li.Unknowns.Max, li.Imbalance, li.InterfaceElements, li.CreationTime)
}

func levelInformation(level int, A *algebra.Matrix, st algebra.Stats) (LevelInformation, error) {
	ghosts := 0
	if h := A.Halo(); h != nil {
		ghosts = h.NumGhosts()
	}
	sum, err := partitions.AllReduceInts(A.Comm(), []int{ghosts}, partitions.Sum)
	if err != nil {
		return LevelInformation{}, err
	}
	li := LevelInformation{
		Level:             level,
		Unknowns:          st.Rows,
		NNZ:               st.NNZ,
		MaxRowNNZ:         st.MaxRowNNZ,
		Fill:              st.Fill(),
		ActiveRanks:       st.Active,
		InterfaceElements: sum[0],
	}
	if l := A.RowLayout(); l != nil {
		li.Imbalance = l.LayoutStatistics().Imbalance
	}
	return li, nil
}

// LevelInformationTable renders all levels, one per line, with the complexities
func (a *AMG) LevelInformationTable() string {
	var b strings.Builder
	for _, lv := range a.levels {
		b.WriteString(lv.Info.String())
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "operator complexity %.3f, grid complexity %.3f\n", a.opComplexity, a.gridComplex)
	return b.String()
}

// LogLevelInformation writes one record per level at Info
func (a *AMG) LogLevelInformation() {
	for _, lv := range a.levels {
		li := lv.Info
		a.log.Info("amg level",
			slog.String("build", a.buildID.String()),
			slog.Int("level", li.Level),
			slog.Bool("base", li.Base),
			slog.Int("unknowns", li.Unknowns.Sum),
			slog.Int("nnz", li.NNZ.Sum),
			slog.Float64("fill", li.Fill),
			slog.Int("procs", li.ActiveRanks),
			slog.Int("interface", li.InterfaceElements),
			slog.Float64("imbalance", li.Imbalance),
			slog.Float64("coarsening_rate", li.CoarseningRate),
			slog.Duration("creation", li.CreationTime),
		)
	}
	a.log.Info("amg hierarchy",
		slog.String("build", a.buildID.String()),
		slog.Int("levels", len(a.levels)),
		slog.Float64("operator_complexity", a.opComplexity),
		slog.Float64("grid_complexity", a.gridComplex),
		slog.Duration("setup", a.setupTime),
		slog.Duration("base_setup", a.baseSetupTime),
	)
}

func (lv *Level) allocate() {
	n := lv.A.Rows()
	lv.c = make([]float64, n)
	lv.d = make([]float64, n)
	lv.tmp = make([]float64, n)
	if lv.R != nil {
		lv.dH = make([]float64, lv.R.Rows())
		lv.cH = make([]float64, lv.R.Rows())
	}
}
