package amg

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/notargets/DGAMG/algebra"
	"github.com/notargets/DGAMG/coarsening"
	"github.com/notargets/DGAMG/partitions"
)

// Init implements smoother.LinearIterator
func (a *AMG) Init(A *algebra.Matrix) error { return a.Preprocess(A) }

// Apply implements smoother.LinearIterator
func (a *AMG) Apply(c, d []float64) error { return a.GetCorrection(c, d) }

// Cleanup releases the hierarchy. It is safe to call repeatedly.
func (a *AMG) Cleanup() {
	a.levels = nil
	a.calls = nil
	a.inputRows = 0
	a.buildID = uuid.Nil
	a.opComplexity, a.gridComplex = 0, 0
	a.setupTime, a.baseSetupTime = 0, 0
}

// Preprocess builds the hierarchy for A. A is attached to the communicator
// of the AMG if it is not attached yet. Any failure leaves the AMG cleaned up.
// Collective.
func (a *AMG) Preprocess(A *algebra.Matrix) (err error) {
	a.Cleanup()
	start := time.Now()
	defer func() {
		if err == nil {
			return
		}
		op := "preprocess"
		var le *LevelError
		if errors.As(err, &le) {
			op = le.Op
		}
		a.metrics.IncFailure(op, kindLabel(err))
		a.log.Error("amg setup failed", slog.String("op", op), slog.Any("err", err))
		a.Cleanup()
	}()

	if A == nil {
		return fmt.Errorf("%w: nil matrix", ErrConstruction)
	}
	comm := a.comm
	if !A.IsAttached() {
		if err := A.Attach(nil, comm); err != nil {
			return fmt.Errorf("%w: attach input: %w", ErrConstruction, err)
		}
	} else if A.Comm().Size() != comm.Size() {
		return fmt.Errorf("%w: matrix attached to %d ranks, amg runs on %d",
			ErrConstruction, A.Comm().Size(), comm.Size())
	}
	st, err := A.Statistics()
	if err != nil {
		return &LevelError{Level: 0, Op: "statistics", Kind: ErrConstruction, Err: err}
	}
	if st.Rows.Sum == 0 {
		return fmt.Errorf("%w: matrix has no rows", ErrConstruction)
	}
	a.inputRows = A.Rows()

	cur := A
	base := a.isBase(0, st)
	cur, collect, err := a.placeLevel(0, cur, base, st)
	if err != nil {
		return err
	}
	for L := 0; ; L++ {
		if collect != nil {
			if st, err = cur.Statistics(); err != nil {
				return &LevelError{Level: L, Op: "statistics", Kind: ErrConstruction, Err: err}
			}
		}
		lv := &Level{Index: L, A: cur, Collect: collect}
		if lv.Info, err = levelInformation(L, cur, st); err != nil {
			return &LevelError{Level: L, Op: "statistics", Kind: ErrConstruction, Err: err}
		}
		lv.Info.Merged = collect != nil
		lv.Info.Base = base
		a.levels = append(a.levels, lv)

		if base {
			t0 := time.Now()
			if err := a.baseSolver.Init(cur); err != nil {
				return &LevelError{Level: L, Op: "base solver", Kind: ErrConstruction, Err: err}
			}
			a.baseSetupTime = time.Since(t0)
			lv.Info.CreationTime = a.baseSetupTime
			lv.allocate()
			break
		}

		t0 := time.Now()
		next, err := a.buildLevel(lv)
		if err != nil {
			return err
		}
		lv.Info.CreationTime = time.Since(t0)
		if st, err = next.Statistics(); err != nil {
			return &LevelError{Level: L + 1, Op: "statistics", Kind: ErrConstruction, Err: err}
		}
		lv.Info.CoarseningRate = float64(st.Rows.Sum) / float64(lv.Info.Unknowns.Sum)
		base = a.isBase(L+1, st)
		if cur, collect, err = a.placeLevel(L+1, next, base, st); err != nil {
			return err
		}
	}

	a.calls = make([]int, len(a.levels))
	var nnz, rows float64
	for _, lv := range a.levels {
		nnz += float64(lv.Info.NNZ.Sum)
		rows += float64(lv.Info.Unknowns.Sum)
	}
	fine := a.levels[0].Info
	if fine.NNZ.Sum > 0 {
		a.opComplexity = nnz / float64(fine.NNZ.Sum)
	}
	a.gridComplex = rows / float64(fine.Unknowns.Sum)
	a.setupTime = time.Since(start)
	a.buildID = uuid.New()

	unknowns := make([]int, len(a.levels))
	for i, lv := range a.levels {
		unknowns[i] = lv.Info.Unknowns.Sum
	}
	a.metrics.ObserveSetup(a.setupTime, unknowns, a.opComplexity, a.gridComplex)
	a.log.Debug("amg setup done",
		slog.String("build", a.buildID.String()),
		slog.String("strategy", a.strategy.Name()),
		slog.Int("levels", len(a.levels)),
		slog.Duration("setup", a.setupTime))
	return nil
}

// isBase decides globally whether level L is solved directly
func (a *AMG) isBase(L int, st algebra.Stats) bool {
	return st.Rows.Sum <= a.maxNodesForBase ||
		st.Fill() >= a.maxFillBeforeBase ||
		L+1 >= a.maxLevels
}

// buildLevel coarsens lv.A, sets up the transfers and smoothers and returns the
// Galerkin operator of the next level
func (a *AMG) buildLevel(lv *Level) (*algebra.Matrix, error) {
	L, A := lv.Index, lv.A
	comm := A.Comm()
	res, err := a.strategy.Coarsen(A)
	if err != nil {
		return nil, &LevelError{Level: L, Op: "coarsening", Kind: ErrConstruction, Err: err}
	}
	P := coarsening.Truncate(res.P, a.epsTruncation)
	if err := P.Attach(res.CoarseLayout, comm); err != nil {
		return nil, &LevelError{Level: L, Op: "interpolation", Kind: ErrConstruction, Err: err}
	}
	R := res.R
	if res.RestrictionIsTranspose() {
		if R, err = P.Transpose(); err != nil {
			return nil, &LevelError{Level: L, Op: "restriction", Kind: ErrConstruction, Err: err}
		}
	}
	Ac, err := algebra.TripleProduct(R, A, P)
	if err != nil {
		return nil, &LevelError{Level: L, Op: "galerkin", Kind: ErrConstruction, Err: err}
	}
	lv.P, lv.R, lv.Tags = P, R, res.Tags

	lv.Pre = a.presmoother.Clone()
	if err := lv.Pre.Init(A); err != nil {
		return nil, &LevelError{Level: L, Op: "presmoother", Kind: ErrConstruction, Err: err}
	}
	lv.Post = a.postsmoother.Clone()
	if err := lv.Post.Init(A); err != nil {
		return nil, &LevelError{Level: L, Op: "postsmoother", Kind: ErrConstruction, Err: err}
	}
	if a.fSmoothing {
		if lv.dinv, err = A.DiagonalInverse(); err != nil {
			return nil, &LevelError{Level: L, Op: "f-smoothing", Kind: ErrConstruction, Err: err}
		}
	}
	lv.allocate()
	a.log.Debug("amg level built",
		slog.Int("level", L),
		slog.Int("coarse", res.NumCoarse),
		slog.String("pre", lv.Pre.Name()),
		slog.String("post", lv.Post.Name()))
	return Ac, nil
}

// placeLevel merges the ranks holding M when the base level is reached or too
// few unknowns remain per rank. The base level always ends on a single rank.
// It returns the operator in its final layout and the redistribution into it,
// nil when nothing moved. Collective.
func (a *AMG) placeLevel(L int, M *algebra.Matrix, base bool, st algebra.Stats) (*algebra.Matrix, *partitions.Redistribution, error) {
	if st.Active <= 1 {
		return M, nil, nil
	}
	k := 0
	switch {
	case base:
		k = 1
	case st.Rows.Sum < a.minNodesOnOneProcessor*st.Active:
		k = (st.Rows.Sum + a.preferredNodesOnOneProcessor - 1) / a.preferredNodesOnOneProcessor
		if k >= st.Active {
			return M, nil, nil
		}
	default:
		return M, nil, nil
	}
	from := M.RowLayout()
	group, mapping := partitions.GroupOf(from).Merge(k)
	to, err := from.Agglomerate(mapping)
	if err != nil {
		return nil, nil, &LevelError{Level: L, Op: "agglomeration", Kind: ErrConstruction, Err: err}
	}
	redist, err := partitions.NewRedistribution(from, to, M.Comm())
	if err != nil {
		return nil, nil, &LevelError{Level: L, Op: "agglomeration", Kind: ErrConstruction, Err: err}
	}
	merged, err := M.Redistribute(redist, to)
	if err != nil {
		return nil, nil, &LevelError{Level: L, Op: "agglomeration", Kind: ErrConstruction, Err: err}
	}
	a.log.Debug("amg agglomerated level",
		slog.Int("level", L),
		slog.Int("from_procs", st.Active),
		slog.Int("to_procs", group.Size()),
		slog.Int("master", group.Master()),
		slog.Bool("base", base))
	return merged, redist, nil
}
