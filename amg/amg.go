// Package amg builds an algebraic multigrid hierarchy from a sparse matrix and
// applies V, W and Y cycles with it as a preconditioner.
package amg

import (
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/notargets/DGAMG/coarsening"
	"github.com/notargets/DGAMG/metrics"
	"github.com/notargets/DGAMG/partitions"
	"github.com/notargets/DGAMG/smoother"
)

const (
	DefaultNumSmooth                    = 2
	DefaultMaxLevels                    = 20
	DefaultMaxNodesForBase              = 100
	DefaultMaxFillBeforeBase            = 0.5
	DefaultMinNodesOnOneProcessor       = 100
	DefaultPreferredNodesOnOneProcessor = 1000
)

// AMG owns the level hierarchy and the cycle parameters. It is not safe for
// concurrent use; in a distributed world every rank holds its own AMG and all
// ranks call Preprocess and GetCorrection together.
type AMG struct {
	numPresmooth  int
	numPostsmooth int
	cycleType     int
	maxLevels     int

	maxNodesForBase   int
	maxFillBeforeBase float64
	epsTruncation     float64
	fSmoothing        bool

	minNodesOnOneProcessor       int
	preferredNodesOnOneProcessor int

	yCycle  int
	yReduce float64
	yAbs    float64

	presmoother  smoother.LinearIterator
	postsmoother smoother.LinearIterator
	baseSolver   smoother.BaseSolver
	strategy     coarsening.Strategy

	comm    partitions.Communicator
	log     *slog.Logger
	metrics *metrics.Collector

	// Built by Preprocess
	levels        []*Level
	inputRows     int
	buildID       uuid.UUID
	opComplexity  float64
	gridComplex   float64
	setupTime     time.Duration
	baseSetupTime time.Duration
	calls         []int
}

// Option configures an AMG at construction
type Option func(*AMG) error

// New returns an AMG with classical coarsening, symmetric Gauss-Seidel
// smoothing and a dense LU base solver
func New(opts ...Option) (*AMG, error) {
	a := &AMG{
		numPresmooth:                 DefaultNumSmooth,
		numPostsmooth:                DefaultNumSmooth,
		cycleType:                    1,
		maxLevels:                    DefaultMaxLevels,
		maxNodesForBase:              DefaultMaxNodesForBase,
		maxFillBeforeBase:            DefaultMaxFillBeforeBase,
		minNodesOnOneProcessor:       DefaultMinNodesOnOneProcessor,
		preferredNodesOnOneProcessor: DefaultPreferredNodesOnOneProcessor,
		presmoother:                  smoother.NewGaussSeidel(smoother.Symmetric),
		postsmoother:                 smoother.NewGaussSeidel(smoother.Symmetric),
		baseSolver:                   smoother.NewLU(),
		strategy:                     &coarsening.Classical{},
		comm:                         partitions.Serial(),
		log:                          slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

// WithCycleType sets the coarse corrections per level, see SetCycleType
func WithCycleType(n int) Option { return func(a *AMG) error { return a.SetCycleType(n) } }

// WithMaxLevels bounds the depth of the hierarchy
func WithMaxLevels(n int) Option { return func(a *AMG) error { return a.SetMaxLevels(n) } }

// WithMaxNodesForBase makes every level with at most n unknowns the base level
func WithMaxNodesForBase(n int) Option { return func(a *AMG) error { return a.SetMaxNodesForBase(n) } }

// WithMaxFillBeforeBase makes every level at least this dense the base level
func WithMaxFillBeforeBase(f float64) Option {
	return func(a *AMG) error { return a.SetMaxFillBeforeBase(f) }
}

// WithSmoothing sets the number of pre- and postsmoothing steps
func WithSmoothing(pre, post int) Option {
	return func(a *AMG) error {
		if err := a.SetNumPresmooth(pre); err != nil {
			return err
		}
		return a.SetNumPostsmooth(post)
	}
}

// WithSmoother uses s for pre- and postsmoothing. Every level gets its own clone.
func WithSmoother(s smoother.LinearIterator) Option {
	return func(a *AMG) error {
		if err := a.SetPresmoother(s); err != nil {
			return err
		}
		return a.SetPostsmoother(s)
	}
}

// WithBaseSolver replaces the dense LU on the coarsest level
func WithBaseSolver(b smoother.BaseSolver) Option {
	return func(a *AMG) error { return a.SetBaseSolver(b) }
}

// WithStrategy replaces classical coarsening
func WithStrategy(s coarsening.Strategy) Option { return func(a *AMG) error { return a.SetStrategy(s) } }

// WithCommunicator runs the hierarchy on a distributed world
func WithCommunicator(c partitions.Communicator) Option {
	return func(a *AMG) error { return a.SetCommunicator(c) }
}

// WithAgglomeration sets the merge thresholds of distributed levels
func WithAgglomeration(minNodes, preferredNodes int) Option {
	return func(a *AMG) error {
		if err := a.SetMinNodesOnOneProcessor(minNodes); err != nil {
			return err
		}
		return a.SetPreferredNodesOnOneProcessor(preferredNodes)
	}
}

// WithLogger receives the setup and level records
func WithLogger(l *slog.Logger) Option { return func(a *AMG) error { return a.SetLogger(l) } }

// WithMetrics records setups, cycles and failures on m
func WithMetrics(m *metrics.Collector) Option { return func(a *AMG) error { a.SetMetrics(m); return nil } }

// SetNumPresmooth sets the smoothing steps before the coarse correction
func (a *AMG) SetNumPresmooth(n int) error {
	if n < 0 {
		return configErr("presmoothing steps %d < 0", n)
	}
	a.numPresmooth = n
	return nil
}

// SetNumPostsmooth sets the smoothing steps after the coarse correction
func (a *AMG) SetNumPostsmooth(n int) error {
	if n < 0 {
		return configErr("postsmoothing steps %d < 0", n)
	}
	a.numPostsmooth = n
	return nil
}

// SetCycleType sets the number of coarse corrections per level: 1 is a
// V-cycle, 2 a W-cycle
func (a *AMG) SetCycleType(n int) error {
	if n < 1 {
		return configErr("cycle type %d, has to be > 0", n)
	}
	a.cycleType = n
	return nil
}

// SetMaxLevels bounds the depth of the hierarchy; level n-1 is always the base
func (a *AMG) SetMaxLevels(n int) error {
	if n < 1 {
		return configErr("max levels %d, has to be > 0", n)
	}
	a.maxLevels = n
	return nil
}

// SetMaxNodesForBase makes every level with at most n global unknowns the base
func (a *AMG) SetMaxNodesForBase(n int) error {
	if n < 1 {
		return configErr("max nodes for base %d, has to be > 0", n)
	}
	a.maxNodesForBase = n
	return nil
}

// SetMaxFillBeforeBase stops coarsening once nnz/n² of a level reaches f
func (a *AMG) SetMaxFillBeforeBase(f float64) error {
	if !(f > 0 && f <= 1) {
		return configErr("max fill before base %g outside (0,1]", f)
	}
	a.maxFillBeforeBase = f
	return nil
}

// SetEpsilonTruncation drops interpolation weights below eps times the row maximum
func (a *AMG) SetEpsilonTruncation(eps float64) error {
	if eps < 0 || eps >= 1 || math.IsNaN(eps) {
		return configErr("truncation epsilon %g outside [0,1)", eps)
	}
	a.epsTruncation = eps
	return nil
}

// SetFSmoothing adds a Jacobi step on the fine nodes after presmoothing
func (a *AMG) SetFSmoothing(enable bool) { a.fSmoothing = enable }

// SetMinNodesOnOneProcessor merges the ranks of a level once the average rank
// owns fewer than n unknowns. 0 disables agglomeration above the base level.
func (a *AMG) SetMinNodesOnOneProcessor(n int) error {
	if n < 0 {
		return configErr("min nodes on one processor %d < 0", n)
	}
	a.minNodesOnOneProcessor = n
	return nil
}

// SetPreferredNodesOnOneProcessor is the target rank size of a merge
func (a *AMG) SetPreferredNodesOnOneProcessor(n int) error {
	if n < 1 {
		return configErr("preferred nodes on one processor %d, has to be > 0", n)
	}
	a.preferredNodesOnOneProcessor = n
	return nil
}

// SetYCycle repeats the coarse correction of every level up to maxIterations
// times, stopping once the coarse defect dropped by reduce relative to its
// first value or below abs. maxIterations 0 disables it.
func (a *AMG) SetYCycle(maxIterations int, reduce, abs float64) error {
	if maxIterations < 0 {
		return configErr("Y-cycle iterations %d < 0", maxIterations)
	}
	if reduce < 0 || abs < 0 {
		return configErr("Y-cycle reduction %g / absolute %g must not be negative", reduce, abs)
	}
	a.yCycle, a.yReduce, a.yAbs = maxIterations, reduce, abs
	return nil
}

// SetPresmoother sets the template cloned onto every non-base level
func (a *AMG) SetPresmoother(s smoother.LinearIterator) error {
	if s == nil {
		return configErr("nil presmoother")
	}
	a.presmoother = s
	return nil
}

// SetPostsmoother sets the template cloned onto every non-base level
func (a *AMG) SetPostsmoother(s smoother.LinearIterator) error {
	if s == nil {
		return configErr("nil postsmoother")
	}
	a.postsmoother = s
	return nil
}

// SetBaseSolver sets the solver of the coarsest level
func (a *AMG) SetBaseSolver(b smoother.BaseSolver) error {
	if b == nil {
		return configErr("nil base solver")
	}
	a.baseSolver = b
	return nil
}

// SetStrategy sets the coarsening and interpolation algorithm
func (a *AMG) SetStrategy(s coarsening.Strategy) error {
	if s == nil {
		return configErr("nil coarsening strategy")
	}
	a.strategy = s
	return nil
}

// SetCommunicator binds the hierarchy to a distributed world; nil is serial
func (a *AMG) SetCommunicator(c partitions.Communicator) error {
	a.comm = partitions.OrSerial(c)
	return nil
}

// SetLogger receives the setup and level records
func (a *AMG) SetLogger(l *slog.Logger) error {
	if l == nil {
		return configErr("nil logger")
	}
	a.log = l
	return nil
}

// SetMetrics records setups, cycles and failures; nil disables them
func (a *AMG) SetMetrics(m *metrics.Collector) { a.metrics = m }

// Configured parameters
func (a *AMG) NumPresmooth() int                     { return a.numPresmooth }
func (a *AMG) NumPostsmooth() int                    { return a.numPostsmooth }
func (a *AMG) CycleType() int                        { return a.cycleType }
func (a *AMG) MaxLevels() int                        { return a.maxLevels }
func (a *AMG) MaxNodesForBase() int                  { return a.maxNodesForBase }
func (a *AMG) MaxFillBeforeBase() float64            { return a.maxFillBeforeBase }
func (a *AMG) Strategy() coarsening.Strategy         { return a.strategy }
func (a *AMG) Communicator() partitions.Communicator { return a.comm }

// UsedLevels is the number of levels of the built hierarchy, 0 before Preprocess
func (a *AMG) UsedLevels() int { return len(a.levels) }

// Level returns level i of the built hierarchy
func (a *AMG) Level(i int) *Level {
	if i < 0 || i >= len(a.levels) {
		return nil
	}
	return a.levels[i]
}

// LevelInformation returns the statistics of level i, nil when out of range
func (a *AMG) LevelInformation(i int) *LevelInformation {
	if lv := a.Level(i); lv != nil {
		return &lv.Info
	}
	return nil
}

// OperatorComplexity is the nonzero count of all levels divided by that of level 0
func (a *AMG) OperatorComplexity() float64 { return a.opComplexity }

// GridComplexity is the unknown count of all levels divided by that of level 0
func (a *AMG) GridComplexity() float64 { return a.gridComplex }

// SetupTime is the wall time of the last Preprocess
func (a *AMG) SetupTime() time.Duration { return a.setupTime }

// CoarseSolverSetupTime is the part of SetupTime spent in the base solver Init
func (a *AMG) CoarseSolverSetupTime() time.Duration { return a.baseSetupTime }

// BuildID identifies the current hierarchy in logs
func (a *AMG) BuildID() uuid.UUID { return a.buildID }

// CycleCalls returns how often the cycle visited each level since the last
// Preprocess or ResetCycleCalls
func (a *AMG) CycleCalls() []int { return append([]int(nil), a.calls...) }

// ResetCycleCalls zeroes the per-level visit counters
func (a *AMG) ResetCycleCalls() { clear(a.calls) }

// Name implements smoother.LinearIterator
func (a *AMG) Name() string { return "amg-" + a.strategy.Name() }

// Clone returns an unbuilt AMG with the same parameters. It shares no
// smoother or base solver state with a.
func (a *AMG) Clone() smoother.LinearIterator {
	c := *a
	c.levels, c.calls = nil, nil
	c.buildID = uuid.UUID{}
	c.opComplexity, c.gridComplex = 0, 0
	c.setupTime, c.baseSetupTime = 0, 0
	c.presmoother = a.presmoother.Clone()
	c.postsmoother = a.postsmoother.Clone()
	c.baseSolver = a.baseSolver.Clone()
	return &c
}
