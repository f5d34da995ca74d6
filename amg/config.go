package amg

import (
	"github.com/notargets/DGAMG/coarsening"
	"github.com/notargets/DGAMG/config"
	"github.com/notargets/DGAMG/smoother"
)

// NewFromConfig builds an AMG from loaded settings. opts are applied last and
// carry what a file cannot describe: communicator, logger, metrics.
func NewFromConfig(cfg config.AMGConfig, opts ...Option) (*AMG, error) {
	a, err := New()
	if err != nil {
		return nil, err
	}
	for _, set := range []func() error{
		func() error { return a.SetNumPresmooth(cfg.NumPresmooth) },
		func() error { return a.SetNumPostsmooth(cfg.NumPostsmooth) },
		func() error { return a.SetCycleType(cfg.CycleType) },
		func() error { return a.SetMaxLevels(cfg.MaxLevels) },
		func() error { return a.SetMaxNodesForBase(cfg.MaxNodesForBase) },
		func() error { return a.SetMaxFillBeforeBase(cfg.MaxFillBeforeBase) },
		func() error { return a.SetEpsilonTruncation(cfg.EpsilonTruncation) },
		func() error { return a.SetMinNodesOnOneProcessor(cfg.MinNodesOnOneProcessor) },
		func() error { return a.SetPreferredNodesOnOneProcessor(cfg.PreferredNodesOnOneProcessor) },
		func() error { return a.SetYCycle(cfg.YCycleIterations, cfg.YCycleReduce, cfg.YCycleAbsolute) },
		func() error { return a.setStrategyByName(cfg.Coarsening, cfg.Theta) },
		func() error { return a.setSmootherByName(cfg.Smoother, cfg.Damping) },
		func() error { return a.setBaseByName(cfg.BaseSolver, cfg.BaseTolerance) },
	} {
		if err := set(); err != nil {
			return nil, err
		}
	}
	a.SetFSmoothing(cfg.FSmoothing)
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	return a, nil
}

func (a *AMG) setStrategyByName(name string, theta float64) error {
	switch name {
	case "", "classical":
		return a.SetStrategy(&coarsening.Classical{Theta: theta})
	case "filtering":
		return a.SetStrategy(&coarsening.Filtering{Theta: theta})
	}
	return configErr("unknown coarsening %q", name)
}

func (a *AMG) setSmootherByName(name string, damping float64) error {
	var s smoother.LinearIterator
	switch name {
	case "jacobi":
		s = smoother.NewJacobi(damping)
	case "gauss-seidel":
		s = smoother.NewGaussSeidel(smoother.Forward)
	case "backward-gauss-seidel":
		s = smoother.NewGaussSeidel(smoother.Backward)
	case "", "symmetric-gauss-seidel":
		s = smoother.NewGaussSeidel(smoother.Symmetric)
	case "ilu":
		s = smoother.NewILU()
	default:
		return configErr("unknown smoother %q", name)
	}
	if err := a.SetPresmoother(s); err != nil {
		return err
	}
	return a.SetPostsmoother(s.Clone())
}

func (a *AMG) setBaseByName(name string, tol float64) error {
	switch name {
	case "", "lu":
		return a.SetBaseSolver(smoother.NewLU())
	case "pcg":
		return a.SetBaseSolver(&smoother.IterativeBase{Tolerance: tol})
	}
	return configErr("unknown base solver %q", name)
}
