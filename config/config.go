// Package config loads multigrid, logging, metrics and solver settings from
// defaults, a YAML file and the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalid = errors.New("config: invalid")

type Config struct {
	AMG     AMGConfig     `koanf:"amg"`
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
	Solver  SolverConfig  `koanf:"solver"`
}

// AMGConfig mirrors the setters of amg.AMG
type AMGConfig struct {
	NumPresmooth                 int     `koanf:"num_presmooth"`
	NumPostsmooth                int     `koanf:"num_postsmooth"`
	CycleType                    int     `koanf:"cycle_type"`
	MaxLevels                    int     `koanf:"max_levels"`
	MaxNodesForBase              int     `koanf:"max_nodes_for_base"`
	MaxFillBeforeBase            float64 `koanf:"max_fill_before_base"`
	EpsilonTruncation            float64 `koanf:"epsilon_truncation"`
	FSmoothing                   bool    `koanf:"f_smoothing"`
	MinNodesOnOneProcessor       int     `koanf:"min_nodes_on_one_processor"`
	PreferredNodesOnOneProcessor int     `koanf:"preferred_nodes_on_one_processor"`

	YCycleIterations int     `koanf:"y_cycle_iterations"`
	YCycleReduce     float64 `koanf:"y_cycle_reduce"`
	YCycleAbsolute   float64 `koanf:"y_cycle_absolute"`

	Coarsening    string  `koanf:"coarsening"` // classical, filtering
	Theta         float64 `koanf:"theta"`
	Smoother      string  `koanf:"smoother"` // jacobi, gauss-seidel, backward-gauss-seidel, symmetric-gauss-seidel, ilu
	Damping       float64 `koanf:"damping"`
	BaseSolver    string  `koanf:"base_solver"` // lu, pcg
	BaseTolerance float64 `koanf:"base_tolerance"`
}

type LogConfig struct {
	Level      string `koanf:"level"`
	Format     string `koanf:"format"` // json, text
	Output     string `koanf:"output"` // stdout, stderr, file
	FilePath   string `koanf:"file_path"`
	MaxSize    int    `koanf:"max_size"` // MB
	MaxBackups int    `koanf:"max_backups"`
	MaxAge     int    `koanf:"max_age"` // days
	Compress   bool   `koanf:"compress"`
}

type MetricsConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Address   string `koanf:"address"`
	Path      string `koanf:"path"`
	Namespace string `koanf:"namespace"`
}

type SolverConfig struct {
	Method        string  `koanf:"method"` // cg, richardson
	MaxIterations int     `koanf:"max_iterations"`
	Reduction     float64 `koanf:"reduction"`
	Absolute      float64 `koanf:"absolute"`
	Damping       float64 `koanf:"damping"`
	Processes     int     `koanf:"processes"`
}

func oneOf(v string, allowed ...string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}

// Validate reports every invalid field at once
func (c *Config) Validate() error {
	var errs []string
	a := c.AMG
	if a.CycleType < 1 {
		errs = append(errs, fmt.Sprintf("amg.cycle_type must be > 0, got %d", a.CycleType))
	}
	if a.MaxLevels < 1 {
		errs = append(errs, fmt.Sprintf("amg.max_levels must be > 0, got %d", a.MaxLevels))
	}
	if a.NumPresmooth < 0 || a.NumPostsmooth < 0 {
		errs = append(errs, "amg smoothing steps must not be negative")
	}
	if a.MaxNodesForBase < 1 {
		errs = append(errs, fmt.Sprintf("amg.max_nodes_for_base must be > 0, got %d", a.MaxNodesForBase))
	}
	if a.MaxFillBeforeBase <= 0 || a.MaxFillBeforeBase > 1 {
		errs = append(errs, fmt.Sprintf("amg.max_fill_before_base must be in (0,1], got %g", a.MaxFillBeforeBase))
	}
	if a.EpsilonTruncation < 0 || a.EpsilonTruncation >= 1 {
		errs = append(errs, fmt.Sprintf("amg.epsilon_truncation must be in [0,1), got %g", a.EpsilonTruncation))
	}
	if a.YCycleIterations < 0 {
		errs = append(errs, "amg.y_cycle_iterations must not be negative")
	}
	if !oneOf(a.Coarsening, "classical", "filtering") {
		errs = append(errs, fmt.Sprintf("amg.coarsening must be one of: classical, filtering, got %s", a.Coarsening))
	}
	if !oneOf(a.Smoother, "jacobi", "gauss-seidel", "backward-gauss-seidel", "symmetric-gauss-seidel", "ilu") {
		errs = append(errs, fmt.Sprintf("amg.smoother %q unknown", a.Smoother))
	}
	if !oneOf(a.BaseSolver, "lu", "pcg") {
		errs = append(errs, fmt.Sprintf("amg.base_solver must be one of: lu, pcg, got %s", a.BaseSolver))
	}

	if !oneOf(strings.ToLower(c.Log.Level), "debug", "info", "warn", "error") {
		errs = append(errs, fmt.Sprintf("log.level must be one of: debug, info, warn, error, got %s", c.Log.Level))
	}
	if !oneOf(c.Log.Format, "json", "text") {
		errs = append(errs, fmt.Sprintf("log.format must be one of: json, text, got %s", c.Log.Format))
	}
	if c.Log.Output == "file" && c.Log.FilePath == "" {
		errs = append(errs, "log.file_path is required for file output")
	}

	if !oneOf(c.Solver.Method, "cg", "richardson") {
		errs = append(errs, fmt.Sprintf("solver.method must be one of: cg, richardson, got %s", c.Solver.Method))
	}
	if c.Solver.MaxIterations < 1 {
		errs = append(errs, fmt.Sprintf("solver.max_iterations must be > 0, got %d", c.Solver.MaxIterations))
	}
	if c.Solver.Processes < 1 {
		errs = append(errs, fmt.Sprintf("solver.processes must be > 0, got %d", c.Solver.Processes))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(errs, "; "))
	}
	return nil
}
