package amg

import (
	"errors"
	"fmt"
)

var (
	// ErrConstruction marks a failed hierarchy build: degenerate coarsening,
	// base solver setup failure or an unusable input matrix
	ErrConstruction = errors.New("amg: construction failure")
	// ErrNumerical marks a failed correction, e.g. a base solver that did not converge
	ErrNumerical = errors.New("amg: numerical failure")
	// ErrConfiguration is returned by setters given an illegal value
	ErrConfiguration = errors.New("amg: invalid configuration")
	// ErrNotPreprocessed is returned by GetCorrection before a successful Preprocess
	ErrNotPreprocessed = errors.New("amg: hierarchy not built")
)

// LevelError locates a failure in the hierarchy
type LevelError struct {
	Level int
	Op    string
	Kind  error // ErrConstruction or ErrNumerical
	Err   error
}

func (e *LevelError) Error() string {
	return fmt.Sprintf("%v at level %d (%s): %v", e.Kind, e.Level, e.Op, e.Err)
}

func (e *LevelError) Unwrap() []error { return []error{e.Kind, e.Err} }

// kindLabel is the metrics label of an error kind
func kindLabel(err error) string {
	switch {
	case errors.Is(err, ErrConstruction):
		return "construction"
	case errors.Is(err, ErrNumerical):
		return "numerical"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	}
	return "other"
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
