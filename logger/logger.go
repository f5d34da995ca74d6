// Package logger builds the slog loggers handed to the multigrid components
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/notargets/DGAMG/config"
)

// ParseLevel maps debug, info, warn and error to slog levels; anything else is info
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Writer opens the output named by cfg. File output rotates through lumberjack.
func Writer(cfg config.LogConfig) (io.Writer, error) {
	switch cfg.Output {
	case "stderr":
		return os.Stderr, nil
	case "file":
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0755); err != nil {
			return nil, fmt.Errorf("log directory: %w", err)
		}
		return &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}, nil
	}
	return os.Stdout, nil
}

// New returns a logger writing to the output of cfg
func New(cfg config.LogConfig) (*slog.Logger, error) {
	w, err := Writer(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithWriter(cfg, w), nil
}

// NewWithWriter returns a logger in the level and format of cfg writing to w
func NewWithWriter(cfg config.LogConfig, w io.Writer) *slog.Logger {
	lvl := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	var h slog.Handler
	if cfg.Format == "text" {
		h = slog.NewTextHandler(w, opts)
	} else {
		h = slog.NewJSONHandler(w, opts)
	}
	return slog.New(h)
}

// WithRank tags every record with the rank of a distributed run
func WithRank(l *slog.Logger, rank int) *slog.Logger {
	return l.With(slog.Int("rank", rank))
}
