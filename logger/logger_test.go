package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/notargets/DGAMG/config"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("whatever"))
}

func TestNewWithWriter(t *testing.T) {
	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		l := WithRank(NewWithWriter(config.LogConfig{Level: "info", Format: "json"}, &buf), 2)
		l.Debug("hidden")
		l.Info("level built", slog.Int("level", 1))
		var rec map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
		assert.Equal(t, "level built", rec["msg"])
		assert.Equal(t, 2.0, rec["rank"])
		assert.Equal(t, 1.0, rec["level"])
	})

	t.Run("Text", func(t *testing.T) {
		var buf bytes.Buffer
		NewWithWriter(config.LogConfig{Level: "debug", Format: "text"}, &buf).Debug("cycle")
		assert.Contains(t, buf.String(), "msg=cycle")
	})
}

func TestWriter(t *testing.T) {
	w, err := Writer(config.LogConfig{Output: "stderr"})
	require.NoError(t, err)
	assert.Equal(t, os.Stderr, w)

	path := filepath.Join(t.TempDir(), "logs", "amg.log")
	w, err = Writer(config.LogConfig{Output: "file", FilePath: path, MaxSize: 1})
	require.NoError(t, err)
	lj, ok := w.(*lumberjack.Logger)
	require.True(t, ok)
	_, err = lj.Write([]byte("x\n"))
	require.NoError(t, err)
	require.NoError(t, lj.Close())
	_, err = os.Stat(path)
	assert.NoError(t, err)
}
