package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLevel(tt.in))
		})
	}
}

func TestNewWritesStderrAndFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer

	logger, err := New(Config{Level: "info", Dir: dir, Stderr: &buf})
	require.NoError(t, err)

	logger.Info("snapshot created", "version", "1.0.0")
	logger.Debug("hidden")
	require.NoError(t, logger.Close())

	assert.Contains(t, buf.String(), "snapshot created")
	assert.NotContains(t, buf.String(), "hidden")

	matches, err := filepath.Glob(filepath.Join(dir, "rollguard_*.log"))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	content, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(content), `"version":"1.0.0"`))
}

func TestNewQuietWithoutDir(t *testing.T) {
	logger, err := New(Config{Quiet: true})
	require.NoError(t, err)
	logger.Error("dropped")
	assert.NoError(t, logger.Close())
}
