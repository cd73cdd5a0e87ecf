package logger

import (
	"bytes"
	"encoding/json"
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
		{"trace", LevelTrace},
		{"DEBUG", slog.LevelDebug},
		{"", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewConsoleOnly(t *testing.T) {
	var buf bytes.Buffer
	l, closer, err := New(Config{Level: "info"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	Module(l, "dataset").Debug("hidden")
	Module(l, "dataset").Info("loaded", "items", 3)
	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "module=dataset")
	assert.Contains(t, out, "items=3")
}

func TestTraceLevelName(t *testing.T) {
	var buf bytes.Buffer
	l, closer, err := New(Config{Level: "trace"}, &buf)
	require.NoError(t, err)
	defer closer.Close()

	l.Log(t.Context(), LevelTrace, "deep")
	assert.Contains(t, buf.String(), "level=TRACE")
}

func TestNewWithFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "run.log")
	l, closer, err := New(Config{Level: "debug", File: path, MaxSizeMB: 1}, &buf)
	require.NoError(t, err)

	l.With("study_id", "42").Debug("encoded")
	require.NoError(t, closer.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := strings.TrimSpace(string(data))
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(line), &rec))
	assert.Equal(t, "encoded", rec["msg"])
	assert.Equal(t, "42", rec["study_id"])
	assert.Equal(t, "DEBUG", rec["level"])
	assert.Contains(t, buf.String(), "encoded")
}

func TestOrDiscard(t *testing.T) {
	l := OrDiscard(nil)
	require.NotNil(t, l)
	assert.False(t, l.Enabled(t.Context(), slog.LevelError))
}
