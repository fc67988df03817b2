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

func decodeLines(t *testing.T, out *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		entries = append(entries, entry)
	}
	return entries
}

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLevel string
	}{
		{name: "debug keeps debug", level: "debug", wantLevel: "DEBUG"},
		{name: "info drops debug", level: "info", wantLevel: "INFO"},
		{name: "warn drops info", level: "warn", wantLevel: "WARN"},
		{name: "error drops warn", level: "error", wantLevel: "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := &bytes.Buffer{}
			log, err := New(&Config{Level: tt.level, Format: "json", writer: out})
			require.NoError(t, err)

			log.Debug("d")
			log.Info("i")
			log.Warn("w")
			log.Error("e")

			entries := decodeLines(t, out)
			require.NotEmpty(t, entries)
			assert.Equal(t, tt.wantLevel, entries[0]["level"])
		})
	}
}

func TestNew_ServiceAttribute(t *testing.T) {
	out := &bytes.Buffer{}
	log, err := New(&Config{Level: "info", Format: "json", Service: "scheduler", writer: out})
	require.NoError(t, err)

	log.Info("scheduler invocation finished", slog.Int("processed", 3))

	entries := decodeLines(t, out)
	require.Len(t, entries, 1)
	assert.Equal(t, "scheduler", entries[0]["service"])
	assert.Equal(t, float64(3), entries[0]["processed"])
}

func TestNew_ConsoleFormat(t *testing.T) {
	out := &bytes.Buffer{}
	log, err := New(&Config{Level: "info", Format: "console", writer: out})
	require.NoError(t, err)

	log.Info("console test")

	// tint abbreviates levels
	assert.Contains(t, out.String(), "INF")
	assert.Contains(t, out.String(), "console test")
}

func TestNew_SourceLocation(t *testing.T) {
	out := &bytes.Buffer{}
	log, err := New(&Config{Level: "info", Format: "json", EnableSource: true, writer: out})
	require.NoError(t, err)

	log.Info("message with source")

	entries := decodeLines(t, out)
	require.Len(t, entries, 1)
	source, ok := entries[0]["source"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, source, "file")
	assert.Contains(t, source, "line")
}

func TestNew_FileOutput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "worker.log")

	log, err := New(&Config{Level: "info", Format: "json", Output: path})
	require.NoError(t, err)
	log.Info("written to file")
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "written to file")
}

func TestNew_FileOutputUnwritable(t *testing.T) {
	_, err := New(&Config{Output: filepath.Join(t.TempDir(), "missing", "dir", "x.log")})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level    string
		expected slog.Level
	}{
		{level: "debug", expected: slog.LevelDebug},
		{level: "DEBUG", expected: slog.LevelDebug},
		{level: " Warning ", expected: slog.LevelWarn},
		{level: "error", expected: slog.LevelError},
		{level: "invalid", expected: slog.LevelInfo},
		{level: "", expected: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLevel(tt.level))
		})
	}
}

func TestLogger_WithGroup(t *testing.T) {
	out := &bytes.Buffer{}
	log, err := New(&Config{Level: "info", Format: "json", writer: out})
	require.NoError(t, err)

	log.WithGroup("job").Info("claimed", slog.String("id", "j1"))

	entries := decodeLines(t, out)
	require.Len(t, entries, 1)
	group, ok := entries[0]["job"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "j1", group["id"])
}

func TestLogger_With(t *testing.T) {
	out := &bytes.Buffer{}
	log, err := New(&Config{Level: "info", Format: "json", writer: out})
	require.NoError(t, err)

	log.With(slog.String("worker_id", "w-1")).Info("batch fetched")

	entries := decodeLines(t, out)
	require.Len(t, entries, 1)
	assert.Equal(t, "w-1", entries[0]["worker_id"])
	assert.Equal(t, "batch fetched", entries[0]["msg"])
}

func TestNewDefault(t *testing.T) {
	log := NewDefault()
	require.NotNil(t, log)
	assert.NoError(t, log.Close())
}
