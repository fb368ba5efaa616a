package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingCloser struct{ closed bool }

func (f *failingCloser) Close() error {
	f.closed = true
	return errors.New("boom")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{" WARN ", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ParseLevel(tt.input))
		})
	}
}

func TestNewLogger_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger, closer := NewLogger(Config{Format: "json", Level: "debug"}, &buf)
	defer func() { _ = closer.Close() }()

	LogOperation(logger.With(slog.String("component", "test")), "stops_indexed", slog.Int("count", 3))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "stops_indexed", entry["msg"])
	assert.Equal(t, "test", entry["component"])
	assert.Equal(t, float64(3), entry["count"])
}

func TestNewLogger_RotatingFile(t *testing.T) {
	var buf bytes.Buffer
	path := filepath.Join(t.TempDir(), "gtfsjson.log")
	logger, closer := NewLogger(Config{File: path, MaxSizeMB: 1}, &buf)

	LogOperation(logger, "written_to_both")
	require.NoError(t, closer.Close())

	assert.Contains(t, buf.String(), "written_to_both")
	assert.FileExists(t, path)
}

func TestLogError_IncludesError(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger(Config{}, &buf)

	LogError(logger, "conversion failed", errors.New("bad row"), slog.String("table", "stops.txt"))

	out := buf.String()
	assert.Contains(t, out, "conversion failed")
	assert.Contains(t, out, "bad row")
	assert.Contains(t, out, "stops.txt")
}

func TestSafeCloseWithLogging(t *testing.T) {
	var buf bytes.Buffer
	logger, _ := NewLogger(Config{}, &buf)
	c := &failingCloser{}

	SafeCloseWithLogging(c, logger, "archive")
	SafeCloseWithLogging(nil, logger, "nothing")

	assert.True(t, c.closed)
	assert.Contains(t, buf.String(), "archive")
}

func TestSetup_InstallsDefault(t *testing.T) {
	previous := slog.Default()
	t.Cleanup(func() { slog.SetDefault(previous) })

	var buf bytes.Buffer
	logger, closer := Setup(Config{Format: "json"}, &buf)
	require.NoError(t, closer.Close())

	assert.Same(t, logger, slog.Default())
	slog.Info("installed")
	assert.Contains(t, buf.String(), `"msg":"installed"`)
}
