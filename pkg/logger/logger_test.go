package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestSimpleFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(slog.LevelInfo, &buf, FormatSimple))

	slog.Info("Summary generated", "identity", "203.0.113.7")
	slog.Debug("hidden")
	slog.With("component", "limiter").Warn("Slow store")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "INFO Summary generated identity=203.0.113.7", lines[0])
	assert.Equal(t, "WARN Slow store component=limiter", lines[1])
}

func TestVerboseFormatHasTime(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(slog.LevelInfo, &buf, FormatVerbose))

	slog.Info("hello")
	assert.Regexp(t, `^\d{4}/\d{2}/\d{2} \d{2}:\d{2}:\d{2} INFO hello\n$`, buf.String())
}

func TestJSONFormat(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(slog.LevelInfo, &buf, FormatJSON))

	slog.Error("Usage sweep failed", "error", "boom")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "ERROR", rec["level"])
	assert.Equal(t, "Usage sweep failed", rec["msg"])
	assert.Equal(t, "boom", rec["error"])
}

func TestSetLevel(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Init(slog.LevelWarn, &buf, FormatSimple))

	slog.Info("before")
	SetLevel(slog.LevelInfo)
	slog.Info("after")

	assert.NotContains(t, buf.String(), "before")
	assert.Contains(t, buf.String(), "after")
	assert.Equal(t, slog.LevelInfo, Level())
}

func TestInvalidFormat(t *testing.T) {
	assert.Error(t, Init(slog.LevelInfo, &bytes.Buffer{}, "xml"))
}
