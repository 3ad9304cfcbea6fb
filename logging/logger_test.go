package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunLogger_ScopedAttributes(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf})

	l.WithComponent("engine").WithRun("run-1").WithStage("generate").Info("hello %s", "world")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello world", entry["msg"])
	assert.Equal(t, "engine", entry["component"])
	assert.Equal(t, "run-1", entry["run_id"])
	assert.Equal(t, "generate", entry["stage"])
}

func TestRunLogger_LevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelWarn, Format: "text", Output: &buf})

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
}

func TestRunLogger_DomainHelpers(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Level: LogLevelDebug, Format: "json", Output: &buf})

	l.LogStage("critique", 10*time.Millisecond, false, errors.New("boom"))
	l.LogFanOut("simulate", 3, 1, time.Millisecond)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[0], `"Stage failed"`)
	assert.Contains(t, lines[0], `"error":"boom"`)
	assert.Contains(t, lines[1], `"failed_count":1`)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, LogLevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, LogLevelWarn, ParseLevel("warning"))
	assert.Equal(t, LogLevelError, ParseLevel(" error "))
	assert.Equal(t, LogLevelInfo, ParseLevel("whatever"))
}

func TestForRun_PassesThroughForeignLoggers(t *testing.T) {
	var l Logger = NoOpLogger{}
	assert.Equal(t, l, ForRun(l, "run-1"))
	assert.Equal(t, l, ForStage(l, "generate"))
}

func TestRunLogger_WithContextAndCustomAttrs(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(&LoggerConfig{Format: "json", Output: &buf, CustomAttrs: map[string]any{"service": "validator"}})

	base := l.WithComponent("runner")
	base.WithContext("persona", "Tanya").Info("interview started")
	base.Info("second")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first, second map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "validator", first["service"])
	assert.Equal(t, "Tanya", first["persona"])
	assert.Equal(t, "runner", first["component"])
	assert.NotContains(t, second, "persona")
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	l := NewSlogAdapter(slog.New(slog.NewTextHandler(&buf, nil)))
	l.Info("%d personas", 3)
	assert.Contains(t, buf.String(), `msg="3 personas"`)
}

func TestLogLevel_String(t *testing.T) {
	assert.Equal(t, "WARN", LogLevelWarn.String())
	assert.Equal(t, "UNKNOWN", LogLevel(42).String())
}
