package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is the user facing level, decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

var levelNames = [...]string{"DEBUG", "INFO", "WARN", "ERROR"}

func (l LogLevel) String() string {
	if l < LogLevelDebug || l > LogLevelError {
		return "UNKNOWN"
	}
	return levelNames[l]
}

func (l LogLevel) toSlog() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ParseLevel maps a case-insensitive level name to a LogLevel. Unknown names
// map to LogLevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

// Logger is the printf-style interface every package logs through.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter lets an application hand its own *slog.Logger to the engine.
type SlogAdapter struct {
	*slog.Logger
}

func (s *SlogAdapter) Debug(msg string, args ...any) { s.Logger.Debug(sprintf(msg, args)) }
func (s *SlogAdapter) Info(msg string, args ...any)  { s.Logger.Info(sprintf(msg, args)) }
func (s *SlogAdapter) Warn(msg string, args ...any)  { s.Logger.Warn(sprintf(msg, args)) }
func (s *SlogAdapter) Error(msg string, args ...any) { s.Logger.Error(sprintf(msg, args)) }

// NewSlogAdapter wraps logger. A nil logger means slog.Default().
func NewSlogAdapter(logger *slog.Logger) Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogAdapter{Logger: logger}
}

func sprintf(msg string, args []any) string {
	if len(args) == 0 {
		return msg
	}
	return fmt.Sprintf(msg, args...)
}

// LoggerConfig configures construction of a RunLogger.
type LoggerConfig struct {
	Level       LogLevel
	Format      string // "json" or "text"
	Output      io.Writer
	AddSource   bool
	Component   string
	CustomAttrs map[string]any
}

// DefaultLoggerConfig is JSON at info level on stderr.
func DefaultLoggerConfig() *LoggerConfig {
	return &LoggerConfig{Level: LogLevelInfo, Format: "json", Output: os.Stderr}
}

// scope is the run position a RunLogger reports on every record.
type scope struct {
	component string
	runID     string
	stage     string
}

func (s scope) attrs(extra ...slog.Attr) []slog.Attr {
	attrs := make([]slog.Attr, 0, 3+len(extra))
	if s.component != "" {
		attrs = append(attrs, slog.String("component", s.component))
	}
	if s.runID != "" {
		attrs = append(attrs, slog.String("run_id", s.runID))
	}
	if s.stage != "" {
		attrs = append(attrs, slog.String("stage", s.stage))
	}
	return append(attrs, extra...)
}

// RunLogger is a slog backed Logger that knows which component, run and
// stage it is logging for. The With* methods return scoped copies.
type RunLogger struct {
	logger *slog.Logger
	scope  scope
}

// NewLogger builds a RunLogger from cfg, or from DefaultLoggerConfig when cfg
// is nil.
func NewLogger(cfg *LoggerConfig) *RunLogger {
	if cfg == nil {
		cfg = DefaultLoggerConfig()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.toSlog(), AddSource: cfg.AddSource}
	var h slog.Handler = slog.NewJSONHandler(out, opts)
	if cfg.Format == "text" {
		h = slog.NewTextHandler(out, opts)
	}

	logger := slog.New(h)
	for k, v := range cfg.CustomAttrs {
		logger = logger.With(slog.Any(k, v))
	}
	return &RunLogger{logger: logger, scope: scope{component: cfg.Component}}
}

// NewSlogLogger is NewLogger for the common level/format/source settings.
func NewSlogLogger(level LogLevel, format string, addSource bool) *RunLogger {
	cfg := DefaultLoggerConfig()
	cfg.Level = level
	if format != "" {
		cfg.Format = format
	}
	cfg.AddSource = addSource
	return NewLogger(cfg)
}

// WithContext attaches key=value to every later record.
func (l *RunLogger) WithContext(key string, value any) *RunLogger {
	return &RunLogger{logger: l.logger.With(slog.Any(key, value)), scope: l.scope}
}

// WithComponent sets the component (engine, runner, server...).
func (l *RunLogger) WithComponent(c string) *RunLogger {
	nl := *l
	nl.scope.component = c
	return &nl
}

// WithRun sets the run id.
func (l *RunLogger) WithRun(runID string) *RunLogger {
	nl := *l
	nl.scope.runID = runID
	return &nl
}

// WithStage sets the stage name.
func (l *RunLogger) WithStage(stage string) *RunLogger {
	nl := *l
	nl.scope.stage = stage
	return &nl
}

func (l *RunLogger) record(level slog.Level, msg string, extra ...slog.Attr) {
	ctx := context.Background()
	if !l.logger.Enabled(ctx, level) {
		return
	}
	l.logger.LogAttrs(ctx, level, msg, l.scope.attrs(extra...)...)
}

func (l *RunLogger) Debug(msg string, args ...any) { l.record(slog.LevelDebug, sprintf(msg, args)) }
func (l *RunLogger) Info(msg string, args ...any)  { l.record(slog.LevelInfo, sprintf(msg, args)) }
func (l *RunLogger) Warn(msg string, args ...any)  { l.record(slog.LevelWarn, sprintf(msg, args)) }
func (l *RunLogger) Error(msg string, args ...any) { l.record(slog.LevelError, sprintf(msg, args)) }

func outcome(dur time.Duration, ok bool, err error) []slog.Attr {
	attrs := []slog.Attr{slog.Duration("duration", dur), slog.Bool("success", ok && err == nil)}
	if err != nil {
		attrs = append(attrs, slog.String("error", err.Error()))
	}
	return attrs
}

// LogStage records one stage execution. It counts as failed when success is
// false or err is set.
func (l *RunLogger) LogStage(stage string, dur time.Duration, success bool, err error) {
	attrs := append([]slog.Attr{slog.String("stage_name", stage)}, outcome(dur, success, err)...)
	if success && err == nil {
		l.record(slog.LevelInfo, "Stage completed", attrs...)
		return
	}
	l.record(slog.LevelError, "Stage failed", attrs...)
}

// LogModelCall records the latency of one gateway call.
func (l *RunLogger) LogModelCall(provider, model string, dur time.Duration, success bool, err error) {
	attrs := append([]slog.Attr{slog.String("provider", provider), slog.String("model", model)}, outcome(dur, success, err)...)
	if success && err == nil {
		l.record(slog.LevelDebug, "Model call completed", attrs...)
		return
	}
	l.record(slog.LevelWarn, "Model call failed", attrs...)
}

// LogFanOut records how many parallel tasks of a stage ran and failed.
func (l *RunLogger) LogFanOut(stage string, total, failed int, dur time.Duration) {
	level := slog.LevelInfo
	if failed > 0 {
		level = slog.LevelWarn
	}
	l.record(level, "Fan-out finished",
		slog.String("stage_name", stage),
		slog.Int("task_count", total),
		slog.Int("failed_count", failed),
		slog.Duration("duration", dur),
	)
}

// NoOpLogger discards everything.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...any) {}
func (NoOpLogger) Info(string, ...any)  {}
func (NoOpLogger) Warn(string, ...any)  {}
func (NoOpLogger) Error(string, ...any) {}

// ForRun scopes l to a run when it is a *RunLogger; other loggers are returned
// unchanged.
func ForRun(l Logger, runID string) Logger {
	if rl, ok := l.(*RunLogger); ok {
		return rl.WithRun(runID)
	}
	return l
}

// ForStage scopes l to a stage when it is a *RunLogger.
func ForStage(l Logger, stage string) Logger {
	if rl, ok := l.(*RunLogger); ok {
		return rl.WithStage(stage)
	}
	return l
}
