// Package logsvc implements the external logging service of spec.md §6:
// createLogger(name) → logger with logInfo/Warning/Error/Fatal/Debug and
// is*Enabled.
//
// Built directly on log/slog in the teacher's style
// (internal/config.ParseLogLevel / ReplaceLogLevelNames): a named
// component logger is a *slog.Logger with a "component" attribute
// already bound via With, and the trace level below debug used
// elsewhere in the teacher's ambient stack is kept for wire-level
// scheduler/transport diagnostics.
package logsvc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace is a custom level below Debug, for per-tick/per-message
// forensics too noisy for Debug. ParseLevel maps "trace" to it.
const LevelTrace = slog.Level(-8)

// ParseLevel converts a string to a slog.Level. Supported values: trace,
// debug, info, warn, error (case-insensitive); empty defaults to info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logsvc: unknown log level %q (valid: trace, debug, info, warn, error)", s)
	}
}

// ReplaceLevelNames customizes the level attribute so LevelTrace prints
// as "TRACE" instead of slog's default "DEBUG-8".
func ReplaceLevelNames(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		if level, ok := a.Value.Any().(slog.Level); ok && level == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}

// Logger is the external logging-service surface spec.md §6 names:
// per-level log calls plus is*Enabled guards so a caller can skip
// expensive argument construction.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warning(msg string, args ...any)
	Error(msg string, args ...any)
	Fatal(msg string, args ...any)
	IsDebugEnabled() bool
	IsInfoEnabled() bool
}

// slogLogger adapts a *slog.Logger to Logger. Fatal logs at error level
// with a "fatal" marker attribute — the core never calls os.Exit on a
// caller's behalf (spec.md §1: "does not own the process lifecycle").
type slogLogger struct {
	base *slog.Logger
}

// NewLogger creates a Logger named name, bound as a "component"
// attribute on base (spec.md §6 createLogger(name)).
func NewLogger(name string, base *slog.Logger) Logger {
	if base == nil {
		base = slog.Default()
	}
	return &slogLogger{base: base.With("component", name)}
}

func (l *slogLogger) Debug(msg string, args ...any)   { l.base.Debug(msg, args...) }
func (l *slogLogger) Info(msg string, args ...any)    { l.base.Info(msg, args...) }
func (l *slogLogger) Warning(msg string, args ...any) { l.base.Warn(msg, args...) }
func (l *slogLogger) Error(msg string, args ...any)   { l.base.Error(msg, args...) }
func (l *slogLogger) Fatal(msg string, args ...any) {
	l.base.Error(msg, append([]any{"fatal", true}, args...)...)
}

func (l *slogLogger) IsDebugEnabled() bool {
	return l.base.Enabled(context.Background(), slog.LevelDebug)
}

func (l *slogLogger) IsInfoEnabled() bool {
	return l.base.Enabled(context.Background(), slog.LevelInfo)
}
