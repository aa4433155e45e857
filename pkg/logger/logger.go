package logger

import (
	"log/slog"
	"os"
	"sync/atomic"
)

// Level mirrors slog levels with a simpler surface for CLI flags.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
)

var levelVar = func() *slog.LevelVar {
	lv := &slog.LevelVar{}
	lv.Set(slog.LevelInfo)
	return lv
}()

var base atomic.Pointer[slog.Logger]

func init() {
	base.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar})))
}

// SetLevel adjusts the global minimum log level.
func SetLevel(level Level) {
	switch level {
	case DEBUG:
		levelVar.Set(slog.LevelDebug)
	case WARN:
		levelVar.Set(slog.LevelWarn)
	case ERROR:
		levelVar.Set(slog.LevelError)
	default:
		levelVar.Set(slog.LevelInfo)
	}
}

// SetOutput replaces the backing handler, mainly for tests.
func SetOutput(l *slog.Logger) {
	if l != nil {
		base.Store(l)
	}
}

// DebugCF logs a debug message for a component with structured fields.
func DebugCF(component, msg string, fields map[string]interface{}) {
	base.Load().Debug(msg, attrs(component, fields)...)
}

// InfoCF logs an info message for a component with structured fields.
func InfoCF(component, msg string, fields map[string]interface{}) {
	base.Load().Info(msg, attrs(component, fields)...)
}

// WarnCF logs a warning for a component with structured fields.
func WarnCF(component, msg string, fields map[string]interface{}) {
	base.Load().Warn(msg, attrs(component, fields)...)
}

// ErrorCF logs an error for a component with structured fields.
func ErrorCF(component, msg string, fields map[string]interface{}) {
	base.Load().Error(msg, attrs(component, fields)...)
}

func attrs(component string, fields map[string]interface{}) []any {
	out := make([]any, 0, 2+2*len(fields))
	out = append(out, "component", component)
	for k, v := range fields {
		out = append(out, k, v)
	}
	return out
}
