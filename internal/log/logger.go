// Package log wraps log/slog with per-component loggers and shared field
// name constants so the aggregation, orchestration, and transport layers
// emit uniform records.
package log

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger and stamps every record with its component.
type Logger struct {
	*slog.Logger
	component string
}

// New creates a logger writing text records to stdout at the given level.
func New(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	return &Logger{
		Logger:    slog.New(handler),
		component: ComponentApp,
	}
}

// NewWithHandler creates a logger backed by a custom handler, used by tests.
func NewWithHandler(handler slog.Handler) *Logger {
	return &Logger{
		Logger:    slog.New(handler),
		component: ComponentApp,
	}
}

// WithComponent returns a logger scoped to a specific component name.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger:    l.Logger.With(FieldComponent, component),
		component: component,
	}
}

// With returns a logger carrying additional attributes.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		Logger:    l.Logger.With(args...),
		component: l.component,
	}
}

// Component returns the logger's component name.
func (l *Logger) Component() string {
	return l.component
}

// SetDefault installs the logger as the process-wide slog default, so code
// using slog.InfoContext directly shares the same handler.
func SetDefault(logger *Logger) {
	slog.SetDefault(logger.Logger)
}

// FromContext returns the default logger; kept as a hook point for
// request-scoped loggers.
func FromContext(_ context.Context) *Logger {
	return &Logger{Logger: slog.Default(), component: ComponentApp}
}
