package logger

import "context"

type noopLogger struct{}

// NewNoopLogger returns a logger that discards everything.
func NewNoopLogger() Logger {
	return noopLogger{}
}

func (noopLogger) Debug(ctx context.Context, msg string, fields ...Field)            {}
func (noopLogger) Info(ctx context.Context, msg string, fields ...Field)             {}
func (noopLogger) Warn(ctx context.Context, msg string, fields ...Field)             {}
func (noopLogger) Error(ctx context.Context, msg string, err error, fields ...Field) {}
func (l noopLogger) WithFields(fields ...Field) Logger                               { return l }
func (l noopLogger) WithComponent(component string) Logger                           { return l }
