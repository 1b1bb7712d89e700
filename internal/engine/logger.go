package engine

import "log/slog"

// Logger is the minimal leveled logging surface used by the engine. Callers
// may adapt any structured logger; the default is a no-op.
type Logger interface {
	Debug(msg string, keyvals ...any)
	Info(msg string, keyvals ...any)
	Warn(msg string, keyvals ...any)
	Error(msg string, keyvals ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger { return nopLogger{} }

type slogLogger struct{ l *slog.Logger }

func (s slogLogger) Debug(msg string, keyvals ...any) { s.l.Debug(msg, keyvals...) }
func (s slogLogger) Info(msg string, keyvals ...any)  { s.l.Info(msg, keyvals...) }
func (s slogLogger) Warn(msg string, keyvals ...any)  { s.l.Warn(msg, keyvals...) }
func (s slogLogger) Error(msg string, keyvals ...any) { s.l.Error(msg, keyvals...) }

// NewSlogLogger adapts a slog.Logger. A nil logger uses slog.Default.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}
	return slogLogger{l: l}
}
