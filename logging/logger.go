// Package logging defines the structured logger used across keel and a
// zap-backed implementation of it.
//
// The Logger interface takes variadic key/value pairs:
//
//	logger.Info("Addon loaded", "addon", "keel-auth", "dir", dir)
//
// *slog.Logger and zap's SugaredLogger (through ZapLogger) both satisfy it,
// so applications keep control of how framework logs appear.
package logging

// Logger defines the interface for framework logging.
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	// Used for boot milestones such as addon loading and route registration.
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	// Used for request failures that were converted into error responses.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	// Container lookups and filter execution are logged at this level.
	Debug(msg string, args ...any)
}

// Nop returns a Logger that discards everything.
func Nop() Logger { return nopLogger{} }

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}

// OrNop returns l, or a no-op logger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}
