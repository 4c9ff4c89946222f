package domain

// Logger defines the contract for logging operations with different severity levels.
type Logger interface {
	// Debug logs a diagnostic message with optional formatted arguments.
	Debug(msg string, args ...interface{})
	// Info logs an informational message with optional formatted arguments.
	Info(msg string, args ...interface{})
	// Warn logs a recoverable problem with optional formatted arguments.
	Warn(msg string, args ...interface{})
	// Error logs an error message with optional formatted arguments.
	Error(msg string, args ...interface{})
}
