package fanload

// Logger provides a pluggable logging interface for fanload operations.
// Implementations must be safe for concurrent use by multiple goroutines.
type Logger interface {
	// Debug logs per-file tracing. Only logged when debug mode is enabled.
	Debug(format string, args ...interface{})

	// Verbose logs detailed diagnostic information.
	// Only logged when verbose (or debug) mode is enabled.
	Verbose(format string, args ...interface{})

	// Info logs informational messages about normal operations.
	Info(format string, args ...interface{})

	// Error logs error messages.
	Error(format string, args ...interface{})
}
