package logging

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Level prefixes. Info lines carry no prefix so the run summary reads cleanly.
var levelPrefix = map[logrus.Level]string{
	logrus.TraceLevel: "[DEBUG] ",
	logrus.DebugLevel: "[VERBOSE] ",
	logrus.WarnLevel:  "[WARN] ",
	logrus.ErrorLevel: "[ERROR] ",
	logrus.FatalLevel: "[FATAL] ",
	logrus.PanicLevel: "[PANIC] ",
}

// lineFormatter renders "<prefix><message>" followed by any fields as key=value.
type lineFormatter struct{}

func (lineFormatter) Format(e *logrus.Entry) ([]byte, error) {
	var b bytes.Buffer
	b.WriteString(levelPrefix[e.Level])
	b.WriteString(e.Message)
	for k, v := range e.Data {
		fmt.Fprintf(&b, " %s=%v", k, v)
	}
	b.WriteByte('\n')
	return b.Bytes(), nil
}

// ConsoleLogger writes log messages to stderr through logrus.
// Safe for concurrent use by multiple goroutines.
//
// Verbose output maps to logrus debug level and Debug output to trace level,
// so enabling debug implies verbose.
type ConsoleLogger struct {
	log *logrus.Logger
}

// NewConsoleLogger creates a ConsoleLogger writing to stderr.
// If verbose is true, Verbose() calls produce output; if debug is true,
// Debug() and Verbose() calls produce output.
func NewConsoleLogger(verbose, debug bool) *ConsoleLogger {
	return NewConsoleLoggerTo(os.Stderr, verbose, debug)
}

// NewConsoleLoggerTo creates a ConsoleLogger writing to w.
func NewConsoleLoggerTo(w io.Writer, verbose, debug bool) *ConsoleLogger {
	l := logrus.New()
	l.SetOutput(w)
	l.SetFormatter(lineFormatter{})
	switch {
	case debug:
		l.SetLevel(logrus.TraceLevel)
	case verbose:
		l.SetLevel(logrus.DebugLevel)
	default:
		l.SetLevel(logrus.InfoLevel)
	}
	return &ConsoleLogger{log: l}
}

// Debug logs per-file tracing if debug mode is enabled.
func (l *ConsoleLogger) Debug(format string, args ...interface{}) {
	l.log.Tracef(format, args...)
}

// Verbose logs detailed diagnostic information if verbose mode is enabled.
func (l *ConsoleLogger) Verbose(format string, args ...interface{}) {
	l.log.Debugf(format, args...)
}

// Info logs informational messages about normal operations.
func (l *ConsoleLogger) Info(format string, args ...interface{}) {
	l.log.Infof(format, args...)
}

// Warn logs a recoverable problem.
func (l *ConsoleLogger) Warn(format string, args ...interface{}) {
	l.log.Warnf(format, args...)
}

// Error logs error messages.
func (l *ConsoleLogger) Error(format string, args ...interface{}) {
	l.log.Errorf(format, args...)
}

// Writer returns a pipe that logs each written line at verbose level.
// The caller must close it. Used to forward child process output.
func (l *ConsoleLogger) Writer() *io.PipeWriter {
	return l.log.WriterLevel(logrus.DebugLevel)
}
