// Package logging provides structured logging with file output support.
// It uses environment variables for configuration and supports file cleanup.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

const (
	envLevel  = "SIGGA_LOG_LEVEL"
	envPrefix = "SIGGA_LOG_PREFIX"
	envToFile = "SIGGA_LOG_TO_FILE"
)

// LoggerCloser wraps a logger and provides a Close method for cleanup
type LoggerCloser struct {
	*log.Logger
	closer io.Closer
	path   string
}

// Close closes the underlying writer if it's closeable
func (lc *LoggerCloser) Close() error {
	if lc.closer != nil {
		return lc.closer.Close()
	}
	return nil
}

// Path returns the log file in use, or "" when logging to a stream.
func (lc *LoggerCloser) Path() string {
	return lc.path
}

// levelFromEnv maps SIGGA_LOG_LEVEL to a level; unknown values mean info.
func levelFromEnv() log.Level {
	switch os.Getenv(envLevel) {
	case "debug":
		return log.DebugLevel
	case "warn":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// NewLoggerWithWriter creates a new logger with the provided writer
func NewLoggerWithWriter(w io.Writer) *LoggerCloser {
	lg := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
	})
	lg.SetLevel(levelFromEnv())

	prefix := os.Getenv(envPrefix)
	if prefix == "" {
		prefix = "sigga "
	}

	var closer io.Closer
	if c, ok := w.(io.Closer); ok && w != os.Stderr && w != os.Stdout {
		closer = c
	}

	return &LoggerCloser{
		Logger: lg.WithPrefix(prefix),
		closer: closer,
	}
}

// NewLogger creates a new logger based on environment variables
// SIGGA_LOG_LEVEL: debug, info, warn, error (default: info)
// SIGGA_LOG_PREFIX: prefix for log messages (default: "sigga ")
// SIGGA_LOG_TO_FILE: when set to "1", logs to a timestamped file instead of stderr
func NewLogger() *LoggerCloser {
	output := io.Writer(os.Stderr)
	path := ""

	if os.Getenv(envToFile) == "1" {
		timestamp := time.Now().Format("20060102-150405")
		logFile := fmt.Sprintf("sigga-%s-debug.log", timestamp)

		f, err := os.OpenFile(logFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
		if err == nil {
			output = f
			path = logFile
		}
		// If file creation fails, fall back to stderr
	}

	lc := NewLoggerWithWriter(output)
	lc.path = path
	return lc
}

// IsDebug returns true if debug logging is enabled
func IsDebug() bool {
	return os.Getenv(envLevel) == "debug"
}
