package debug

import (
	"io"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{
	ReportTimestamp: true,
	TimeFormat:      "15:04:05.000",
	Level:           log.InfoLevel,
})

// Init configures the shared logger; debug lowers the level to DEBUG
func Init(enabled bool) {
	if enabled {
		logger.SetLevel(log.DebugLevel)
	} else {
		logger.SetLevel(log.InfoLevel)
	}
}

// SetOutput redirects log output, mainly for tests
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}

// Logger returns the shared logger
func Logger() *log.Logger {
	return logger
}

// DebugHeader prints debug header if debugging is enabled
func DebugHeader(enabled bool) {
	if enabled {
		logger.Debug("=== DEBUG START ===")
	}
}

// DebugFooter prints debug footer if debugging is enabled
func DebugFooter(enabled bool) {
	if enabled {
		logger.Debug("=== DEBUG END ===")
	}
}

// DebugOutput prints debug output if debugging is enabled
func DebugOutput(enabled bool, format string, args ...interface{}) {
	if enabled {
		logger.Debugf(format, args...)
	}
}

// DebugTiming measures and logs execution time if debugging is enabled
func DebugTiming(enabled bool, operation string) func() {
	if !enabled {
		return func() {}
	}

	start := time.Now()
	logger.Debug("starting", "operation", operation)

	return func() {
		logger.Debug("completed", "operation", operation, "took", time.Since(start))
	}
}

// Info logs a structured message at INFO level
func Info(message string, keyvals ...interface{}) {
	logger.Info(message, keyvals...)
}

// Warn logs a structured message at WARN level
func Warn(message string, keyvals ...interface{}) {
	logger.Warn(message, keyvals...)
}

// Error logs a structured message at ERROR level
func Error(message string, keyvals ...interface{}) {
	logger.Error(message, keyvals...)
}

// Fatalf logs at FATAL level and exits
func Fatalf(format string, args ...interface{}) {
	logger.Fatalf(format, args...)
}
