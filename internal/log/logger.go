package log

import (
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"medportal/internal/core"
)

// LogLevel defines the severity level for log messages.
type LogLevel int

// Log level constants.
const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
	FATAL
)

// AppLogger is the application logger implementation.
type AppLogger struct {
	logger     *log.Logger
	debug      bool
	component  string
	fileHandle *os.File
	mu         *sync.Mutex
}

// NewAppLoggerWithConfig creates a logger instance with configuration.
func NewAppLoggerWithConfig(output io.Writer, debugMode bool) *AppLogger {
	return &AppLogger{
		logger: log.New(output, "", log.LstdFlags),
		debug:  debugMode,
		mu:     &sync.Mutex{},
	}
}

// With returns a logger that tags every line with the component name.
// The child shares output and file handle with its parent.
func (l *AppLogger) With(component string) *AppLogger {
	if l == nil {
		return nil
	}
	child := *l
	if l.component != "" {
		child.component = l.component + "." + component
	} else {
		child.component = component
	}
	return &child
}

func (l *AppLogger) prefix(level string) string {
	if l.component == "" {
		return "[" + level + "] "
	}
	return "[" + level + "] [" + l.component + "] "
}

// Debug logs a message at DEBUG level.
func (l *AppLogger) Debug(format string, args ...any) {
	if l != nil && l.debug {
		l.logger.Printf(l.prefix("DEBUG")+format, args...)
	}
}

// Info logs a message at INFO level.
func (l *AppLogger) Info(format string, args ...any) {
	if l != nil {
		l.logger.Printf(l.prefix("INFO")+format, args...)
	}
}

// Warn logs a message at WARN level.
func (l *AppLogger) Warn(format string, args ...any) {
	if l != nil {
		l.logger.Printf(l.prefix("WARN")+format, args...)
	}
}

// Error logs a message at ERROR level.
func (l *AppLogger) Error(format string, args ...any) {
	if l != nil {
		l.logger.Printf(l.prefix("ERROR")+format, args...)
	}
}

// Fatal logs a message at FATAL level and terminates the process.
func (l *AppLogger) Fatal(format string, args ...any) {
	if l != nil {
		l.logger.Fatalf(l.prefix("FATAL")+format, args...)
	}
	log.New(os.Stderr, "", log.LstdFlags).Fatalf("[FATAL] "+format, args...)
}

// Close safely closes log file handle.
func (l *AppLogger) Close() error {
	if l == nil || l.mu == nil {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.fileHandle != nil {
		err := l.fileHandle.Close()
		l.fileHandle = nil
		return err
	}
	return nil
}

// containsPathTraversal reports whether path has a ".." element.
func containsPathTraversal(path string) bool {
	normalized := strings.ReplaceAll(path, "\\", "/")
	for _, element := range strings.Split(normalized, "/") {
		if element == ".." {
			return true
		}
	}
	return false
}

// createDebugFileOutput opens DEBUG_FILE when set. On any problem it falls
// back to stdout and returns a warning for the caller to log.
func createDebugFileOutput() (io.Writer, *os.File, string) {
	debugFile := os.Getenv("DEBUG_FILE")
	if debugFile == "" {
		return os.Stdout, nil, ""
	}

	if len(debugFile) > core.MaxDebugFilePathLength {
		return os.Stdout, nil, "DEBUG_FILE path too long, falling back to stdout"
	}

	if containsPathTraversal(debugFile) {
		return os.Stdout, nil, "DEBUG_FILE contains path traversal characters, falling back to stdout"
	}

	//nolint:gosec // G304: debugFile from env var, validated by containsPathTraversal
	file, err := os.OpenFile(debugFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, core.FilePermissionReadWrite)
	if err != nil {
		return os.Stdout, nil, fmt.Sprintf("Failed to open DEBUG_FILE '%s': %v, falling back to stdout", debugFile, err)
	}

	return file, file, ""
}

// IsDebug returns whether the app is running in debug mode.
func IsDebug() bool {
	return os.Getenv("GIN_MODE") == "debug"
}

// CreateLogger creates a logger instance (for dependency injection).
func CreateLogger() core.Logger {
	output, fileHandle, warning := createDebugFileOutput()

	logger := &AppLogger{
		logger:     log.New(output, "", log.LstdFlags),
		debug:      IsDebug(),
		fileHandle: fileHandle,
		mu:         &sync.Mutex{},
	}
	if warning != "" {
		logger.Warn("%s", warning)
	}

	return logger
}

// Named returns a component logger when l is an *AppLogger, and l otherwise.
func Named(l core.Logger, component string) core.Logger {
	if appLog, ok := l.(*AppLogger); ok && appLog != nil {
		return appLog.With(component)
	}
	if l == nil {
		return &core.NopLogger{}
	}
	return l
}
