package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Levels accepted by the loggers and the read-side filters.
const (
	LevelDebug = "DEBUG"
	LevelInfo  = "INFO"
	LevelWarn  = "WARN"
	LevelError = "ERROR"
)

var slogLevels = map[string]slog.Level{
	LevelDebug: slog.LevelDebug,
	LevelInfo:  slog.LevelInfo,
	LevelWarn:  slog.LevelWarn,
	LevelError: slog.LevelError,
}

// ValidLevels returns the accepted level strings.
func ValidLevels() []string {
	return []string{LevelDebug, LevelInfo, LevelWarn, LevelError}
}

// ParseLevel normalizes a level string, defaulting to INFO for anything
// unrecognized.
func ParseLevel(level string) string {
	normalized := strings.ToUpper(level)
	if _, ok := slogLevels[normalized]; ok {
		return normalized
	}
	return LevelInfo
}

func parseLevel(level string) slog.Level {
	if lv, ok := slogLevels[strings.ToUpper(level)]; ok {
		return lv
	}
	return slog.LevelInfo
}

// syncCloser is the subset of file behavior Close relies on. Both
// *os.File and *RotatingWriter satisfy it.
type syncCloser interface {
	Sync() error
	Close() error
}

// Logger emits JSON log lines carrying a set of persistent attributes.
// Child loggers share the underlying writer, so closing any of them
// closes the file for all. Safe for concurrent use.
type Logger struct {
	logger *slog.Logger
	out    syncCloser
	mu     sync.Mutex // guards out across Close
	attrs  []slog.Attr
}

// NewLogger writes JSON logs to logPath, creating parent directories as
// needed and appending to an existing file. An empty path logs to
// stderr. The level gates which records are written.
func NewLogger(logPath string, level string) (*Logger, error) {
	if logPath == "" {
		return newLogger(os.Stderr, nil, level), nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return newLogger(file, file, level), nil
}

// NewRotatingLogger writes to logPath through a RotatingWriter so the
// daemon's long-running log cannot grow without bound.
func NewRotatingLogger(logPath string, level string, config RotationConfig) (*Logger, error) {
	writer, err := NewRotatingWriter(logPath, config)
	if err != nil {
		return nil, err
	}
	return newLogger(writer, writer, level), nil
}

// NopLogger discards everything. Collaborators accept it when a caller
// has no interest in their logging.
func NopLogger() *Logger {
	return &Logger{logger: slog.New(slog.NewJSONHandler(io.Discard, nil))}
}

func newLogger(writer io.Writer, out syncCloser, level string) *Logger {
	handler := slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: parseLevel(level)})
	return &Logger{logger: slog.New(handler), out: out}
}

// Debug logs at DEBUG level with alternating key-value args.
func (l *Logger) Debug(msg string, args ...any) { l.log(slog.LevelDebug, msg, args...) }

// Info logs at INFO level with alternating key-value args.
func (l *Logger) Info(msg string, args ...any) { l.log(slog.LevelInfo, msg, args...) }

// Warn logs at WARN level with alternating key-value args.
func (l *Logger) Warn(msg string, args ...any) { l.log(slog.LevelWarn, msg, args...) }

// Error logs at ERROR level with alternating key-value args.
func (l *Logger) Error(msg string, args ...any) { l.log(slog.LevelError, msg, args...) }

// log prepends the persistent attributes to the per-call args so they
// appear on every record the child emits.
func (l *Logger) log(level slog.Level, msg string, args ...any) {
	merged := make([]any, 0, len(l.attrs)*2+len(args))
	for _, attr := range l.attrs {
		merged = append(merged, attr.Key, attr.Value.Any())
	}
	merged = append(merged, args...)
	l.logger.Log(context.Background(), level, msg, merged...)
}

// WithComponent returns a child logger tagging every record with the
// subsystem name ("journal", "opqueue", "gitstore", "processor", ...).
func (l *Logger) WithComponent(component string) *Logger {
	return l.withAttr(slog.String("component", component))
}

// WithRequest returns a child logger tagging every record with the
// operation request file being processed.
func (l *Logger) WithRequest(file string) *Logger {
	return l.withAttr(slog.String("request", file))
}

// With returns a child logger carrying the given alternating key-value
// pairs on top of the existing attributes. Keys that are not strings are
// skipped along with their values.
func (l *Logger) With(args ...any) *Logger {
	if len(args) == 0 {
		return l
	}

	attrs := make([]slog.Attr, 0, len(l.attrs)+len(args)/2)
	attrs = append(attrs, l.attrs...)
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			attrs = append(attrs, slog.Any(key, args[i+1]))
		}
	}
	return &Logger{logger: l.logger, out: l.out, attrs: attrs}
}

func (l *Logger) withAttr(attr slog.Attr) *Logger {
	attrs := make([]slog.Attr, 0, len(l.attrs)+1)
	attrs = append(attrs, l.attrs...)
	attrs = append(attrs, attr)
	return &Logger{logger: l.logger, out: l.out, attrs: attrs}
}

// Close flushes and closes the underlying file. Idempotent; a no-op for
// stderr and nop loggers.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.out == nil {
		return nil
	}
	if err := l.out.Sync(); err != nil {
		return fmt.Errorf("failed to sync log file: %w", err)
	}
	if err := l.out.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	l.out = nil
	return nil
}
