// Package logging provides structured logging for reconnode on top of log/slog.
// Output can be text or JSON, to stdout, stderr or an append-only file.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

const (
	logDirPerm  = 0750
	logFilePerm = 0600
)

// LogLevel represents the available log levels.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// LogFormat represents the available log formats.
type LogFormat string

const (
	FormatText LogFormat = "text"
	FormatJSON LogFormat = "json"
)

// Config holds logging configuration.
type Config struct {
	Level     LogLevel  `yaml:"level" json:"level" validate:"omitempty,oneof=debug info warn error"`
	Format    LogFormat `yaml:"format" json:"format" validate:"omitempty,oneof=text json"`
	Output    string    `yaml:"output" json:"output"`
	AddSource bool      `yaml:"add_source" json:"add_source"`
}

// DefaultConfig returns the logging configuration used when none is given.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatText,
		Output: "stdout",
	}
}

// Logger wraps slog.Logger with reconnode field helpers.
type Logger struct {
	*slog.Logger
	closer io.Closer
}

// ParseLevel maps a level name to its slog level. Unknown names map to info.
func ParseLevel(name LogLevel) slog.Level {
	switch strings.ToLower(string(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New creates a logger from cfg.
func New(cfg Config) (*Logger, error) {
	var (
		writer io.Writer
		closer io.Closer
	)
	switch cfg.Output {
	case "", "stdout":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Output), logDirPerm); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
		if err != nil {
			return nil, err
		}
		writer, closer = file, file
	}

	logger := NewWithWriter(writer, cfg)
	logger.closer = closer
	return logger, nil
}

// NewWithWriter creates a logger writing to w, ignoring cfg.Output.
func NewWithWriter(w io.Writer, cfg Config) *Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(cfg.Level),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.Format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewDefault creates a logger with default configuration.
func NewDefault() *Logger {
	return NewWithWriter(os.Stdout, DefaultConfig())
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}

// WithFields adds structured fields to the logger.
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{Logger: l.With(fields...), closer: l.closer}
}

// WithComponent adds a component field to the logger.
func (l *Logger) WithComponent(component string) *Logger {
	return l.WithFields("component", component)
}

// WithScanID adds a scan ID field to the logger.
func (l *Logger) WithScanID(scanID string) *Logger {
	return l.WithFields("scan_id", scanID)
}

// WithTarget adds a target field to the logger.
func (l *Logger) WithTarget(target string) *Logger {
	return l.WithFields("target", target)
}

// WithError adds an error field to the logger.
func (l *Logger) WithError(err error) *Logger {
	return l.WithFields("error", err)
}

// InfoScan logs scan-related information.
func (l *Logger) InfoScan(msg, target string, fields ...any) {
	l.Info(msg, append([]any{"target", target}, fields...)...)
}

// ErrorScan logs scan-related errors.
func (l *Logger) ErrorScan(msg, target string, err error, fields ...any) {
	l.Error(msg, append([]any{"target", target, "error", err}, fields...)...)
}

// InfoDiscovery logs discovery-related information.
func (l *Logger) InfoDiscovery(msg, network string, fields ...any) {
	l.Info(msg, append([]any{"network", network}, fields...)...)
}

// ErrorDiscovery logs discovery-related errors.
func (l *Logger) ErrorDiscovery(msg, network string, err error, fields ...any) {
	l.Error(msg, append([]any{"network", network, "error", err}, fields...)...)
}

// InfoStore logs result store and history information.
func (l *Logger) InfoStore(msg string, fields ...any) {
	l.Info(msg, append([]any{"component", "store"}, fields...)...)
}

// ErrorStore logs result store and history errors.
func (l *Logger) ErrorStore(msg string, err error, fields ...any) {
	l.Error(msg, append([]any{"component", "store", "error", err}, fields...)...)
}

// InfoDaemon logs daemon-related information.
func (l *Logger) InfoDaemon(msg string, fields ...any) {
	l.Info(msg, append([]any{"component", "daemon"}, fields...)...)
}

// ErrorDaemon logs daemon-related errors.
func (l *Logger) ErrorDaemon(msg string, err error, fields ...any) {
	l.Error(msg, append([]any{"component", "daemon", "error", err}, fields...)...)
}

var defaultLogger atomic.Pointer[Logger]

func init() {
	defaultLogger.Store(NewDefault())
}

// SetDefault replaces the package-level logger.
func SetDefault(logger *Logger) {
	if logger != nil {
		defaultLogger.Store(logger)
	}
}

// Default returns the package-level logger.
func Default() *Logger {
	return defaultLogger.Load()
}

// Debug logs at debug level using the default logger.
func Debug(msg string, fields ...any) {
	Default().Debug(msg, fields...)
}

// Info logs at info level using the default logger.
func Info(msg string, fields ...any) {
	Default().Info(msg, fields...)
}

// Warn logs at warn level using the default logger.
func Warn(msg string, fields ...any) {
	Default().Warn(msg, fields...)
}

// Error logs at error level using the default logger.
func Error(msg string, fields ...any) {
	Default().Error(msg, fields...)
}

// InfoScan logs scan-related information using the default logger.
func InfoScan(msg, target string, fields ...any) {
	Default().InfoScan(msg, target, fields...)
}

// ErrorScan logs scan-related errors using the default logger.
func ErrorScan(msg, target string, err error, fields ...any) {
	Default().ErrorScan(msg, target, err, fields...)
}

// InfoDiscovery logs discovery-related information using the default logger.
func InfoDiscovery(msg, network string, fields ...any) {
	Default().InfoDiscovery(msg, network, fields...)
}

// ErrorDiscovery logs discovery-related errors using the default logger.
func ErrorDiscovery(msg, network string, err error, fields ...any) {
	Default().ErrorDiscovery(msg, network, err, fields...)
}

// InfoStore logs store-related information using the default logger.
func InfoStore(msg string, fields ...any) {
	Default().InfoStore(msg, fields...)
}

// ErrorStore logs store-related errors using the default logger.
func ErrorStore(msg string, err error, fields ...any) {
	Default().ErrorStore(msg, err, fields...)
}

// InfoDaemon logs daemon-related information using the default logger.
func InfoDaemon(msg string, fields ...any) {
	Default().InfoDaemon(msg, fields...)
}

// ErrorDaemon logs daemon-related errors using the default logger.
func ErrorDaemon(msg string, err error, fields ...any) {
	Default().ErrorDaemon(msg, err, fields...)
}
