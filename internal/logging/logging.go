// Package logging provides structured logging for lanscope built on log/slog.
// It supports text and JSON output, configurable levels and file output, and
// carries helpers for the scan, probe, resolution and cache components.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
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
	Level     LogLevel  `yaml:"level" json:"level"`
	Format    LogFormat `yaml:"format" json:"format"`
	Output    string    `yaml:"output" json:"output"`
	AddSource bool      `yaml:"add_source" json:"add_source"`
}

// DefaultConfig returns a default logging configuration. Logs go to stderr so
// that command output on stdout stays machine readable.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Format: FormatText,
		Output: "stderr",
	}
}

// Logger wraps slog.Logger with component helpers.
type Logger struct {
	*slog.Logger
	config Config
}

// New creates a new structured logger with the given configuration.
func New(cfg Config) (*Logger, error) {
	var writer io.Writer
	switch cfg.Output {
	case "", "stderr":
		writer = os.Stderr
	case "stdout":
		writer = os.Stdout
	default:
		if err := os.MkdirAll(filepath.Dir(cfg.Output), logDirPerm); err != nil {
			return nil, err
		}
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePerm)
		if err != nil {
			return nil, err
		}
		writer = file
	}
	return NewWithWriter(writer, cfg), nil
}

// NewWithWriter creates a logger that writes to w, ignoring cfg.Output.
func NewWithWriter(w io.Writer, cfg Config) *Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(string(cfg.Level)),
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
		config: cfg,
	}
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

// NewDefault creates a logger with default configuration.
func NewDefault() *Logger {
	logger, _ := New(DefaultConfig())
	return logger
}

// WithFields adds structured fields to the logger.
func (l *Logger) WithFields(fields ...any) *Logger {
	return &Logger{
		Logger: l.With(fields...),
		config: l.config,
	}
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

// InfoScan logs range scan information.
func (l *Logger) InfoScan(msg, network string, fields ...any) {
	allFields := append([]any{"network", network}, fields...)
	l.Info(msg, allFields...)
}

// ErrorScan logs range scan errors.
func (l *Logger) ErrorScan(msg, network string, err error, fields ...any) {
	allFields := append([]any{"network", network, "error", err}, fields...)
	l.Error(msg, allFields...)
}

// DebugProbe logs the outcome of a single host probe.
func (l *Logger) DebugProbe(msg, ip string, fields ...any) {
	allFields := append([]any{"component", "probe", "ip", ip}, fields...)
	l.Debug(msg, allFields...)
}

// WarnChannel logs an identity evidence channel failure.
func (l *Logger) WarnChannel(channel, ip string, err error, fields ...any) {
	allFields := append([]any{"component", "resolver", "channel", channel, "ip", ip, "error", err}, fields...)
	l.Warn("resolution channel failed", allFields...)
}

// InfoCache logs cache activity.
func (l *Logger) InfoCache(msg, cache string, fields ...any) {
	allFields := append([]any{"component", "cache", "cache", cache}, fields...)
	l.Info(msg, allFields...)
}

// Global logger instance - can be replaced for testing.
var defaultLogger = NewDefault()

// SetDefault sets the default logger instance.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}

// Default returns the default logger instance.
func Default() *Logger {
	return defaultLogger
}

// Debug logs at debug level using the default logger.
func Debug(msg string, fields ...any) {
	defaultLogger.Debug(msg, fields...)
}

// Info logs at info level using the default logger.
func Info(msg string, fields ...any) {
	defaultLogger.Info(msg, fields...)
}

// Warn logs at warn level using the default logger.
func Warn(msg string, fields ...any) {
	defaultLogger.Warn(msg, fields...)
}

// Error logs at error level using the default logger.
func Error(msg string, fields ...any) {
	defaultLogger.Error(msg, fields...)
}

// InfoScan logs range scan information using the default logger.
func InfoScan(msg, network string, fields ...any) {
	defaultLogger.InfoScan(msg, network, fields...)
}

// ErrorScan logs range scan errors using the default logger.
func ErrorScan(msg, network string, err error, fields ...any) {
	defaultLogger.ErrorScan(msg, network, err, fields...)
}

// DebugProbe logs a probe outcome using the default logger.
func DebugProbe(msg, ip string, fields ...any) {
	defaultLogger.DebugProbe(msg, ip, fields...)
}

// WarnChannel logs a resolution channel failure using the default logger.
func WarnChannel(channel, ip string, err error, fields ...any) {
	defaultLogger.WarnChannel(channel, ip, err, fields...)
}

// InfoCache logs cache activity using the default logger.
func InfoCache(msg, cache string, fields ...any) {
	defaultLogger.InfoCache(msg, cache, fields...)
}
