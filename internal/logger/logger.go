// Package logger provides structured logging for the API prober.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// Level represents log levels.
type Level = zerolog.Level

// Log levels.
const (
	DebugLevel = zerolog.DebugLevel
	InfoLevel  = zerolog.InfoLevel
	WarnLevel  = zerolog.WarnLevel
	ErrorLevel = zerolog.ErrorLevel
	FatalLevel = zerolog.FatalLevel
)

// Logger wraps zerolog for structured logging.
type Logger struct {
	zl zerolog.Logger
}

// Config holds logger configuration.
type Config struct {
	Level      Level
	Pretty     bool // use console writer (colored output)
	Output     io.Writer
	TimeFormat string
	Component  string

	// LogFile, when set, routes output through a rotating file sink
	// instead of Output. Pretty is ignored when LogFile is set.
	LogFile    string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Level:      InfoLevel,
		Pretty:     true,
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	}
}

// New creates a new logger with the given configuration.
func New(cfg Config) *Logger {
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat

	var output io.Writer
	switch {
	case cfg.LogFile != "":
		output = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    nonZero(cfg.MaxSizeMB, 50),
			MaxBackups: nonZero(cfg.MaxBackups, 5),
			MaxAge:     nonZero(cfg.MaxAgeDays, 28),
			Compress:   true,
		}
	case cfg.Pretty:
		out := cfg.Output
		if out == nil {
			out = os.Stderr
		}
		output = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05", NoColor: false}
	default:
		output = cfg.Output
		if output == nil {
			output = os.Stderr
		}
	}

	zl := zerolog.New(output).With().Timestamp().Logger().Level(cfg.Level)
	if cfg.Component != "" {
		zl = zl.With().Str("component", cfg.Component).Logger()
	}
	return &Logger{zl: zl}
}

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

// NewDefault creates a logger with default configuration.
func NewDefault() *Logger {
	return New(DefaultConfig())
}

// WithComponent returns a new logger with the component field set.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{zl: l.zl.With().Str("component", component).Logger()}
}

// WithField returns a new logger with an additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// WithError returns a new logger with an error field.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{zl: l.zl.With().Err(err).Logger()}
}

// Debug logs a debug message.
func (l *Logger) Debug(msg string) { l.zl.Debug().Msg(msg) }

// Debugf logs a formatted debug message.
func (l *Logger) Debugf(format string, args ...interface{}) { l.zl.Debug().Msgf(format, args...) }

// Info logs an info message.
func (l *Logger) Info(msg string) { l.zl.Info().Msg(msg) }

// Infof logs a formatted info message.
func (l *Logger) Infof(format string, args ...interface{}) { l.zl.Info().Msgf(format, args...) }

// Warn logs a warning message.
func (l *Logger) Warn(msg string) { l.zl.Warn().Msg(msg) }

// Warnf logs a formatted warning message.
func (l *Logger) Warnf(format string, args ...interface{}) { l.zl.Warn().Msgf(format, args...) }

// Error logs an error message.
func (l *Logger) Error(msg string) { l.zl.Error().Msg(msg) }

// Errorf logs a formatted error message.
func (l *Logger) Errorf(format string, args ...interface{}) { l.zl.Error().Msgf(format, args...) }

// PhaseEvent logs the start or end of an orchestrator phase.
func (l *Logger) PhaseEvent(phase string, requestsSoFar int) {
	l.zl.Info().Str("phase", phase).Int("requests_so_far", requestsSoFar).Msg("phase")
}

// DiscoveryEvent logs a discovered endpoint.
func (l *Logger) DiscoveryEvent(path string, statusCode int, discoveredBy string) {
	l.zl.Info().
		Str("path", path).
		Int("status_code", statusCode).
		Str("discovered_by", discoveredBy).
		Msg("discovered endpoint")
}

// RequestEvent logs an HTTP request/response pair.
func (l *Logger) RequestEvent(method, url string, statusCode int, elapsed time.Duration) {
	l.zl.Debug().
		Str("method", method).
		Str("url", url).
		Int("status_code", statusCode).
		Dur("elapsed", elapsed).
		Msg("http request")
}

// Global logger instance.
var globalLogger = NewDefault()

// SetGlobal sets the global logger.
func SetGlobal(l *Logger) { globalLogger = l }

// Global returns the global logger.
func Global() *Logger { return globalLogger }
