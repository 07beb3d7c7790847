// Package logging provides structured logging configuration using zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug LogLevel = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo LogLevel = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn LogLevel = "warn"

	// LevelError logs error messages only.
	LevelError LogLevel = "error"

	// LevelDisabled turns logging off.
	LevelDisabled LogLevel = "disabled"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel `yaml:"level"`

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool `yaml:"pretty"`

	// Service is added to every line as "service" when set.
	Service string `yaml:"service"`

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer `yaml:"-"`
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:   LevelInfo,
		Pretty:  false,
		Service: "asset-proxy",
		Output:  os.Stderr,
	}
}

// Setup configures the global zerolog logger.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.DurationFieldUnit = time.Millisecond
	zerolog.DurationFieldInteger = false

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	ctx := zerolog.New(output).With().Timestamp()
	if cfg.Service != "" {
		ctx = ctx.Str("service", cfg.Service)
	}
	logger := ctx.Logger()

	// Set as global logger
	log.Logger = logger

	return logger
}

// parseLevel converts LogLevel to zerolog.Level.
func parseLevel(level LogLevel) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

// ValidLevel reports whether level names a known log level.
func ValidLevel(level LogLevel) bool {
	switch strings.ToLower(strings.TrimSpace(string(level))) {
	case "debug", "info", "warn", "warning", "error", "disabled", "off", "":
		return true
	default:
		return false
	}
}

// NewLogger creates a new logger with the given component name.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Cache hits and misses (key, backend)
//   - Coalescing (flight id, leader, subscribers)
//   - Transform geometry and encoded size
//
// Info: Normal operation events
//   - Variants derived (asset, spec, key)
//   - Origin changed between stat and fetch
//   - Server startup/shutdown
//
// Warn: Warning conditions that don't prevent operation
//   - Cache get/put failures (degraded to recompute)
//   - Cache guard opened
//   - Backend retry attempts
//
// Error: Error conditions requiring attention
//   - Transform failures (asset id and spec to reproduce)
//   - Panicking computations
//   - Configuration errors
//
// Context Fields:
//   - asset_id: Origin asset identifier
//   - spec: Canonical transform spec
//   - version: Origin version tag
//   - cache_key: Derived cache key
//   - cache_status: hit or miss
//   - backend: filesystem, s3 or redis
//   - flight_id: Coalesced computation id
//   - duration: Elapsed time in milliseconds
