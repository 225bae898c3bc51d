// Package logging configures structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Level is a logging level name as accepted from configuration.
type Level string

const (
	// LevelDebug logs debug messages and above.
	LevelDebug Level = "debug"

	// LevelInfo logs info messages and above.
	LevelInfo Level = "info"

	// LevelWarn logs warning messages and above.
	LevelWarn Level = "warn"

	// LevelError logs error messages only.
	LevelError Level = "error"
)

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level Level

	// Pretty enables human-readable console output (default: false for JSON).
	Pretty bool

	// Output is the writer to output logs to (default: os.Stderr).
	Output io.Writer
}

// DefaultConfig returns a default logger configuration.
func DefaultConfig() Config {
	return Config{
		Level:  LevelInfo,
		Pretty: false,
		Output: os.Stderr,
	}
}

// Setup configures the global zerolog logger and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	var output io.Writer = cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	logger := zerolog.New(output).With().Timestamp().Logger()
	log.Logger = logger

	return logger
}

// parseLevel converts a Level to zerolog.Level, defaulting to info.
func parseLevel(level Level) zerolog.Level {
	switch strings.ToLower(string(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// NewLogger creates a logger scoped to one component.
//
// Component names used in this codebase: crm-client, field-resolver,
// digest, server.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
