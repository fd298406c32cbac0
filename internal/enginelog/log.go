// Package enginelog provides the structured logger shared by the engine and the tvarserver
// command built on top of it.
package enginelog

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the package-wide logger. Replace it with Init before opening a Store if a caller
// wants JSON output or a non-default level.
var Logger zerolog.Logger

func init() {
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
		With().Timestamp().Logger()
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// Level names a subset of zerolog's levels accepted by Init.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config controls Init's output.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init replaces the package logger. Safe to call before any Store is opened; not safe to call
// concurrently with logging.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.JSONOutput {
		Logger = zerolog.New(out).With().Timestamp().Logger()
		return
	}
	Logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}).
		With().Timestamp().Logger()
}

// WithComponent returns a child logger tagged with the given component name.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithHandle returns a child logger tagged with a Store handle id.
func WithHandle(handleID string) zerolog.Logger {
	return Logger.With().Str("tvar_handle", handleID).Logger()
}
