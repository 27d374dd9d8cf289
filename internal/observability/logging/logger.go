// Package logging provides structured logging with zerolog.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const serviceName = "fish-assistant"

// Config holds logging configuration.
type Config struct {
	Level      string // debug, info, warn, error
	Format     string // json, console
	TimeFormat string
}

// DefaultConfig returns the production logging setup.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "json", TimeFormat: time.RFC3339}
}

// ParseLevel maps a LOG_LEVEL value to a zerolog level, defaulting to info.
func ParseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || level == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return level
}

// New builds a service logger writing to w.
func New(cfg Config, w io.Writer) zerolog.Logger {
	if strings.EqualFold(cfg.Format, "console") {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	return zerolog.New(w).
		Level(ParseLevel(cfg.Level)).
		With().
		Timestamp().
		Str("service", serviceName).
		Logger()
}

// Init installs the global logger on stdout. Every component logger derives
// from it, so Init must run before app.New.
func Init(cfg Config) {
	if cfg.TimeFormat == "" {
		cfg.TimeFormat = time.RFC3339
	}
	zerolog.TimeFieldFormat = cfg.TimeFormat
	zerolog.SetGlobalLevel(ParseLevel(cfg.Level))
	log.Logger = New(cfg, os.Stdout).With().Caller().Logger()
}

// Logger returns the process logger.
func Logger() zerolog.Logger { return log.Logger }

// WithCorrelation tags an interaction's corr_id.
func WithCorrelation(corrID string) zerolog.Logger {
	return log.With().Str("corrId", corrID).Logger()
}

// WithSegment tags a conversation segment.
func WithSegment(corrID string, seq uint64) zerolog.Logger {
	return log.With().Str("corrId", corrID).Uint64("segment", seq).Logger()
}

// WithComponent tags the owning component.
func WithComponent(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}
