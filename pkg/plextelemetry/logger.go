// Package plextelemetry builds the executive's structured logger
// (grounded on the teacher's direct github.com/rs/zerolog dependency,
// preferred here over the teacher backend module's slog wrapper so the
// rewrite exercises the third-party logging library the wider example
// corpus actually imports).
package plextelemetry

import (
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/plexil-group/plexil-sub002/pkg/plexconfig"
)

// New builds a zerolog.Logger per cfg: "console" gets zerolog's
// human-readable ConsoleWriter, anything else gets newline-delimited JSON
// to stdout.
func New(cfg plexconfig.LoggingConfig) zerolog.Logger {
	level := parseLevel(cfg.Level)

	var logger zerolog.Logger
	if strings.EqualFold(cfg.Format, "console") {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"})
	} else {
		logger = zerolog.New(os.Stdout)
	}
	return logger.Level(level).With().Timestamp().Logger()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
