// Package logger builds the zerolog loggers used across the agent.
// Loggers are constructed once and injected; no package carries its own
// global logger state.
package logger

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New returns a service-tagged logger. Development gets the console
// writer, anything else emits JSON lines.
func New(service, level, environment string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if environment == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(os.Stdout)
	}

	return logger.Level(lvl).With().
		Timestamp().
		Str("service", service).
		Logger()
}

// Nop returns a discard-everything logger for tests.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}
