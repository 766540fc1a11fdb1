// Package obs holds the logging and metrics plumbing shared by the core
// components. The core emits structured events; formatting and shipping
// belong to whatever collects them.
package obs

import (
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger builds the root structured logger. Component loggers are derived
// with .With().Str("component", ...).
func NewLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger().Level(lvl)
}
