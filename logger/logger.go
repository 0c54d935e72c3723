// Package logger constructs the process-wide zerolog.Logger.
package logger

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/turnstile-dp/censusd/config"
)

// New returns a configured zerolog.Logger: human-readable console
// output in development, structured JSON otherwise, at the level
// named by cfg.LogLevel (falling back to info on a bad value).
func New(cfg *config.Config) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if cfg.IsDevelopment() {
		out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
		return zerolog.New(out).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
