package main

import (
	"os"

	"github.com/rs/zerolog"
)

// newLogger is grounded on Sergey-Bar-Alfred's gateway/logger.go: a
// console writer in every environment, debug level in development and
// info level otherwise.
func newLogger(cfg *Config) zerolog.Logger {
	out := zerolog.ConsoleWriter{Out: os.Stderr}
	lvl := zerolog.InfoLevel
	if cfg.Env == "development" {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)
	return zerolog.New(out).With().Timestamp().Logger()
}
