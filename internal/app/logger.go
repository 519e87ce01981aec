package app

import (
	"io"
	"strings"

	"github.com/MacJediWizard/licverify/internal/config"
	"github.com/rs/zerolog"
)

// NewLogger builds the process logger. Outside production it writes through a
// console writer. An unknown level falls back to info.
func NewLogger(cfg config.ServerConfig, out io.Writer, version string) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}

	if cfg.Environment != config.EnvProduction {
		out = zerolog.ConsoleWriter{Out: out}
	}

	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("version", version).
		Logger()
}
