package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"

	"utility-billing/internal/config"
)

// NewLogger creates a structured zerolog.Logger tagged with the service name.
// Unknown levels fall back to info.
func NewLogger(cfg config.Config) zerolog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg config.Config) zerolog.Logger {
	ctx := zerolog.New(w).With().Timestamp()
	if cfg.ServiceName != "" {
		ctx = ctx.Str("service", cfg.ServiceName)
	}
	logger := ctx.Logger()

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || cfg.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	return logger.Level(level)
}
