package app

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogFormat selects how log lines are rendered.
type LogFormat int

const (
	// LogConsole renders human-readable lines for terminals.
	LogConsole LogFormat = iota
	// LogJSON renders one JSON object per line, for CloudWatch.
	LogJSON
)

// SetupLogging configures the global zerolog logger.
func SetupLogging(level string, format LogFormat) error {
	return setupLogging(os.Stderr, level, format)
}

func setupLogging(w io.Writer, level string, format LogFormat) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("parse log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if format == LogConsole {
		zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w}).With().Timestamp().Logger()
		return nil
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = zerolog.New(w).With().Timestamp().Str("service", "kirja").Logger()
	return nil
}
