// Package logging builds the process-wide zerolog logger from config.
package logging

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

func New(level string, pretty bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	var w io.Writer = os.Stdout
	if pretty {
		w = zerolog.ConsoleWriter{Out: os.Stdout}
	}

	return zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}
