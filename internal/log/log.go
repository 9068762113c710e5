// Package log builds zerolog loggers for the gogate binary.
package log

import (
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// ParseLevel normalizes a level string. Empty means info; unknown values
// return info with an error.
func ParseLevel(s string) (zerolog.Level, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	s = strings.ReplaceAll(s, "_", "")
	s = strings.ReplaceAll(s, "-", "")
	switch s {
	case "", "info":
		return zerolog.InfoLevel, nil
	case "trace":
		return zerolog.TraceLevel, nil
	case "debug":
		return zerolog.DebugLevel, nil
	case "warn", "warning":
		return zerolog.WarnLevel, nil
	case "error", "err":
		return zerolog.ErrorLevel, nil
	case "disabled", "off", "none":
		return zerolog.Disabled, nil
	default:
		return zerolog.InfoLevel, errors.New("invalid log level")
	}
}

// Options controls logger output.
type Options struct {
	Level string
	// JSON selects structured output; otherwise a console writer is used.
	JSON bool
	// Writer defaults to stderr.
	Writer io.Writer
}

// New returns a logger with a timestamp field at the parsed level.
func New(opt Options) (zerolog.Logger, error) {
	level, err := ParseLevel(opt.Level)
	if err != nil {
		return zerolog.Nop(), err
	}
	var w io.Writer = os.Stderr
	if opt.Writer != nil {
		w = opt.Writer
	}
	if !opt.JSON {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: opt.Writer != nil}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), nil
}
