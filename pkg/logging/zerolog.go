// Package logging adapts zerolog to the printf-style Logger interfaces
// declared by the tracker and reader bridge domains.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Formats accepted by New.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// ZerologLogger implements the domain Logger interfaces on top of zerolog.
type ZerologLogger struct {
	logger zerolog.Logger
}

// Debug logs a debug message with optional formatted arguments.
func (l *ZerologLogger) Debug(msg string, args ...interface{}) {
	l.logger.Debug().Msgf(msg, args...)
}

// Info logs an informational message with optional formatted arguments.
func (l *ZerologLogger) Info(msg string, args ...interface{}) {
	l.logger.Info().Msgf(msg, args...)
}

// Warn logs a warning with optional formatted arguments.
func (l *ZerologLogger) Warn(msg string, args ...interface{}) {
	l.logger.Warn().Msgf(msg, args...)
}

// Error logs an error message with optional formatted arguments.
func (l *ZerologLogger) Error(msg string, args ...interface{}) {
	l.logger.Error().Msgf(msg, args...)
}

// With returns a child logger that tags every entry with key=value.
func (l *ZerologLogger) With(key, value string) *ZerologLogger {
	return &ZerologLogger{logger: l.logger.With().Str(key, value).Logger()}
}

// New creates a logger writing to w. level is a zerolog level name
// ("debug", "info", ...); format is FormatConsole or FormatJSON.
func New(w io.Writer, level, format string) (*ZerologLogger, error) {
	if w == nil {
		w = os.Stdout
	}

	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	switch format {
	case FormatJSON:
	case FormatConsole, "":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	return &ZerologLogger{
		logger: zerolog.New(w).Level(lvl).With().Timestamp().Logger(),
	}, nil
}
