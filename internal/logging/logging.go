// Package logging builds the console logger shared by every apm component.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"
)

// Options holds configuration for the console logger.
type Options struct {
	Level     string
	Formatter string
	Prefix    string
}

// DefaultOptions returns options for an info-level text logger.
func DefaultOptions() Options {
	return Options{Level: "info", Formatter: "text", Prefix: "apm"}
}

// New creates a logger writing to stderr so command output on stdout stays
// machine-readable.
func New(opts Options) *log.Logger {
	return NewWithWriter(os.Stderr, opts)
}

// NewWithWriter is New with an explicit destination, used by tests.
func NewWithWriter(w io.Writer, opts Options) *log.Logger {
	return log.NewWithOptions(w, log.Options{
		Level:     ParseLevel(opts.Level),
		Formatter: ParseFormatter(opts.Formatter),
		Prefix:    opts.Prefix,
	})
}

// Discard returns a logger that drops everything.
func Discard() *log.Logger {
	return log.NewWithOptions(io.Discard, log.Options{Level: log.FatalLevel})
}

// ParseLevel maps a level name onto a charmbracelet/log Level. Unknown
// names fall back to info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(level) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

// ParseFormatter maps a formatter name onto a charmbracelet/log Formatter.
func ParseFormatter(format string) log.Formatter {
	switch format {
	case "json":
		return log.JSONFormatter
	case "logfmt":
		return log.LogfmtFormatter
	default:
		return log.TextFormatter
	}
}
