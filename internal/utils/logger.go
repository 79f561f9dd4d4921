package utils

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LogOptions controls verbosity, format and the optional rotating log file.
type LogOptions struct {
	Level      string
	JSON       bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// NewLogger returns a slog.Logger configured for the desired verbosity and format.
// When File is set, records are written to stdout and to a lumberjack-rotated file.
// The returned closer releases the file and is never nil.
func NewLogger(opts LogOptions) (*slog.Logger, io.Closer) {
	var out io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		out = io.MultiWriter(os.Stdout, rotating)
		closer = rotating
	}
	return slog.New(newHandler(out, opts.Level, opts.JSON)), closer
}

func newHandler(out io.Writer, level string, json bool) slog.Handler {
	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if json {
		return slog.NewJSONHandler(out, handlerOpts)
	}
	return slog.NewTextHandler(out, handlerOpts)
}

// ParseLevel maps a config string onto a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
