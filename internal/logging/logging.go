// Package logging builds the process logger: slog text output on stdout,
// optionally mirrored to a size-rotated file.
package logging

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures New.
type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Logger bundles the slog logger with its level, so the level can be set
// after the config file has been read.
type Logger struct {
	*slog.Logger
	Level *slog.LevelVar

	file *lumberjack.Logger
}

// New writes to stdout, plus opts.File when set. An unknown level falls back
// to info.
func New(stdout io.Writer, opts Options) *Logger {
	if stdout == nil {
		stdout = os.Stdout
	}
	l := &Logger{Level: new(slog.LevelVar)}
	_ = l.Level.UnmarshalText([]byte(opts.Level))

	out := stdout
	if opts.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		}
		out = io.MultiWriter(stdout, l.file)
	}
	l.Logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: l.Level}))
	return l
}

// Close releases the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
