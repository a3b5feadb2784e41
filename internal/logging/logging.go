// Package logging configures the process-wide slog logger the teacher's
// cmd/consumption/main.go already uses, adding the rotation the unraid
// agent's daemon applies to its own log file and, in console mode, the
// zerolog.ConsoleWriter formatter rcourtman-Pulse uses for readable
// foreground output. Only cmd/nemb installs and uses this logger; the
// library packages under pkg/ do not log.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config controls where and how the logger writes.
type Config struct {
	// Level is one of "debug", "info", "warn", "error". Defaults to "info".
	Level string

	// FilePath, if set, routes output through a rotating file writer
	// instead of stderr alone.
	FilePath string

	// MaxSizeMB is the rotation threshold passed to lumberjack.
	MaxSizeMB int

	// MaxAgeDays is how long rotated backups are kept.
	MaxAgeDays int

	// MaxBackups caps the number of retained rotated files.
	MaxBackups int

	// Console, when true, formats output for a human reading a
	// foreground terminal instead of emitting raw JSON lines.
	Console bool
}

// New builds the process's *slog.Logger per cfg. It never fails; a bad
// FilePath degrades to stderr-only rather than taking down the
// measurement the caller actually wants.
func New(cfg Config) *slog.Logger {
	level := parseLevel(cfg.Level)

	var writers []io.Writer
	if cfg.FilePath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.FilePath), 0o755); err == nil {
			writers = append(writers, &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    nonZero(cfg.MaxSizeMB, 10),
				MaxAge:     nonZero(cfg.MaxAgeDays, 7),
				MaxBackups: nonZero(cfg.MaxBackups, 3),
				Compress:   true,
			})
		}
	}

	var console io.Writer = os.Stderr
	if cfg.Console {
		// ConsoleWriter reformats the JSON lines slog emits into the
		// aligned, colorized layout Pulse's agents print in the
		// foreground; it does not require a zerolog.Logger to front it.
		// slog.JSONHandler names the message field "msg", not zerolog's
		// default "message", so ConsoleWriter would otherwise print every
		// line with a blank message.
		zerolog.MessageFieldName = "msg"
		console = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	}
	writers = append(writers, console)

	var out io.Writer = console
	if len(writers) > 1 {
		out = io.MultiWriter(writers...)
	}

	handler := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	return slog.New(handler).With("component", "nemb")
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

func nonZero(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
