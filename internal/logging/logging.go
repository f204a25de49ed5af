// Package logging sets up the file-backed slog logger. The terminal belongs to
// the TUI, so nothing is written to stdout or stderr.
package logging

import (
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Options controls where and how much is logged.
type Options struct {
	Path  string
	Level slog.Level
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
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

// Open returns a text logger appending to opts.Path and the file to close on
// shutdown. The standard library logger is pointed at the same file.
func Open(opts Options) (*slog.Logger, io.Closer, error) {
	if strings.TrimSpace(opts.Path) == "" {
		return Discard(), io.NopCloser(nil), fmt.Errorf("log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return Discard(), io.NopCloser(nil), fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return Discard(), io.NopCloser(nil), fmt.Errorf("open log file: %w", err)
	}

	logger := New(f, opts.Level)
	log.SetOutput(f)
	return logger, f, nil
}

// New builds a text logger writing to w.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
