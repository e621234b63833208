// Package logging builds the slog logger shared by rollguard components.
//
// Records go to stderr as text (or JSON) and, when a log directory is
// configured, additionally to a daily JSON file named
// rollguard_YYYY-MM-DD.log inside it.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config configures New
type Config struct {
	Level  string // debug, info, warn, error
	Dir    string // "" disables file output
	JSON   bool
	Quiet  bool // drop stderr output
	Stderr io.Writer
}

// Logger wraps slog.Logger with the file it may own
type Logger struct {
	*slog.Logger
	file *os.File
}

// New creates a logger. Close must be called to release the log file.
func New(cfg Config) (*Logger, error) {
	level := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler
	if !cfg.Quiet {
		w := cfg.Stderr
		if w == nil {
			w = os.Stderr
		}
		if cfg.JSON {
			handlers = append(handlers, slog.NewJSONHandler(w, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(w, opts))
		}
	}

	var file *os.File
	if cfg.Dir != "" {
		if err := os.MkdirAll(cfg.Dir, 0750); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		name := fmt.Sprintf("rollguard_%s.log", time.Now().Format("2006-01-02"))
		f, err := os.OpenFile(filepath.Join(cfg.Dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0640)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		handlers = append(handlers, slog.NewJSONHandler(f, opts))
	}

	var h slog.Handler
	switch len(handlers) {
	case 0:
		h = slog.NewTextHandler(io.Discard, opts)
	case 1:
		h = handlers[0]
	default:
		h = fanout(handlers)
	}

	return &Logger{Logger: slog.New(h), file: file}, nil
}

// Close closes the log file, if any
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// Discard returns a logger that drops everything, for tests
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a level name to slog.Level, defaulting to info
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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

// fanout sends each record to every handler
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			if err := h.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
