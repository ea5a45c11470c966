// Package logging builds the structured logger used by the CLI: a console
// handler on stderr plus an optional JSON log file.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"
)

// Options configures New
type Options struct {
	Level  string // debug, info, warn, error
	Format string // auto, text, json
	LogDir string // empty disables the log file
	Stderr *os.File
	Now    func() time.Time
}

// New returns a logger and a close func for the log file. With Format
// "auto", stderr gets text output when it is a terminal and JSON otherwise.
// The log file always receives JSON at debug level.
func New(opts Options) (*slog.Logger, func() error, error) {
	level, err := ParseLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	console := consoleHandler(stderr, opts.Format, level)
	if opts.LogDir == "" {
		return slog.New(console), func() error { return nil }, nil
	}

	if err := os.MkdirAll(opts.LogDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("creating log dir: %w", err)
	}
	path := filepath.Join(opts.LogDir, fmt.Sprintf("label-bulk_%s.log", now().Format("20060102_150405")))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	fileHandler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})

	return slog.New(fanoutHandler{console, fileHandler}), file.Close, nil
}

func consoleHandler(w *os.File, format string, level slog.Level) slog.Handler {
	options := &slog.HandlerOptions{Level: level}
	var out io.Writer = w
	switch format {
	case "text":
		return slog.NewTextHandler(out, options)
	case "json":
		return slog.NewJSONHandler(out, options)
	}
	if term.IsTerminal(int(w.Fd())) {
		return slog.NewTextHandler(out, options)
	}
	return slog.NewJSONHandler(out, options)
}

// ParseLevel maps a config level name to a slog.Level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", s)
	}
}

// fanoutHandler sends each record to every handler that accepts its level
type fanoutHandler []slog.Handler

func (handlers fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (handlers fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, handler := range handlers {
		if handler.Enabled(ctx, record.Level) {
			if err := handler.Handle(ctx, record.Clone()); err != nil {
				return err
			}
		}
	}
	return nil
}

func (handlers fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	derived := make(fanoutHandler, len(handlers))
	for index, handler := range handlers {
		derived[index] = handler.WithAttrs(attrs)
	}
	return derived
}

func (handlers fanoutHandler) WithGroup(name string) slog.Handler {
	derived := make(fanoutHandler, len(handlers))
	for index, handler := range handlers {
		derived[index] = handler.WithGroup(name)
	}
	return derived
}
