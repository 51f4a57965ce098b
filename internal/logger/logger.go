// Package logger holds the process-wide structured logger used by the
// allocator's slow paths (initialization, growth, span traffic).
package logger

import (
	"io"
	"log/slog"
	"os"
)

// EnvVar enables debug logging to stderr when set to any non-empty value.
const EnvVar = "XFERCACHE_LOG"

// L is the global logger instance. It discards all output unless EnvVar is
// set or Init enables it.
var L = defaultLogger()

// Verbose reports whether per-event slow-path logging was requested through
// EnvVar. Callers check it before building log attributes so the disabled
// case costs one branch.
var Verbose = os.Getenv(EnvVar) != ""

// Options configures the logger.
type Options struct {
	Enabled bool       // If false, all logging is discarded
	Writer  io.Writer  // Destination. Default: os.Stderr
	Path    string     // If set, append to this file instead of Writer
	Level   slog.Level // Minimum level. Default: LevelInfo
	JSON    bool       // JSON handler instead of text
}

// Init configures logging. The returned close function releases the log
// file when Path was used and is always safe to call.
func Init(opts Options) (func() error, error) {
	noop := func() error { return nil }
	if !opts.Enabled {
		L = slog.New(slog.DiscardHandler)
		return noop, nil
	}

	w := opts.Writer
	closeFn := noop
	if opts.Path != "" {
		f, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return noop, err
		}
		w = f
		closeFn = f.Close
	}
	if w == nil {
		w = os.Stderr
	}

	hopts := &slog.HandlerOptions{Level: opts.Level}
	if opts.JSON {
		L = slog.New(slog.NewJSONHandler(w, hopts))
	} else {
		L = slog.New(slog.NewTextHandler(w, hopts))
	}
	Verbose = Verbose || opts.Level <= slog.LevelDebug
	return closeFn, nil
}

func defaultLogger() *slog.Logger {
	if os.Getenv(EnvVar) == "" {
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// Debug logs a debug message with optional key-value pairs.
func Debug(msg string, args ...any) { L.Debug(msg, args...) }

// Info logs an info message with optional key-value pairs.
func Info(msg string, args ...any) { L.Info(msg, args...) }

// Warn logs a warning message with optional key-value pairs.
func Warn(msg string, args ...any) { L.Warn(msg, args...) }

// Error logs an error message with optional key-value pairs.
func Error(msg string, args ...any) { L.Error(msg, args...) }
