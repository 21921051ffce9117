// Package log is the process-wide structured logger. Verbosity is set once
// from the -v flag count; everything below the chosen level is dropped before
// it reaches the slog handler.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Verbosity levels
const (
	LevelQuiet = iota // Default: errors, warnings and the final report
	LevelInfo         // -v: per-package progress and counts
	LevelDebug        // -vv: registry requests, rule decisions, commands
	LevelTrace        // -vvv: response bodies and command output
)

const slogLevelTrace = slog.Level(-8)

// Format selects the handler used for log records.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

type state struct {
	mu         sync.Mutex
	verbosity  int
	logger     *slog.Logger
	output     io.Writer
	inProgress bool
}

var std = &state{}

// Initialize sets up the global logger with the given verbosity, writing text
// records to w.
func Initialize(level int, w io.Writer) {
	InitializeWithFormat(level, w, FormatText)
}

// InitializeWithFormat is Initialize with an explicit record format.
func InitializeWithFormat(level int, w io.Writer, format Format) {
	std.mu.Lock()
	defer std.mu.Unlock()

	std.verbosity = level
	std.output = w
	std.inProgress = false

	opts := &slog.HandlerOptions{Level: slogLevel(level)}
	var handler slog.Handler
	if format == FormatJSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	std.logger = slog.New(handler)
}

func slogLevel(level int) slog.Level {
	switch {
	case level >= LevelTrace:
		return slogLevelTrace
	case level >= LevelDebug:
		return slog.LevelDebug
	case level >= LevelInfo:
		return slog.LevelInfo
	default:
		return slog.LevelWarn
	}
}

func emit(min int, level slog.Level, msg string, args ...any) {
	std.mu.Lock()
	defer std.mu.Unlock()

	if std.verbosity < min {
		return
	}
	if std.inProgress {
		_, _ = fmt.Fprintln(std.output)
		std.inProgress = false
	}
	std.logger.Log(context.Background(), level, msg, args...)
}

// Info logs at info level (-v)
func Info(msg string, args ...any) { emit(LevelInfo, slog.LevelInfo, msg, args...) }

// Debug logs at debug level (-vv)
func Debug(msg string, args ...any) { emit(LevelDebug, slog.LevelDebug, msg, args...) }

// Trace logs at trace level (-vvv)
func Trace(msg string, args ...any) { emit(LevelTrace, slogLevelTrace, msg, args...) }

// Warn is always visible.
func Warn(msg string, args ...any) { emit(LevelQuiet, slog.LevelWarn, msg, args...) }

// Error is always visible.
func Error(msg string, args ...any) { emit(LevelQuiet, slog.LevelError, msg, args...) }

// Progress writes an in-place status line. Shown at info level and above.
func Progress(format string, args ...any) {
	std.mu.Lock()
	defer std.mu.Unlock()

	if std.verbosity < LevelInfo {
		return
	}
	std.inProgress = true
	_, _ = fmt.Fprintf(std.output, "\r\033[K"+format, args...)
}

// ProgressDone terminates the current progress line.
func ProgressDone() {
	std.mu.Lock()
	defer std.mu.Unlock()

	if std.inProgress {
		_, _ = fmt.Fprintln(std.output, " done")
		std.inProgress = false
	}
}

// IsDebug returns true if debug-level logging is enabled
func IsDebug() bool { return Verbosity() >= LevelDebug }

// IsTrace returns true if trace-level logging is enabled
func IsTrace() bool { return Verbosity() >= LevelTrace }

// Verbosity returns the current verbosity level
func Verbosity() int {
	std.mu.Lock()
	defer std.mu.Unlock()
	return std.verbosity
}

func init() {
	Initialize(LevelQuiet, os.Stderr)
}
