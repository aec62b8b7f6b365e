// Package log provides the small structured-logging abstraction used across
// the sandbox packages.
//
// Sandbox setup is a privileged, short-lived process: stdout belongs to the
// child being launched, so diagnostics only ever go to stderr. The Logger
// interface keeps callers decoupled from that destination so tests can
// capture output instead.
package log

import (
	"fmt"
	"os"

	"github.com/google/uuid"
)

// Logger is a minimal interface for components that need to report
// progress or diagnostics without depending on a specific output format.
//
// This mirrors the shape a reusable library needs: CLI tools log to
// stderr, tests capture into memory, and nothing in between has to know
// which.
type Logger interface {
	Info(format string, args ...any)
	Debug(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// NoOpLogger discards all messages. Useful when a caller has not wired a
// logger and silence is the correct default.
type NoOpLogger struct{}

func (NoOpLogger) Info(format string, args ...any)  {}
func (NoOpLogger) Debug(format string, args ...any) {}
func (NoOpLogger) Warn(format string, args ...any)  {}
func (NoOpLogger) Error(format string, args ...any) {}

// StderrLogger writes leveled, tagged lines to stderr.
//
// Every StderrLogger carries a correlation id generated once per process
// (a v4 UUID) so that concurrent sandbox invocations logging to the same
// terminal or journal can be told apart.
type StderrLogger struct {
	id string
}

// NewStderrLogger creates a StderrLogger with a fresh correlation id.
func NewStderrLogger() *StderrLogger {
	return &StderrLogger{id: uuid.NewString()}
}

// ID returns this logger's correlation id.
func (l *StderrLogger) ID() string {
	return l.id
}

func (l *StderrLogger) write(level, format string, args ...any) {
	fmt.Fprintf(os.Stderr, "[%s] sandbox[%s]: %s\n", level, l.id, fmt.Sprintf(format, args...))
}

func (l *StderrLogger) Info(format string, args ...any)  { l.write("INFO", format, args...) }
func (l *StderrLogger) Debug(format string, args ...any) { l.write("DEBUG", format, args...) }
func (l *StderrLogger) Warn(format string, args ...any)  { l.write("WARN", format, args...) }
func (l *StderrLogger) Error(format string, args ...any) { l.write("ERROR", format, args...) }

// Fatal prints "<context>: <err>" to stderr, the exact format spec.md §7
// requires for setup errors, independent of the structured logger above.
func Fatal(context string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %s\n", context, err)
}
