// Package logger is Bastion's process-wide diagnostic log on stderr.
//
// Debug, Info and Section trace the ingestion and retrieval pipelines and
// only print with --verbose. Warn and Error always print: they carry
// conditions an operator must see, such as encryption being disabled or
// an audit record that could not be written. Nothing here is an audit
// trail; security events go to the audit log.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// Level orders messages by severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

var levelTags = [...]string{
	LevelDebug: "DEBUG",
	LevelInfo:  "INFO",
	LevelWarn:  "WARN",
	LevelError: "ERROR",
}

func (l Level) String() string {
	if l < LevelDebug || l > LevelError {
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
	return levelTags[l]
}

var (
	mu        sync.Mutex
	threshold           = LevelWarn
	output    io.Writer = os.Stderr
)

// SetVerbose lowers the threshold to Debug, or restores it to Warn.
func SetVerbose(v bool) {
	mu.Lock()
	defer mu.Unlock()
	if v {
		threshold = LevelDebug
	} else {
		threshold = LevelWarn
	}
}

func IsVerbose() bool {
	mu.Lock()
	defer mu.Unlock()
	return threshold == LevelDebug
}

// SetOutput redirects the log. Tests pass a buffer.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	output = w
}

// Enabled reports whether messages at l are currently printed.
func Enabled(l Level) bool {
	mu.Lock()
	defer mu.Unlock()
	return l >= threshold
}

func logf(l Level, format string, args ...any) {
	mu.Lock()
	defer mu.Unlock()
	if l < threshold {
		return
	}
	fmt.Fprintf(output, "[%s] %s\n", l, fmt.Sprintf(format, args...))
}

func Debug(format string, args ...any) { logf(LevelDebug, format, args...) }
func Info(format string, args ...any) { logf(LevelInfo, format, args...) }
func Warn(format string, args ...any) { logf(LevelWarn, format, args...) }
func Error(format string, args ...any) { logf(LevelError, format, args...) }

// Section prints a stage header in verbose mode.
func Section(name string) {
	mu.Lock()
	defer mu.Unlock()
	if threshold > LevelDebug {
		return
	}
	fmt.Fprintf(output, "\n=== %s ===\n", name)
}
