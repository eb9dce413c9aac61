// Package logging is the process-wide log sink shared by every package.
//
// Code logs through log/slog. Install makes the default slog logger route
// every record through a single callback slot: either the built-in stderr
// sink or a function supplied by a foreign caller. The slot is replaced
// atomically with respect to log calls; a callback that is running holds the
// slot, so SetCallback returns only once no call into the old callback is in
// flight. A callback must therefore not call SetCallback itself.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
)

// Level is the severity passed to callbacks. The integer values are part of
// the C ABI and must not change.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarning
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarning:
		return "WARNING"
	case LevelError:
		return "ERROR"
	default:
		return fmt.Sprintf("LEVEL(%d)", int(l))
	}
}

// Callback receives one formatted log line. It is invoked synchronously on
// the goroutine (and OS thread) that produced the record.
type Callback func(level Level, message string)

var (
	mu       sync.RWMutex
	callback Callback
	sink     io.Writer = os.Stderr
	sinkMu   sync.Mutex

	minLevel    slog.LevelVar
	hasCallback atomic.Bool
)

// SetCallback installs cb as the active sink. A nil cb restores the default
// stderr sink. Messages logged before the call are not replayed.
func SetCallback(cb Callback) {
	mu.Lock()
	defer mu.Unlock()
	callback = cb
	hasCallback.Store(cb != nil)
}

// Log dispatches message to the active sink.
func Log(level Level, message string) {
	mu.RLock()
	defer mu.RUnlock()
	if callback != nil {
		callback(level, message)
		return
	}
	writeDefault(level, message)
}

// SetOutput redirects the default sink. Used by tests and the CLI.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	if w == nil {
		w = os.Stderr
	}
	sink = w
}

func writeDefault(level Level, message string) {
	sinkMu.Lock()
	defer sinkMu.Unlock()
	_, _ = fmt.Fprintf(sink, "[%s] %s\n", level, message)
}

// SetMinLevel drops slog records below level before they reach the stderr
// sink. An installed callback receives every level and filters for itself.
// Direct calls to Log are never filtered.
func SetMinLevel(level Level) {
	minLevel.Set(ToSlog(level))
}

// ToSlog maps a bridge level onto the slog scale.
func ToSlog(level Level) slog.Level {
	switch level {
	case LevelDebug:
		return slog.LevelDebug
	case LevelInfo:
		return slog.LevelInfo
	case LevelWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// FromSlog maps a slog level onto the four bridge levels.
func FromSlog(level slog.Level) Level {
	switch {
	case level < slog.LevelInfo:
		return LevelDebug
	case level < slog.LevelWarn:
		return LevelInfo
	case level < slog.LevelError:
		return LevelWarning
	default:
		return LevelError
	}
}

// LevelFromString parses a configured level name.
func LevelFromString(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarning, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// NewLogger returns a slog.Logger writing through the callback slot.
func NewLogger() *slog.Logger {
	return slog.New(&Handler{})
}

// Install makes NewLogger the slog default.
func Install() {
	slog.SetDefault(NewLogger())
}
