// Package logging provides the operational logger shared by the breaker
// CLI and store wiring. Grounded on internal/logging/slog.go:
// an atomic pointer to a *slog.Logger plus a dynamic slog.LevelVar so the
// level can change at runtime without re-wiring every call site.
//
// Every breaker deployment in this module is named by two things at
// once — the CLI component driving it (status, simulate, serve-metrics)
// and the breaker.Options.Key it's acting on — so Component and ForKey
// below hand out cached, pre-tagged child loggers instead of making every
// call site repeat its own .With(...) call.
package logging

import (
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
)

var (
	opLogger atomic.Pointer[slog.Logger]
	logLevel = new(slog.LevelVar)

	componentLoggers sync.Map // string -> *slog.Logger
	keyLoggers       sync.Map // string -> *slog.Logger
)

func init() {
	logLevel.Set(slog.LevelInfo)
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})
	opLogger.Store(slog.New(handler))
}

// Op returns the shared operational logger.
func Op() *slog.Logger {
	return opLogger.Load()
}

// Component returns a logger tagged with the CLI component emitting the
// log line (e.g. "cbdemo.simulate"), caching one child logger per name so
// repeated calls for the same component don't keep allocating.
func Component(name string) *slog.Logger {
	if l, ok := componentLoggers.Load(name); ok {
		return l.(*slog.Logger)
	}
	l := Op().With("component", name)
	actual, _ := componentLoggers.LoadOrStore(name, l)
	return actual.(*slog.Logger)
}

// ForKey returns a logger tagged with the breaker key it's reporting on,
// cached the same way Component is. Engine also tags its own logger with
// "breaker_key" internally, so this is for call sites (like cmd/cbdemo)
// that log about a breaker before or outside of any Engine method call.
func ForKey(key string) *slog.Logger {
	if l, ok := keyLoggers.Load(key); ok {
		return l.(*slog.Logger)
	}
	l := Op().With("breaker_key", key)
	actual, _ := keyLoggers.LoadOrStore(key, l)
	return actual.(*slog.Logger)
}

// SetLevel changes the log level.
func SetLevel(level slog.Level) {
	logLevel.Set(level)
}

// SetLevelFromString sets the log level from a string; unrecognized
// values are ignored. Valid values: "debug", "info", "warn", "error".
func SetLevelFromString(level string) {
	switch level {
	case "debug", "DEBUG":
		logLevel.Set(slog.LevelDebug)
	case "info", "INFO":
		logLevel.Set(slog.LevelInfo)
	case "warn", "WARN", "warning", "WARNING":
		logLevel.Set(slog.LevelWarn)
	case "error", "ERROR":
		logLevel.Set(slog.LevelError)
	}
}
