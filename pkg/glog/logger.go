// Package glog is the gateway's structured logging facade. It wraps
// log/slog (via toolhive-core/logging) behind a package-level singleton so
// every component logs the same way without threading a logger through
// every constructor.
package glog

import (
	"fmt"
	"log/slog"
	"strconv"
	"sync/atomic"

	"github.com/go-logr/logr"
	"github.com/stacklok/toolhive-core/env"
	"github.com/stacklok/toolhive-core/logging"
)

var singleton atomic.Pointer[slog.Logger]

func init() {
	singleton.Store(logging.New())
}

// Initialize sets the singleton logger's level from the process
// environment's LOG_LEVEL (see InitializeWithEnv for UNSTRUCTURED_LOGS).
// Call once at process startup.
func Initialize() {
	InitializeWithEnv(env.OSReader{})
}

// InitializeWithEnv is Initialize with an injectable environment reader,
// for tests. UNSTRUCTURED_LOGS is read for parity with the env-driven
// config surface; format selection itself is left to the logging
// backend's own defaults, which favor unstructured output for local runs.
func InitializeWithEnv(r env.Reader) {
	_ = unstructuredLogsWithEnv(r)
	singleton.Store(logging.New(logging.WithLevel(levelFromEnv(r))))
}

func levelFromEnv(r env.Reader) slog.Level {
	switch r.Getenv("LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func unstructuredLogsWithEnv(r env.Reader) bool {
	v := r.Getenv("UNSTRUCTURED_LOGS")
	if v == "" {
		return true
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return b
}

// Get returns the current singleton logger.
func Get() *slog.Logger {
	return singleton.Load()
}

// NewLogr adapts the singleton to a logr.Logger for collaborators that
// expect that interface.
func NewLogr() logr.Logger {
	return logr.FromSlogHandler(Get().Handler())
}

func Debug(msg string, args ...any)  { Get().Debug(msg, args...) }
func Info(msg string, args ...any)   { Get().Info(msg, args...) }
func Warn(msg string, args ...any)   { Get().Warn(msg, args...) }
func Error(msg string, args ...any)  { Get().Error(msg, args...) }

func Debugf(format string, args ...any) { Get().Debug(sprintf(format, args...)) }
func Infof(format string, args ...any)  { Get().Info(sprintf(format, args...)) }
func Warnf(format string, args ...any)  { Get().Warn(sprintf(format, args...)) }
func Errorf(format string, args ...any) { Get().Error(sprintf(format, args...)) }

func Debugw(msg string, kv ...any) { Get().Debug(msg, kv...) }
func Infow(msg string, kv ...any)  { Get().Info(msg, kv...) }
func Warnw(msg string, kv ...any)  { Get().Warn(msg, kv...) }
func Errorw(msg string, kv ...any) { Get().Error(msg, kv...) }

// Panic logs at error level then panics with msg. Used for invariant
// violations that must stop the process rather than limp along.
func Panic(msg string, args ...any) {
	Get().Error(msg, args...)
	panic(msg)
}

func Panicf(format string, args ...any) {
	msg := sprintf(format, args...)
	Get().Error(msg)
	panic(msg)
}

func Panicw(msg string, kv ...any) {
	Get().Error(msg, kv...)
	panic(msg)
}

func sprintf(format string, args ...any) string {
	if len(args) == 0 {
		return format
	}
	return fmt.Sprintf(format, args...)
}
