// Package logging provides global logging functions for voxpaste.
// Use dot import to access L_info, L_error, etc. directly.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
)

// Log levels
const (
	LevelFatal = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
	LevelTrace
)

var (
	logger *log.Logger
	mu     sync.Mutex
)

// Options holds logging configuration
type Options struct {
	Level      int
	TimeFormat string
	ShowCaller bool
	Output     io.Writer // defaults to stderr
}

// DefaultOptions returns sensible defaults
func DefaultOptions() *Options {
	return &Options{
		Level:      LevelInfo,
		TimeFormat: "15:04:05.000",
		ShowCaller: false,
	}
}

// ParseLevel maps a config string ("debug", "warn", ...) to a level constant.
// Unknown strings map to LevelInfo.
func ParseLevel(s string) int {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return LevelTrace
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	case "fatal":
		return LevelFatal
	default:
		return LevelInfo
	}
}

// Init (re)initializes the global logger.
func Init(cfg *Options) {
	if cfg == nil {
		cfg = DefaultOptions()
	}
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	l := log.NewWithOptions(out, log.Options{
		ReportTimestamp: true,
		TimeFormat:      cfg.TimeFormat,
		ReportCaller:    cfg.ShowCaller,
		CallerOffset:    2, // Skip two frames (logMsg -> L_* -> caller)
	})
	l.SetLevel(charmLevel(cfg.Level))

	mu.Lock()
	logger = l
	mu.Unlock()
}

func charmLevel(level int) log.Level {
	switch level {
	case LevelTrace, LevelDebug:
		return log.DebugLevel
	case LevelWarn:
		return log.WarnLevel
	case LevelError, LevelFatal:
		return log.ErrorLevel
	default:
		return log.InfoLevel
	}
}

func current() *log.Logger {
	mu.Lock()
	defer mu.Unlock()
	if logger == nil {
		mu.Unlock()
		Init(nil)
		mu.Lock()
	}
	return logger
}

// logMsg logs msg with structured key/value pairs:
//
//	L_info("stt: loaded", "model", id, "elapsed", d)
func logMsg(level log.Level, msg string, keyvals ...interface{}) {
	l := current()
	switch level {
	case log.DebugLevel:
		l.Debug(msg, keyvals...)
	case log.InfoLevel:
		l.Info(msg, keyvals...)
	case log.WarnLevel:
		l.Warn(msg, keyvals...)
	case log.ErrorLevel:
		l.Error(msg, keyvals...)
	case log.FatalLevel:
		l.Fatal(msg, keyvals...)
	}
}

// L_trace logs at trace level (mapped to debug)
func L_trace(msg string, keyvals ...interface{}) {
	logMsg(log.DebugLevel, msg, keyvals...)
}

// L_debug logs at debug level
func L_debug(msg string, keyvals ...interface{}) {
	logMsg(log.DebugLevel, msg, keyvals...)
}

// L_info logs at info level
func L_info(msg string, keyvals ...interface{}) {
	logMsg(log.InfoLevel, msg, keyvals...)
}

// L_warn logs at warn level
func L_warn(msg string, keyvals ...interface{}) {
	logMsg(log.WarnLevel, msg, keyvals...)
}

// L_error logs at error level
func L_error(msg string, keyvals ...interface{}) {
	logMsg(log.ErrorLevel, msg, keyvals...)
}

// L_fatal logs at fatal level and exits
func L_fatal(msg string, keyvals ...interface{}) {
	logMsg(log.FatalLevel, msg, keyvals...)
}

// L_debugf logs a printf-style message at debug level.
func L_debugf(format string, args ...interface{}) {
	logMsg(log.DebugLevel, fmt.Sprintf(format, args...))
}

// L_infof logs a printf-style message at info level.
func L_infof(format string, args ...interface{}) {
	logMsg(log.InfoLevel, fmt.Sprintf(format, args...))
}

// L_warnf logs a printf-style message at warn level.
func L_warnf(format string, args ...interface{}) {
	logMsg(log.WarnLevel, fmt.Sprintf(format, args...))
}

// L_errorf logs a printf-style message at error level.
func L_errorf(format string, args ...interface{}) {
	logMsg(log.ErrorLevel, fmt.Sprintf(format, args...))
}

// SetLevel changes the log level at runtime
func SetLevel(level int) {
	current().SetLevel(charmLevel(level))
}

// L_elapsed logs at debug level with the elapsed time since start appended.
func L_elapsed(start time.Time, msg string, keyvals ...interface{}) {
	keyvals = append(keyvals, "elapsed", time.Since(start).Round(time.Millisecond).String())
	logMsg(log.DebugLevel, msg, keyvals...)
}
