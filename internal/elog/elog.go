// Package elog is Embranch's ambient logging layer: leveled, env-gated
// output in the style of the teacher's internal/debug package, extended
// with level filtering and an optional log file target so the server can
// run headless under an MCP client without polluting stdout (which
// carries the tool protocol).
package elog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func ParseLevel(s string) Level {
	switch s {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

var (
	mu      sync.Mutex
	enabled = os.Getenv("ENABLE_LOGGING") != "false" && os.Getenv("ENABLE_LOGGING") != "0"
	level   = ParseLevel(os.Getenv("LOG_LEVEL"))
	out     io.Writer = os.Stderr
)

// Configure sets the logger up from explicit values, taking precedence
// over the environment (flags > env per the config precedence in
// internal/econfig).
func Configure(enable bool, lvl Level, logFile string) {
	mu.Lock()
	defer mu.Unlock()
	enabled = enable
	level = lvl
	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
		if err == nil {
			out = f
		}
	}
}

func Enabled() bool { return enabled }

func log(lvl Level, format string, args ...any) {
	if !enabled || lvl < level {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	ts := time.Now().UTC().Format(time.RFC3339)
	fmt.Fprintf(out, "%s [%s] %s\n", ts, lvl, fmt.Sprintf(format, args...))
}

func Debugf(format string, args ...any) { log(LevelDebug, format, args...) }
func Infof(format string, args ...any)  { log(LevelInfo, format, args...) }
func Warnf(format string, args ...any)  { log(LevelWarn, format, args...) }
func Errorf(format string, args ...any) { log(LevelError, format, args...) }
