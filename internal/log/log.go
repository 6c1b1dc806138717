package log

import (
	"fmt"
	"io"
	stdlog "log"
	"os"
	"strings"
	"sync"
	"time"
)

type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

var (
	logger     *stdlog.Logger
	loggerOnce sync.Once
	mu         sync.RWMutex
	minLevel   = LevelInfo
)

// Logger is the diagnostic capability handed to the expansion engines.
// kv is a flat list of key/value pairs.
type Logger interface {
	Debug(msg string, kv ...any)
	Info(msg string, kv ...any)
	Warn(msg string, kv ...any)
	Error(msg string, err error, kv ...any)
}

// initLogger initializes the global logger to write to stderr with timestamps.
func initLogger() {
	loggerOnce.Do(func() {
		logger = stdlog.New(os.Stderr, "", stdlog.LstdFlags|stdlog.Lmicroseconds)
	})
}

func SetLevel(l Level) {
	initLogger()
	mu.Lock()
	minLevel = l
	mu.Unlock()
}

// SetOutput redirects the global logger, e.g. to a file or io.Discard.
func SetOutput(w io.Writer) {
	initLogger()
	logger.SetOutput(w)
}

// ParseLevel maps a config value such as "debug" or "WARN" to a Level.
func ParseLevel(s string) (Level, error) {
	switch Level(strings.ToUpper(strings.TrimSpace(s))) {
	case LevelDebug:
		return LevelDebug, nil
	case LevelInfo, "":
		return LevelInfo, nil
	case LevelWarn, "WARNING":
		return LevelWarn, nil
	case LevelError:
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func Debug(msg string, kv ...any) {
	logWithLevel(LevelDebug, msg, kv...)
}

func Info(msg string, kv ...any) {
	logWithLevel(LevelInfo, msg, kv...)
}

func Warn(msg string, kv ...any) {
	logWithLevel(LevelWarn, msg, kv...)
}

func Error(msg string, err error, kv ...any) {
	// Prepend error into key-value list.
	extended := append([]any{"err", err}, kv...)
	logWithLevel(LevelError, msg, extended...)
}

// Default returns a Logger backed by the package-level functions.
func Default() Logger {
	return globalLogger{}
}

// Discard returns a Logger that drops everything.
func Discard() Logger {
	return discardLogger{}
}

// With returns a Logger that appends kv to every line it writes.
func With(l Logger, kv ...any) Logger {
	if len(kv) == 0 {
		return l
	}
	return prefixedLogger{next: l, kv: kv}
}

type globalLogger struct{}

func (globalLogger) Debug(msg string, kv ...any)            { Debug(msg, kv...) }
func (globalLogger) Info(msg string, kv ...any)             { Info(msg, kv...) }
func (globalLogger) Warn(msg string, kv ...any)             { Warn(msg, kv...) }
func (globalLogger) Error(msg string, err error, kv ...any) { Error(msg, err, kv...) }

type discardLogger struct{}

func (discardLogger) Debug(string, ...any)        {}
func (discardLogger) Info(string, ...any)         {}
func (discardLogger) Warn(string, ...any)         {}
func (discardLogger) Error(string, error, ...any) {}

type prefixedLogger struct {
	next Logger
	kv   []any
}

func (p prefixedLogger) merge(kv []any) []any {
	out := make([]any, 0, len(kv)+len(p.kv))
	out = append(out, kv...)
	return append(out, p.kv...)
}

func (p prefixedLogger) Debug(msg string, kv ...any) { p.next.Debug(msg, p.merge(kv)...) }
func (p prefixedLogger) Info(msg string, kv ...any)  { p.next.Info(msg, p.merge(kv)...) }
func (p prefixedLogger) Warn(msg string, kv ...any)  { p.next.Warn(msg, p.merge(kv)...) }
func (p prefixedLogger) Error(msg string, err error, kv ...any) {
	p.next.Error(msg, err, p.merge(kv)...)
}

func logWithLevel(level Level, msg string, kv ...any) {
	initLogger()
	if !enabled(level) {
		return
	}
	logger.Println(formatLine(time.Now(), level, msg, kv...))
}

// formatLine renders
// 2025-01-01T00:00:00Z [LEVEL] msg key=value ...
func formatLine(ts time.Time, level Level, msg string, kv ...any) string {
	line := ts.Format(time.RFC3339Nano) + " [" + string(level) + "] " + msg
	if len(kv) > 0 {
		line += formatKVs(kv...)
	}
	return line
}

func enabled(level Level) bool {
	mu.RLock()
	floor := minLevel
	mu.RUnlock()
	return rank(level) >= rank(floor)
}

func rank(l Level) int {
	switch l {
	case LevelDebug:
		return 0
	case LevelInfo:
		return 1
	case LevelWarn:
		return 2
	case LevelError:
		return 3
	default:
		return 0
	}
}

func formatKVs(kv ...any) string {
	var b strings.Builder
	// Expect kv as pairs: key, value, key, value, ...
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			continue
		}
		b.WriteString(" ")
		b.WriteString(key)
		b.WriteString("=")
		b.WriteString(safeSprint(kv[i+1]))
	}
	// If odd number of args, last one is ignored.
	return b.String()
}

func safeSprint(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format(time.RFC3339)
	case nil:
		return "<nil>"
	}
	return fmt.Sprint(v)
}
