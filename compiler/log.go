package compiler

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// LogLevel is the severity of a log line.
type LogLevel int

const (
	LevelError LogLevel = iota
	LevelWarn
	LevelInfo
	LevelDebug
)

func (l LogLevel) String() string {
	switch l {
	case LevelError:
		return "ERROR"
	case LevelWarn:
		return "WARN"
	case LevelInfo:
		return "INFO"
	case LevelDebug:
		return "DEBUG"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel parses a level name. Unknown names give LevelWarn.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToUpper(s) {
	case "ERROR":
		return LevelError
	case "WARN", "WARNING":
		return LevelWarn
	case "INFO":
		return LevelInfo
	case "DEBUG":
		return LevelDebug
	default:
		return LevelWarn
	}
}

// Logger is the interface the compiler logs through.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	// With returns a child logger that adds fields to every line.
	With(fields map[string]any) Logger
}

// textFormatter writes one line per entry:
// [LEVEL] ts msg key1=val1 key2=val2 ...
type textFormatter struct {
	includeTimestamp bool
}

func (f *textFormatter) format(ts time.Time, level LogLevel, msg string, fields map[string]any) []byte {
	var b strings.Builder
	b.Grow(128)

	b.WriteByte('[')
	b.WriteString(level.String())
	b.WriteString("] ")
	if f.includeTimestamp {
		b.WriteString(ts.UTC().Format(time.RFC3339Nano))
		b.WriteByte(' ')
	}
	b.WriteString(msg)

	if len(fields) > 0 {
		keys := make([]string, 0, len(fields))
		for k := range fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			b.WriteByte(' ')
			b.WriteString(k)
			b.WriteByte('=')
			b.WriteString(safeSprint(fields[k]))
		}
	}
	b.WriteByte('\n')
	return []byte(b.String())
}

func safeSprint(v any) string {
	switch t := v.(type) {
	case string:
		if strings.IndexFunc(t, func(r rune) bool { return r <= ' ' }) >= 0 {
			return fmt.Sprintf("%q", t)
		}
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(v)
	}
}

type textLogger struct {
	out       io.Writer
	level     LogLevel
	formatter *textFormatter
	fields    map[string]any
	mu        *sync.Mutex
}

// NewLogger returns a logger writing lines at or above level to w, or to
// os.Stderr if w is nil.
func NewLogger(level LogLevel, w io.Writer) Logger {
	return newTextLogger(level, w, true)
}

func newTextLogger(level LogLevel, w io.Writer, timestamps bool) *textLogger {
	if w == nil {
		w = os.Stderr
	}
	return &textLogger{
		out:       w,
		level:     level,
		formatter: &textFormatter{includeTimestamp: timestamps},
		fields:    make(map[string]any),
		mu:        &sync.Mutex{},
	}
}

func (l *textLogger) enabled(level LogLevel) bool { return level <= l.level }

func (l *textLogger) With(fields map[string]any) Logger {
	if len(fields) == 0 {
		return l
	}
	merged := make(map[string]any, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	child := *l
	child.fields = merged
	return &child
}

func (l *textLogger) Debugf(format string, args ...any) { l.logf(LevelDebug, format, args...) }
func (l *textLogger) Infof(format string, args ...any)  { l.logf(LevelInfo, format, args...) }
func (l *textLogger) Warnf(format string, args ...any)  { l.logf(LevelWarn, format, args...) }
func (l *textLogger) Errorf(format string, args ...any) { l.logf(LevelError, format, args...) }

func (l *textLogger) logf(level LogLevel, format string, args ...any) {
	if !l.enabled(level) {
		return
	}
	line := l.formatter.format(time.Now(), level, fmt.Sprintf(format, args...), l.fields)
	l.mu.Lock()
	defer l.mu.Unlock()
	_, _ = l.out.Write(line)
}

type noopLogger struct{}

func (noopLogger) Debugf(string, ...any)        {}
func (noopLogger) Infof(string, ...any)         {}
func (noopLogger) Warnf(string, ...any)         {}
func (noopLogger) Errorf(string, ...any)        {}
func (l noopLogger) With(map[string]any) Logger { return l }

// NopLogger returns a logger that discards everything.
func NopLogger() Logger { return noopLogger{} }
