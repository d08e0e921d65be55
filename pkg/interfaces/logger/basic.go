package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-flagsubmit/pkg/secrets"
)

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel accepts debug, info, warn/warning and error. Unknown input maps to info.
func ParseLevel(raw string) Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug", "trace":
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
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

// BasicLogger writes `time [LEVEL] msg key=value ...` lines. Values of
// credential keys (see secrets.SecretFields) are masked.
type BasicLogger struct {
	mu     *sync.Mutex
	out    io.Writer
	level  Level
	fields []Field
	now    func() time.Time
}

var _ Logger = (*BasicLogger)(nil)

// New returns a basic logger writing to w at the given minimum level.
func New(w io.Writer, level Level) *BasicLogger {
	if w == nil {
		w = os.Stderr
	}
	return &BasicLogger{
		mu:    &sync.Mutex{},
		out:   w,
		level: level,
		now:   time.Now,
	}
}

// Default returns a stderr logger at info level.
func Default() Logger {
	return New(os.Stderr, LevelInfo)
}

func (l *BasicLogger) With(fields ...Field) Logger {
	if len(fields) == 0 {
		return l
	}
	next := *l
	next.fields = append(append([]Field(nil), l.fields...), fields...)
	return &next
}

func (l *BasicLogger) Debug(msg string, fields ...Field) { l.log(LevelDebug, msg, fields) }
func (l *BasicLogger) Info(msg string, fields ...Field)  { l.log(LevelInfo, msg, fields) }
func (l *BasicLogger) Warn(msg string, fields ...Field)  { l.log(LevelWarn, msg, fields) }
func (l *BasicLogger) Error(msg string, fields ...Field) { l.log(LevelError, msg, fields) }

func (l *BasicLogger) log(level Level, msg string, fields []Field) {
	if level < l.level {
		return
	}
	line := fmt.Sprintf("%s [%s] %s", l.now().UTC().Format(time.RFC3339), level, msg)
	if rendered := formatFields(append(append([]Field(nil), l.fields...), fields...)); rendered != "" {
		line += " " + rendered
	}
	l.mu.Lock()
	fmt.Fprintln(l.out, line)
	l.mu.Unlock()
}

func formatFields(fields []Field) string {
	if len(fields) == 0 {
		return ""
	}
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		value := fmt.Sprint(f.Value)
		if secrets.IsSecretField(f.Key) {
			value = secrets.MaskToken(value)
		}
		if strings.ContainsAny(value, " \t\"=") {
			value = fmt.Sprintf("%q", value)
		}
		parts = append(parts, f.Key+"="+value)
	}
	return strings.Join(parts, " ")
}
