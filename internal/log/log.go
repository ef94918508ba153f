// Package log provides leveled, category-tagged logging.
//
// A Logger is an ordinary value: the Session holds one, the CLI creates one
// from --debug, and tests pass Discard(). Every entry written is also
// published to listeners so a terminal can follow the log live.
package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/fsync/internal/pubsub"
)

// Level represents log severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a config string to a Level. Unknown names return LevelDebug.
func ParseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "info":
		return LevelInfo
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelDebug
	}
}

// Category groups related log messages.
type Category string

const (
	CatSession Category = "session" // Session lifecycle and commands
	CatProcess Category = "process" // Engine process supervision
	CatXML     Category = "xmllog"  // XML log stream reading
	CatConfig  Category = "config"  // Configuration loading/saving
	CatWatcher Category = "watcher" // File watcher events
	CatCache   Category = "cache"   // Cache operations
	CatHistory Category = "history" // Transfer history database
	CatSync    Category = "fsync"   // Folder pair synchronization
)

// Logger writes formatted entries and fans them out to listeners.
// A nil *Logger is valid and discards everything.
type Logger struct {
	mu       sync.Mutex
	file     *os.File
	writer   io.Writer
	enabled  bool
	minLevel Level
	broker   *pubsub.Broker[string]
	now      func() time.Time
}

// New creates a logger writing to w.
func New(w io.Writer) *Logger {
	return &Logger{
		writer:   w,
		enabled:  true,
		minLevel: LevelDebug,
		broker:   pubsub.NewBroker[string](),
		now:      time.Now,
	}
}

// Open creates a logger appending to the file at path.
func Open(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec // G304: user supplied debug log path
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}
	l := New(f)
	l.file = f
	return l, nil
}

// Discard returns a logger that drops every entry.
func Discard() *Logger {
	l := New(io.Discard)
	l.enabled = false
	return l
}

// Close releases the log file (if any) and closes all listeners.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	l.broker.Close()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	l.writer = io.Discard
	return err
}

// SetEnabled toggles logging on/off.
func (l *Logger) SetEnabled(enabled bool) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.enabled = enabled
	l.mu.Unlock()
}

// SetMinLevel sets the minimum level that is written.
func (l *Logger) SetMinLevel(level Level) {
	if l == nil {
		return
	}
	l.mu.Lock()
	l.minLevel = level
	l.mu.Unlock()
}

// Debug logs at debug level.
func (l *Logger) Debug(cat Category, msg string, fields ...any) {
	l.log(LevelDebug, cat, msg, fields...)
}

// Info logs at info level.
func (l *Logger) Info(cat Category, msg string, fields ...any) {
	l.log(LevelInfo, cat, msg, fields...)
}

// Warn logs at warning level.
func (l *Logger) Warn(cat Category, msg string, fields ...any) {
	l.log(LevelWarn, cat, msg, fields...)
}

// Error logs at error level.
func (l *Logger) Error(cat Category, msg string, fields ...any) {
	l.log(LevelError, cat, msg, fields...)
}

// ErrorErr logs an error with the error value.
func (l *Logger) ErrorErr(cat Category, msg string, err error, fields ...any) {
	if err != nil {
		fields = append(fields, "error", err.Error())
	} else {
		fields = append(fields, "error", "<nil>")
	}
	l.log(LevelError, cat, msg, fields...)
}

// Listen subscribes to formatted entries of the given categories, or of all
// categories when none are given, until ctx is done.
func (l *Logger) Listen(ctx context.Context, cats ...Category) <-chan pubsub.Event[string] {
	if l == nil {
		ch := make(chan pubsub.Event[string])
		close(ch)
		return ch
	}
	topics := make([]pubsub.Topic, len(cats))
	for i, c := range cats {
		topics[i] = pubsub.Topic(c)
	}
	return l.broker.Subscribe(ctx, topics...)
}

func (l *Logger) log(level Level, cat Category, msg string, fields ...any) {
	if l == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.enabled || level < l.minLevel {
		return
	}

	entry := format(l.now(), level, cat, msg, fields...)
	if l.writer != nil {
		_, _ = io.WriteString(l.writer, entry)
	}
	l.broker.Publish(pubsub.Topic(cat), entry)
}

// format renders one entry:
// 2025-12-06T10:45:00 [ERROR] [session] message key=value key2=value2
func format(ts time.Time, level Level, cat Category, msg string, fields ...any) string {
	var b strings.Builder
	b.WriteString(ts.Format("2006-01-02T15:04:05"))
	fmt.Fprintf(&b, " [%s] [%s] %s", level, cat, msg)

	for i := 0; i+1 < len(fields); i += 2 {
		fmt.Fprintf(&b, " %v=%v", fields[i], fields[i+1])
	}
	if len(fields)%2 != 0 {
		fmt.Fprintf(&b, " %v=<missing>", fields[len(fields)-1])
	}
	b.WriteByte('\n')
	return b.String()
}
