package events

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/TheMichaelB/scoutsync/internal/config"
)

// LogLevel represents logging severity.
type LogLevel int32

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

// sink is shared by a logger and every child derived from it.
type sink struct {
	mu     sync.Mutex
	level  atomic.Int32
	format string
	output io.Writer
	color  bool
	closer io.Closer
}

// Logger provides structured logging.
type Logger struct {
	sink     *sink
	fields   map[string]interface{}
	hostname string
}

// NewLogger creates a logger from config. A configured file is rotated by
// size and age.
func NewLogger(cfg *config.LogConfig) (*Logger, error) {
	s := &sink{format: cfg.Format}
	s.level.Store(int32(parseLevel(cfg.Level)))

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0700); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   true,
		}
		s.output = rotator
		s.closer = rotator
	} else {
		s.output = os.Stderr
		s.color = cfg.Color && isTerminal(os.Stderr)
	}

	hostname, _ := os.Hostname()

	return &Logger{
		sink:     s,
		fields:   make(map[string]interface{}),
		hostname: hostname,
	}, nil
}

// NewTestLogger creates a logger for testing.
func NewTestLogger(level LogLevel, format string, output io.Writer) *Logger {
	s := &sink{format: format, output: output}
	s.level.Store(int32(level))

	return &Logger{
		sink:     s,
		fields:   make(map[string]interface{}),
		hostname: "test-host",
	}
}

// NewNopLogger discards everything.
func NewNopLogger() *Logger {
	return NewTestLogger(ErrorLevel+1, "text", io.Discard)
}

// SetLevel changes the level of this logger and every logger sharing its
// output.
func (l *Logger) SetLevel(level string) {
	l.sink.level.Store(int32(parseLevel(level)))
}

// Level returns the current level.
func (l *Logger) Level() LogLevel {
	return LogLevel(l.sink.level.Load())
}

// Close releases a rotated log file.
func (l *Logger) Close() error {
	if l.sink.closer != nil {
		return l.sink.closer.Close()
	}
	return nil
}

// WithField returns a logger with an additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	newFields := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		newFields[k] = v
	}
	for k, v := range fields {
		newFields[k] = v
	}

	return &Logger{
		sink:     l.sink,
		fields:   newFields,
		hostname: l.hostname,
	}
}

// WithError adds an error field.
func (l *Logger) WithError(err error) *Logger {
	if err == nil {
		return l
	}
	return l.WithField("error", err.Error())
}

// Debug logs at debug level.
func (l *Logger) Debug(msg string) {
	l.log(DebugLevel, msg)
}

// Info logs at info level.
func (l *Logger) Info(msg string) {
	l.log(InfoLevel, msg)
}

// Warn logs at warn level.
func (l *Logger) Warn(msg string) {
	l.log(WarnLevel, msg)
}

// Error logs at error level.
func (l *Logger) Error(msg string) {
	l.log(ErrorLevel, msg)
}

// log writes a log entry.
func (l *Logger) log(level LogLevel, msg string) {
	if level < l.Level() {
		return
	}

	entry := l.buildEntry(level, msg)

	l.sink.mu.Lock()
	defer l.sink.mu.Unlock()

	if l.sink.format == "json" {
		l.writeJSON(entry)
	} else {
		l.writeText(entry)
	}
}

// buildEntry creates a log entry.
func (l *Logger) buildEntry(level LogLevel, msg string) map[string]interface{} {
	_, file, line, _ := runtime.Caller(3)
	if idx := strings.LastIndex(file, "/"); idx >= 0 {
		file = file[idx+1:]
	}

	entry := map[string]interface{}{
		"time":     time.Now().UTC().Format(time.RFC3339Nano),
		"level":    levelString(level),
		"msg":      msg,
		"hostname": l.hostname,
		"caller":   fmt.Sprintf("%s:%d", file, line),
	}

	for k, v := range l.fields {
		entry[k] = v
	}

	return entry
}

// writeJSON outputs one JSON object per line.
func (l *Logger) writeJSON(entry map[string]interface{}) {
	data, err := json.Marshal(entry)
	if err != nil {
		for k, v := range entry {
			entry[k] = fmt.Sprintf("%v", v)
		}
		data, _ = json.Marshal(entry)
	}
	data = append(data, '\n')
	_, _ = l.sink.output.Write(data)
}

// writeText outputs human-readable format.
func (l *Logger) writeText(entry map[string]interface{}) {
	levelStr := strings.ToUpper(entry["level"].(string))

	var levelColor, reset string
	if l.sink.color {
		reset = "\033[0m"
		switch levelStr {
		case "DEBUG":
			levelColor = "\033[36m" // Cyan
		case "INFO":
			levelColor = "\033[32m" // Green
		case "WARN":
			levelColor = "\033[33m" // Yellow
		case "ERROR":
			levelColor = "\033[31m" // Red
		}
	}

	var sb strings.Builder

	// Format: TIME [LEVEL] Message key=value key=value
	fmt.Fprintf(&sb, "%s %s[%s]%s %s",
		entry["time"],
		levelColor,
		levelStr,
		reset,
		entry["msg"],
	)

	keys := make([]string, 0, len(entry))
	for k := range entry {
		switch k {
		case "time", "level", "msg", "hostname", "caller":
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		fmt.Fprintf(&sb, " %s=%v", k, entry[k])
	}
	sb.WriteByte('\n')

	_, _ = io.WriteString(l.sink.output, sb.String())
}

// Helper functions

func parseLevel(s string) LogLevel {
	switch strings.ToLower(s) {
	case "debug":
		return DebugLevel
	case "warn":
		return WarnLevel
	case "error":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

// String returns the lower-case level name.
func (l LogLevel) String() string {
	return levelString(l)
}

func levelString(l LogLevel) string {
	switch l {
	case DebugLevel:
		return "debug"
	case InfoLevel:
		return "info"
	case WarnLevel:
		return "warn"
	case ErrorLevel:
		return "error"
	default:
		return "unknown"
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}
