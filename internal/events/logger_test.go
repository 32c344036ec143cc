package events_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TheMichaelB/scoutsync/internal/config"
	"github.com/TheMichaelB/scoutsync/internal/events"
)

func TestNewLogger(t *testing.T) {
	cfg := &config.LogConfig{
		Level:  "debug",
		Format: "json",
		File:   "",
	}

	logger, err := events.NewLogger(cfg)
	require.NoError(t, err)
	assert.NotNil(t, logger)
	assert.Equal(t, events.DebugLevel, logger.Level())
}

func TestNewLoggerRotatingFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "scoutsync.log")
	cfg := &config.LogConfig{
		Level:      "info",
		Format:     "json",
		File:       logPath,
		MaxSize:    1,
		MaxBackups: 1,
		MaxAge:     1,
	}

	logger, err := events.NewLogger(cfg)
	require.NoError(t, err)

	logger.WithField("record_id", "match_1").Info("saved")
	require.NoError(t, logger.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"record_id":"match_1"`)
}

func TestLoggerWithField(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.InfoLevel, "json", &buf)

	logger.WithField("test_key", "test_value").Info("test message")

	output := buf.String()
	assert.Contains(t, output, `"test_key":"test_value"`)
	assert.Contains(t, output, `"msg":"test message"`)
	assert.Contains(t, output, `"level":"info"`)
}

func TestLoggerWithFields(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.InfoLevel, "json", &buf)

	fields := map[string]interface{}{
		"record_id": "pit_971_1",
		"pending":   3,
	}

	logger.WithFields(fields).Info("multi-field test")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "pit_971_1", entry["record_id"])
	assert.Equal(t, float64(3), entry["pending"])
	assert.Equal(t, "multi-field test", entry["msg"])
}

func TestLoggerChildDoesNotLeakFields(t *testing.T) {
	var buf bytes.Buffer
	parent := events.NewTestLogger(events.InfoLevel, "json", &buf)

	_ = parent.WithField("component", "reconciler")
	parent.Info("plain")

	assert.NotContains(t, buf.String(), "reconciler")
}

func TestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		logLevel  events.LogLevel
		msgLevel  events.LogLevel
		shouldLog bool
	}{
		{"debug logger, debug message", events.DebugLevel, events.DebugLevel, true},
		{"debug logger, info message", events.DebugLevel, events.InfoLevel, true},
		{"info logger, debug message", events.InfoLevel, events.DebugLevel, false},
		{"info logger, info message", events.InfoLevel, events.InfoLevel, true},
		{"error logger, warn message", events.ErrorLevel, events.WarnLevel, false},
		{"error logger, error message", events.ErrorLevel, events.ErrorLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := events.NewTestLogger(tt.logLevel, "text", &buf)

			switch tt.msgLevel {
			case events.DebugLevel:
				logger.Debug("test debug")
			case events.InfoLevel:
				logger.Info("test info")
			case events.WarnLevel:
				logger.Warn("test warn")
			case events.ErrorLevel:
				logger.Error("test error")
			}

			if tt.shouldLog {
				assert.NotEmpty(t, buf.String())
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestLoggerSetLevelSharedWithChildren(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.InfoLevel, "text", &buf)
	child := logger.WithField("component", "mirror")

	child.Debug("hidden")
	assert.Empty(t, buf.String())

	logger.SetLevel("debug")
	child.Debug("visible")
	assert.Contains(t, buf.String(), "visible")
}

func TestLoggerTextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.InfoLevel, "text", &buf)

	logger.WithFields(map[string]interface{}{"b": 2, "a": 1}).Info("test message")

	output := buf.String()
	assert.Contains(t, output, "[INFO]")
	assert.Contains(t, output, "test message a=1 b=2")
	assert.NotContains(t, output, "\033[")
}

func TestLoggerWithError(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.InfoLevel, "json", &buf)

	err := assert.AnError
	logger.WithError(err).Error("operation failed")

	output := buf.String()
	assert.Contains(t, output, `"error":"assert.AnError general error for testing"`)
	assert.Contains(t, output, `"msg":"operation failed"`)
	assert.Contains(t, output, `"level":"error"`)
}

func TestLoggerConcurrentWrites(t *testing.T) {
	var buf bytes.Buffer
	logger := events.NewTestLogger(events.InfoLevel, "json", &buf)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			logger.WithField("n", n).Info("line")
		}(i)
	}
	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 20)
	for _, line := range lines {
		assert.True(t, json.Valid([]byte(line)), line)
	}
}
