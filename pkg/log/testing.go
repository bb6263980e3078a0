package log

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
)

// TestLogger captures log records in memory as JSON lines so tests can assert
// on what a component logged. Loggers derived with With share the buffer.
type TestLogger struct {
	sink   *testSink
	fields map[string]interface{}
}

type testSink struct {
	mu     sync.Mutex
	buffer bytes.Buffer
	level  Level
}

// NewTestLogger creates a TestLogger capturing records at level and above.
//
//	logger := log.NewTestLogger(log.LevelDebug)
//	trainer := training.NewTrainer(cfg, training.WithLogger(logger))
//	...
//	assert.True(t, logger.ContainsField(log.ModelNameKey, "Linear Regression"))
func NewTestLogger(level Level) *TestLogger {
	return &TestLogger{
		sink:   &testSink{level: level},
		fields: map[string]interface{}{},
	}
}

// Debug implements Logger.Debug.
func (t *TestLogger) Debug(msg string, fields ...any) { t.write(LevelDebug, msg, fields) }

// Info implements Logger.Info.
func (t *TestLogger) Info(msg string, fields ...any) { t.write(LevelInfo, msg, fields) }

// Warn implements Logger.Warn.
func (t *TestLogger) Warn(msg string, fields ...any) { t.write(LevelWarn, msg, fields) }

// Error implements Logger.Error.
func (t *TestLogger) Error(msg string, fields ...any) { t.write(LevelError, msg, fields) }

// With implements Logger.With.
func (t *TestLogger) With(fields ...any) Logger {
	merged := make(map[string]interface{}, len(t.fields)+len(fields)/2)
	for k, v := range t.fields {
		merged[k] = v
	}
	addPairs(merged, fields)
	return &TestLogger{sink: t.sink, fields: merged}
}

// Enabled implements Logger.Enabled.
func (t *TestLogger) Enabled(_ context.Context, level Level) bool {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	return t.sink.level <= level
}

func (t *TestLogger) write(level Level, msg string, fields []any) {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	if level < t.sink.level {
		return
	}

	entry := map[string]interface{}{
		"level":   level.String(),
		"message": msg,
	}
	for k, v := range t.fields {
		entry[k] = v
	}
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			entry["error"] = err.Error()
			fields = fields[1:]
		}
	}
	addPairs(entry, fields)

	line, err := json.Marshal(entry)
	if err != nil {
		line = []byte(fmt.Sprintf(`{"level":%q,"message":%q}`, level.String(), msg))
	}
	t.sink.buffer.Write(line)
	t.sink.buffer.WriteByte('\n')
}

func addPairs(dst map[string]interface{}, fields []any) {
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		switch v := fields[i+1].(type) {
		case error:
			dst[key] = v.Error()
		case fmt.Stringer:
			dst[key] = v.String()
		default:
			dst[key] = v
		}
	}
}

// Output returns everything captured so far.
func (t *TestLogger) Output() string {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	return t.sink.buffer.String()
}

// Entries parses the captured output into one map per record.
func (t *TestLogger) Entries() ([]map[string]interface{}, error) {
	var entries []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(t.Output()), "\n") {
		if line == "" {
			continue
		}
		var entry map[string]interface{}
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// ContainsMessage reports whether any record's message contains message.
func (t *TestLogger) ContainsMessage(message string) bool {
	entries, err := t.Entries()
	if err != nil {
		return false
	}
	for _, e := range entries {
		if m, ok := e["message"].(string); ok && strings.Contains(m, message) {
			return true
		}
	}
	return false
}

// ContainsField reports whether any record carries key with value. Numbers
// are compared after JSON decoding, so pass float64 for numeric fields.
func (t *TestLogger) ContainsField(key string, value interface{}) bool {
	entries, err := t.Entries()
	if err != nil {
		return false
	}
	for _, e := range entries {
		if v, ok := e[key]; ok && v == value {
			return true
		}
	}
	return false
}

// Clear drops everything captured so far.
func (t *TestLogger) Clear() {
	t.sink.mu.Lock()
	defer t.sink.mu.Unlock()
	t.sink.buffer.Reset()
}

// TestLoggerProvider is a LoggerProvider handing out loggers that all write
// to one TestLogger.
type TestLoggerProvider struct {
	Logger *TestLogger
}

// NewTestLoggerProvider creates a provider capturing at level and above.
func NewTestLoggerProvider(level Level) *TestLoggerProvider {
	return &TestLoggerProvider{Logger: NewTestLogger(level)}
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *TestLoggerProvider) GetLogger() Logger { return p.Logger }

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *TestLoggerProvider) GetLoggerWithName(name string) Logger {
	return p.Logger.With(ComponentKey, name)
}

// SetLevel implements LoggerProvider.SetLevel.
func (p *TestLoggerProvider) SetLevel(level Level) {
	p.Logger.sink.mu.Lock()
	defer p.Logger.sink.mu.Unlock()
	p.Logger.sink.level = level
}
