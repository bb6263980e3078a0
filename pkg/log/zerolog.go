package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	esErrors "github.com/YuminosukeSato/examscore/pkg/errors"
)

// ZerologLogger implements Logger on top of zerolog.
type ZerologLogger struct {
	logger zerolog.Logger
}

// Debug implements Logger.Debug.
func (z *ZerologLogger) Debug(msg string, fields ...any) {
	emit(z.logger.Debug(), msg, fields)
}

// Info implements Logger.Info.
func (z *ZerologLogger) Info(msg string, fields ...any) {
	emit(z.logger.Info(), msg, fields)
}

// Warn implements Logger.Warn.
func (z *ZerologLogger) Warn(msg string, fields ...any) {
	emit(z.logger.Warn(), msg, fields)
}

// Error implements Logger.Error. A leading error value is attached with its
// stack trace.
func (z *ZerologLogger) Error(msg string, fields ...any) {
	emit(z.logger.Error(), msg, fields)
}

// With implements Logger.With.
func (z *ZerologLogger) With(fields ...any) Logger {
	ctx := z.logger.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		switch v := fields[i+1].(type) {
		case error:
			ctx = ctx.AnErr(key, v)
		case zerolog.LogObjectMarshaler:
			ctx = ctx.Object(key, v)
		default:
			ctx = ctx.Interface(key, v)
		}
	}
	return &ZerologLogger{logger: ctx.Logger()}
}

// Enabled implements Logger.Enabled.
func (z *ZerologLogger) Enabled(_ context.Context, level Level) bool {
	return z.logger.GetLevel() <= toZerologLevel(level) &&
		zerolog.GlobalLevel() <= toZerologLevel(level)
}

func emit(ev *zerolog.Event, msg string, fields []any) {
	if ev == nil {
		return
	}
	i := 0
	if len(fields) > 0 {
		if err, ok := fields[0].(error); ok {
			ev = ev.Err(err).Str(StacktraceKey, fmt.Sprintf("%+v", err))
			i = 1
		}
	}
	for ; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		switch v := fields[i+1].(type) {
		case zerolog.LogObjectMarshaler:
			ev = ev.Object(key, v)
		case error:
			ev = ev.AnErr(key, v)
		default:
			ev = ev.Interface(key, v)
		}
	}
	ev.Msg(msg)
}

func toZerologLevel(level Level) zerolog.Level {
	switch {
	case level <= LevelDebug:
		return zerolog.DebugLevel
	case level <= LevelInfo:
		return zerolog.InfoLevel
	case level <= LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}

// ZerologProvider creates zerolog-backed loggers writing JSON lines.
type ZerologProvider struct {
	mu   sync.RWMutex
	base zerolog.Logger
}

// NewZerologProvider creates a provider writing to stderr at the given level.
func NewZerologProvider(level Level) *ZerologProvider {
	return NewZerologProviderWithWriter(os.Stderr, level)
}

// NewZerologProviderWithWriter creates a provider writing to w.
func NewZerologProviderWithWriter(w io.Writer, level Level) *ZerologProvider {
	base := zerolog.New(w).With().Timestamp().Logger().Level(toZerologLevel(level))
	return &ZerologProvider{base: base}
}

// GetLogger implements LoggerProvider.GetLogger.
func (p *ZerologProvider) GetLogger() Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &ZerologLogger{logger: p.base}
}

// GetLoggerWithName implements LoggerProvider.GetLoggerWithName.
func (p *ZerologProvider) GetLoggerWithName(name string) Logger {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return &ZerologLogger{logger: p.base.With().Str(ComponentKey, name).Logger()}
}

// SetLevel implements LoggerProvider.SetLevel. Loggers handed out earlier keep
// their level.
func (p *ZerologProvider) SetLevel(level Level) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.base = p.base.Level(toZerologLevel(level))
}

// ParseLevel converts "debug", "info", "warn" or "error" to a Level.
func ParseLevel(level string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return LevelDebug, nil
	case "info", "":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, esErrors.NewValidationError("log_level", "must be one of debug, info, warn, error", level)
	}
}

// ToLogLevel is ParseLevel for trusted input; unknown names fall back to info.
func ToLogLevel(level string) Level {
	l, _ := ParseLevel(level)
	return l
}

var (
	globalMu       sync.RWMutex
	globalProvider LoggerProvider = NewZerologProvider(LevelInfo)
)

func init() {
	esErrors.SetZerologWarnFunc(func(w error) {
		GetLoggerWithName("warnings").Warn(w.Error(), "warning", w)
	})
}

// SetProvider replaces the process-wide provider.
func SetProvider(p LoggerProvider) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalProvider = p
}

// GetProvider returns the process-wide provider.
func GetProvider() LoggerProvider {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalProvider
}

// GetLogger returns the default logger of the process-wide provider.
func GetLogger() Logger {
	return GetProvider().GetLogger()
}

// GetLoggerWithName returns a named logger of the process-wide provider.
func GetLoggerWithName(name string) Logger {
	return GetProvider().GetLoggerWithName(name)
}
