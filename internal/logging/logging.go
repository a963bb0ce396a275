package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

type Level int

const (
	Debug Level = iota
	Info
	Warn
	Error
	Trace
)

var levels = map[Level]zerolog.Level{
	Trace: zerolog.TraceLevel,
	Debug: zerolog.DebugLevel,
	Info:  zerolog.InfoLevel,
	Warn:  zerolog.WarnLevel,
	Error: zerolog.ErrorLevel,
}

type Config struct {
	Level  Level
	Format string // "json" (default) or "console"
	Output io.Writer
}

// Logger is the leveled logger handed to every component. A nil *Logger
// discards everything.
type Logger struct {
	zl zerolog.Logger
}

func NewLogger(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if cfg.Format == "console" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	lvl, ok := levels[cfg.Level]
	if !ok {
		lvl = zerolog.InfoLevel
	}
	return &Logger{zl: zerolog.New(out).Level(lvl).With().Timestamp().Logger()}
}

// FromZerolog wraps an existing zerolog logger.
func FromZerolog(zl zerolog.Logger) *Logger {
	return &Logger{zl: zl}
}

func NewNop() *Logger {
	return &Logger{zl: zerolog.Nop()}
}

// With returns a child logger carrying key=value on every event.
func (l *Logger) With(key, value string) *Logger {
	if l == nil {
		return nil
	}
	return &Logger{zl: l.zl.With().Str(key, value).Logger()}
}

func (l *Logger) Tracef(format string, args ...any) {
	if l != nil {
		l.zl.Trace().Msgf(format, args...)
	}
}

func (l *Logger) Debugf(format string, args ...any) {
	if l != nil {
		l.zl.Debug().Msgf(format, args...)
	}
}

func (l *Logger) Infof(format string, args ...any) {
	if l != nil {
		l.zl.Info().Msgf(format, args...)
	}
}

func (l *Logger) Warnf(format string, args ...any) {
	if l != nil {
		l.zl.Warn().Msgf(format, args...)
	}
}

func (l *Logger) Errorf(format string, args ...any) {
	if l != nil {
		l.zl.Error().Msgf(format, args...)
	}
}

// Zerolog exposes the underlying logger for callers that want structured
// fields.
func (l *Logger) Zerolog() *zerolog.Logger {
	if l == nil {
		nop := zerolog.Nop()
		return &nop
	}
	return &l.zl
}
