// Package logging wraps zerolog with the structured, leveled logging
// conventions used throughout the agent.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Config controls how a Logger is constructed.
type Config struct {
	// Level is one of "debug", "info", "warn", "error", "fatal". Defaults
	// to "info" if empty or unrecognized.
	Level string
	// Format is "json" or "console". Defaults to "json".
	Format string
	// Output is the destination writer. Defaults to os.Stderr.
	Output io.Writer
}

// Logger is a leveled structured logger over zerolog.
type Logger struct {
	zl zerolog.Logger
}

// New constructs a Logger from cfg.
func New(cfg Config) *Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	zl := zerolog.New(out).With().Timestamp().Logger()
	zl = zl.Level(parseLevel(cfg.Level))

	return &Logger{zl: zl}
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func (l *Logger) event(e *zerolog.Event, msg string, fields ...interface{}) {
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, fields[i+1])
	}
	e.Msg(msg)
}

// Debug logs at debug level with alternating key/value fields.
func (l *Logger) Debug(msg string, fields ...interface{}) {
	l.event(l.zl.Debug(), msg, fields...)
}

// Info logs at info level with alternating key/value fields.
func (l *Logger) Info(msg string, fields ...interface{}) {
	l.event(l.zl.Info(), msg, fields...)
}

// Warn logs at warn level with alternating key/value fields.
func (l *Logger) Warn(msg string, fields ...interface{}) {
	l.event(l.zl.Warn(), msg, fields...)
}

// Error logs at error level with alternating key/value fields.
func (l *Logger) Error(msg string, fields ...interface{}) {
	l.event(l.zl.Error(), msg, fields...)
}

// Fatal logs at fatal level and terminates the process, matching
// zerolog's default Fatal behavior.
func (l *Logger) Fatal(msg string, fields ...interface{}) {
	l.event(l.zl.Fatal(), msg, fields...)
}

// WithField returns a derived Logger with key permanently attached.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return &Logger{zl: l.zl.With().Interface(key, value).Logger()}
}

// WithFields returns a derived Logger with all key/value pairs in
// fields permanently attached.
func (l *Logger) WithFields(fields ...interface{}) *Logger {
	ctx := l.zl.With()
	for i := 0; i+1 < len(fields); i += 2 {
		key, ok := fields[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, fields[i+1])
	}
	return &Logger{zl: ctx.Logger()}
}

// Zerolog returns the underlying zerolog.Logger for callers that need
// direct access (e.g. to pass into a library that accepts one).
func (l *Logger) Zerolog() zerolog.Logger {
	return l.zl
}
