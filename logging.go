package taskkit

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"

	"github.com/taskkit/taskkit/task"
)

// Field is a structured key-value pair for logging, matching the shape the
// teacher's core.Logger uses so call sites read the same after the switch
// to a zerolog backend.
type Field struct {
	Key   string
	Value any
}

// F creates a Field.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// Logger is taskkit's structured logging interface. ZerologLogger is the
// production implementation; NoOpLogger discards everything.
type Logger interface {
	Debug(msg string, fields ...Field)
	Info(msg string, fields ...Field)
	Warn(msg string, fields ...Field)
	Error(msg string, fields ...Field)
}

// ZerologLogger backs Logger with github.com/rs/zerolog, replacing the
// teacher's DefaultLogger (a bare log.Println wrapper) with the pack's
// structured-logging convention.
type ZerologLogger struct {
	z zerolog.Logger
}

// NewZerologLogger wraps an existing zerolog.Logger.
func NewZerologLogger(z zerolog.Logger) ZerologLogger {
	return ZerologLogger{z: z}
}

// NewDefaultLogger returns a ZerologLogger writing to stderr, matching the
// teacher's NewDefaultLogger's role as the out-of-the-box choice.
func NewDefaultLogger() ZerologLogger {
	return ZerologLogger{z: zerolog.New(os.Stderr).With().Timestamp().Logger()}
}

func (l ZerologLogger) Debug(msg string, fields ...Field) { l.log(zerolog.DebugLevel, msg, fields) }
func (l ZerologLogger) Info(msg string, fields ...Field)  { l.log(zerolog.InfoLevel, msg, fields) }
func (l ZerologLogger) Warn(msg string, fields ...Field)  { l.log(zerolog.WarnLevel, msg, fields) }
func (l ZerologLogger) Error(msg string, fields ...Field) { l.log(zerolog.ErrorLevel, msg, fields) }

func (l ZerologLogger) log(level zerolog.Level, msg string, fields []Field) {
	ev := l.z.WithLevel(level)
	for _, f := range fields {
		ev = ev.Interface(f.Key, f.Value)
	}
	ev.Msg(msg)
}

// NoOpLogger discards every log message, matching the teacher's NoOpLogger.
type NoOpLogger struct{}

func (NoOpLogger) Debug(string, ...Field) {}
func (NoOpLogger) Info(string, ...Field)  {}
func (NoOpLogger) Warn(string, ...Field)  {}
func (NoOpLogger) Error(string, ...Field) {}

var (
	_ Logger      = ZerologLogger{}
	_ Logger      = NoOpLogger{}
	_ task.Logger = (*taskLoggerAdapter)(nil)
)

// taskLoggerAdapter narrows a taskkit.Logger down to task.Logger's single
// Debugf method, so a Runtime can hand every spawned frame its configured
// logger without the task package needing to know about Field/F.
type taskLoggerAdapter struct{ l Logger }

func (a *taskLoggerAdapter) Debugf(format string, args ...any) {
	a.l.Debug(fmt.Sprintf(format, args...))
}
