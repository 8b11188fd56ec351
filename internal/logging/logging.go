// Package logging backs dialog.Logger with logrus, matching the
// logrus.WithFields(logrus.Fields{...}).Info(...) idiom used across the
// example pack (e.g. discord-voice-mcp's async processor) rather than
// hand-rolling structured output on top of log/slog.
package logging

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/vox-dialog/dialogd/pkg/dialog"
)

// Logger adapts a *logrus.Entry to dialog.Logger. args are taken as
// alternating key/value pairs (mirroring logrus.WithFields' map construction)
// so call sites read like `log.Info("turn started", "session_id", id)`.
type Logger struct {
	entry *logrus.Entry
}

// New builds a Logger writing to stderr as JSON, with the given level name
// ("debug", "info", "warn", "error"); an unrecognized level falls back to
// info rather than erroring, since a bad config value should degrade, not
// crash startup.
func New(level string) *Logger {
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetFormatter(&logrus.JSONFormatter{})
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	l.SetLevel(lvl)
	return &Logger{entry: logrus.NewEntry(l)}
}

// With returns a child Logger carrying additional fields for every
// subsequent call, used to scope a logger to one session_id/turn_id/stage
// without threading those values through every call.
func (l *Logger) With(args ...interface{}) dialog.Logger {
	return &Logger{entry: l.entry.WithFields(fieldsOf(args))}
}

func (l *Logger) Debug(msg string, args ...interface{}) {
	l.entry.WithFields(fieldsOf(args)).Debug(msg)
}

func (l *Logger) Info(msg string, args ...interface{}) {
	l.entry.WithFields(fieldsOf(args)).Info(msg)
}

func (l *Logger) Warn(msg string, args ...interface{}) {
	l.entry.WithFields(fieldsOf(args)).Warn(msg)
}

func (l *Logger) Error(msg string, args ...interface{}) {
	l.entry.WithFields(fieldsOf(args)).Error(msg)
}

func fieldsOf(args []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}
		fields[key] = args[i+1]
	}
	return fields
}
