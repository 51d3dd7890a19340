package wdhistory

import (
	"io"

	"github.com/sirupsen/logrus"
)

// LogrusLogger adapts a logrus.FieldLogger to the Logger interface. Fields
// attached with WithFields are carried by every line it prints.
type LogrusLogger struct {
	Entry logrus.FieldLogger
}

// NewLogrusLogger returns a LogrusLogger writing to out. If json is set, lines
// are emitted as JSON objects, otherwise as logfmt text.
func NewLogrusLogger(out io.Writer, verbose, json bool) *LogrusLogger {
	l := logrus.New()
	l.SetOutput(out)
	if json {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, DisableColors: true})
	}
	if verbose {
		l.SetLevel(logrus.DebugLevel)
	}
	return &LogrusLogger{Entry: l}
}

// Printf implements Logger interface.
func (l *LogrusLogger) Printf(format string, v ...interface{}) {
	l.Entry.Infof(format, v...)
}

// Debugf implements Logger interface.
func (l *LogrusLogger) Debugf(format string, v ...interface{}) {
	l.Entry.Debugf(format, v...)
}

// WithFields returns a Logger which adds fields to each line.
func (l *LogrusLogger) WithFields(fields map[string]interface{}) *LogrusLogger {
	return &LogrusLogger{Entry: l.Entry.WithFields(logrus.Fields(fields))}
}
