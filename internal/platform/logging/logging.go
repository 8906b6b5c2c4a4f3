// Package logging builds the process logger. Services take a *logrus.Logger and fall back to
// Default when none is given.
package logging

import (
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// New returns a logger at the given level. Production environments get JSON output; everything
// else gets the text formatter with full timestamps. An unparseable level falls back to info.
func New(level, appEnv string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if appEnv == "production" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	logger.SetLevel(lvl)
	return logger
}

// Default returns l, or a fresh info-level logger when l is nil.
func Default(l *logrus.Logger) *logrus.Logger {
	if l != nil {
		return l
	}
	return logrus.New()
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
