package logging

import (
	"io"
	"log"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

type Config struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=trace debug info warn warning error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
	File   string `yaml:"file"`
}

// New builds the process logger. An unopenable log file falls back to stderr with a warning.
func New(cfg Config) *logrus.Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	if strings.ToLower(cfg.Format) == "json" {
		l.SetFormatter(&logrus.JSONFormatter{})
	} else {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	l.SetOutput(os.Stderr)
	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			l.WithError(err).Warnf("cannot open log file %s, logging to stderr", cfg.File)
		} else {
			l.SetOutput(f)
		}
	}
	return l
}

// Discard is a logger for tests and for commands whose output must stay clean.
func Discard() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// StdLogger adapts a logrus logger to the *log.Logger that goburrow handlers expect.
// Lines are written at debug level.
func StdLogger(l logrus.FieldLogger, component string) *log.Logger {
	return log.New(debugWriter{l.WithField("component", component)}, "", 0)
}

type debugWriter struct {
	l logrus.FieldLogger
}

func (w debugWriter) Write(p []byte) (int, error) {
	w.l.Debug(strings.TrimRight(string(p), "\n"))
	return len(p), nil
}
