// Package logging builds the structured logger shared by every component.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// New returns a logger writing to out. The level comes from LOG_LEVEL and
// defaults to warn, so that stdout carries nothing but the scenario's lines.
// LOG_FORMAT=json switches to the JSON formatter.
func New(out io.Writer, fields logrus.Fields) *logrus.Entry {
	log := logrus.New()
	log.SetOutput(out)
	log.SetLevel(getLogLevel())

	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		log.Formatter = &logrus.JSONFormatter{}
	} else {
		log.Formatter = &logrus.TextFormatter{DisableColors: true, FullTimestamp: true}
	}

	return log.WithFields(fields)
}

// Discard returns a logger that drops everything. Components fall back to it
// when constructed without a logger.
func Discard() *logrus.Entry {
	log := logrus.New()
	log.Out = io.Discard
	log.SetLevel(logrus.PanicLevel)
	return logrus.NewEntry(log)
}

// OrDiscard returns log, or a discarding logger when log is nil.
func OrDiscard(log *logrus.Entry) *logrus.Entry {
	if log == nil {
		return Discard()
	}
	return log
}

func getLogLevel() logrus.Level {
	strLevel := os.Getenv("LOG_LEVEL")
	if strLevel == "" {
		return logrus.WarnLevel
	}
	level, err := logrus.ParseLevel(strLevel)
	if err != nil {
		return logrus.WarnLevel
	}
	return level
}
