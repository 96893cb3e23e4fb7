// Package logging wraps logrus with the JSON configuration every binary
// in this service shares.
package logging

import (
	"github.com/sirupsen/logrus"

	"lookout/pkg/config"
)

type (
	Logger = *logrus.Logger
	Fields = logrus.Fields
	Level  = logrus.Level
)

// NewLogger returns a JSON logger at the level from LOG_LEVEL.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(config.GetLogLevel())
	return logger
}

// NewLoggerWithService returns a logger that stamps every entry with a
// service field, so lines from co-located binaries stay attributable.
func NewLoggerWithService(serviceName string) *logrus.Logger {
	logger := NewLogger()
	logger.AddHook(&serviceHook{service: serviceName})
	return logger
}

type serviceHook struct {
	service string
}

func (h *serviceHook) Levels() []logrus.Level { return logrus.AllLevels }

func (h *serviceHook) Fire(entry *logrus.Entry) error {
	entry.Data["service"] = h.service
	return nil
}
