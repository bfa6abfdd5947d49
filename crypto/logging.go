package crypto

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// LoggerHelper accumulates fields for one crypto operation.
type LoggerHelper struct {
	fields logrus.Fields
}

// NewLogger starts a logger for the named function.
func NewLogger(function string) *LoggerHelper {
	return &LoggerHelper{
		fields: logrus.Fields{
			"function": function,
			"package":  "crypto",
		},
	}
}

// WithField adds a custom field.
func (l *LoggerHelper) WithField(key string, value interface{}) *LoggerHelper {
	l.fields[key] = value
	return l
}

// WithError records an error with its classification.
func (l *LoggerHelper) WithError(err error, errorType, operation string) *LoggerHelper {
	l.fields["error"] = err.Error()
	l.fields["error_type"] = errorType
	l.fields["operation"] = operation
	return l
}

// Debug logs a debug message.
func (l *LoggerHelper) Debug(message string) {
	logrus.WithFields(l.fields).Debug(message)
}

// Warn logs a warning message.
func (l *LoggerHelper) Warn(message string) {
	logrus.WithFields(l.fields).Warn(message)
}

// KeyPreview renders the first bytes of a key for logs.
func KeyPreview(key []byte) string {
	if len(key) == 0 {
		return "nil"
	}
	if len(key) <= 4 {
		return fmt.Sprintf("%x", key)
	}
	return fmt.Sprintf("%x...", key[:4])
}
