package redact

import (
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// Formatter redacts entries before handing them to an inner formatter.
type Formatter struct {
	inner   logrus.Formatter
	enabled atomic.Bool
}

// NewFormatter wraps inner. A nil inner uses logrus.TextFormatter.
func NewFormatter(inner logrus.Formatter, enabled bool) *Formatter {
	if inner == nil {
		inner = &logrus.TextFormatter{}
	}
	f := &Formatter{inner: inner}
	f.enabled.Store(enabled)
	return f
}

// SetEnabled switches redaction at runtime.
func (f *Formatter) SetEnabled(enabled bool) {
	f.enabled.Store(enabled)
}

// Enabled reports whether redaction is on.
func (f *Formatter) Enabled() bool {
	return f.enabled.Load()
}

// Format implements logrus.Formatter.
func (f *Formatter) Format(entry *logrus.Entry) ([]byte, error) {
	if !f.Enabled() {
		return f.inner.Format(entry)
	}

	clone := entry.Dup()
	clone.Level = entry.Level
	clone.Caller = entry.Caller
	clone.Message = redactValue(entry.Message)
	for k, v := range clone.Data {
		if s, ok := v.(string); ok {
			clone.Data[k] = redactValue(s)
		}
	}
	return f.inner.Format(clone)
}

func redactValue(s string) string {
	if looksLikeSDP(s) {
		return SDP(s)
	}
	return String(s)
}
