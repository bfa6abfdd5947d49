package group

import (
	"time"

	"github.com/opd-ai/callcore/crypto"
)

// Config tunes group call clients.
type Config struct {
	// PeekInterval is how often a joined client refreshes the roster.
	PeekInterval time.Duration

	// QueueCapacity bounds each client's task queue. Zero is unbounded.
	QueueCapacity int

	// TimeProvider stamps roster entries.
	TimeProvider crypto.TimeProvider
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		PeekInterval:  10 * time.Second,
		QueueCapacity: 256,
		TimeProvider:  crypto.DefaultTimeProvider{},
	}
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.PeekInterval <= 0 {
		out.PeekInterval = d.PeekInterval
	}
	if out.TimeProvider == nil {
		out.TimeProvider = d.TimeProvider
	}
	return &out
}
