package calling

import (
	"time"

	"github.com/opd-ai/callcore/crypto"
	"github.com/opd-ai/callcore/group"
	"github.com/opd-ai/callcore/metrics"
	"github.com/opd-ai/callcore/taskqueue"
)

// Config tunes a Manager.
type Config struct {
	// MaxOfferAge rejects offers older than this with ReceivedOfferExpired.
	MaxOfferAge time.Duration

	// CallSetupTimeout ends a call that has not connected in time.
	CallSetupTimeout time.Duration

	// RecentCallIDs is how many concluded call ids are remembered so late
	// duplicate offers are refused.
	RecentCallIDs int

	// QueueCapacity bounds each per-call task queue. Zero is unbounded.
	QueueCapacity int

	// TimeProvider is the clock used for ages and setup latency.
	TimeProvider crypto.TimeProvider

	// ErrorReporter receives panics recovered from queued work.
	ErrorReporter func(taskqueue.Report)

	// Metrics is optional.
	Metrics *metrics.Collector

	// Group configures group call clients.
	Group *group.Config
}

// DefaultConfig returns the production defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxOfferAge:      120 * time.Second,
		CallSetupTimeout: 60 * time.Second,
		RecentCallIDs:    64,
		QueueCapacity:    256,
		TimeProvider:     crypto.DefaultTimeProvider{},
		Group:            group.DefaultConfig(),
	}
}

func (c *Config) withDefaults() *Config {
	d := DefaultConfig()
	if c == nil {
		return d
	}
	out := *c
	if out.MaxOfferAge <= 0 {
		out.MaxOfferAge = d.MaxOfferAge
	}
	if out.CallSetupTimeout <= 0 {
		out.CallSetupTimeout = d.CallSetupTimeout
	}
	if out.RecentCallIDs <= 0 {
		out.RecentCallIDs = d.RecentCallIDs
	}
	if out.TimeProvider == nil {
		out.TimeProvider = d.TimeProvider
	}
	if out.Group == nil {
		out.Group = d.Group
	}
	return &out
}
