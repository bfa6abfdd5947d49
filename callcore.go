package callcore

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/callcore/calling"
	"github.com/opd-ai/callcore/crypto"
	"github.com/opd-ai/callcore/group"
	"github.com/opd-ai/callcore/metrics"
	"github.com/opd-ai/callcore/platform"
	"github.com/opd-ai/callcore/redact"
	"github.com/opd-ai/callcore/taskqueue"
)

// ErrInvalidOptions is returned when Options fail validation.
var ErrInvalidOptions = errors.New("invalid options")

// Options contains the embedding configuration.
type Options struct {
	LogLevel         logrus.Level
	RedactionEnabled bool

	MaxOfferAge      time.Duration
	CallSetupTimeout time.Duration
	RecentCallIDs    int
	QueueCapacity    int

	GroupPeekInterval  time.Duration
	GroupQueueCapacity int

	MetricsEnabled    bool
	MetricsNamespace  string
	MetricsRegisterer prometheus.Registerer

	TimeProvider  crypto.TimeProvider
	ErrorReporter func(taskqueue.Report)
}

// NewOptions creates a new default options.
func NewOptions() *Options {
	calls := calling.DefaultConfig()
	groups := group.DefaultConfig()
	return &Options{
		LogLevel:           logrus.InfoLevel,
		RedactionEnabled:   true,
		MaxOfferAge:        calls.MaxOfferAge,
		CallSetupTimeout:   calls.CallSetupTimeout,
		RecentCallIDs:      calls.RecentCallIDs,
		QueueCapacity:      calls.QueueCapacity,
		GroupPeekInterval:  groups.PeekInterval,
		GroupQueueCapacity: groups.QueueCapacity,
		MetricsNamespace:   metrics.DefaultConfig().Namespace,
	}
}

// Validate checks the options for values the manager cannot work with.
func (o *Options) Validate() error {
	switch {
	case o.MaxOfferAge <= 0:
		return fmt.Errorf("max offer age must be positive: %w", ErrInvalidOptions)
	case o.CallSetupTimeout <= 0:
		return fmt.Errorf("call setup timeout must be positive: %w", ErrInvalidOptions)
	case o.RecentCallIDs < 0:
		return fmt.Errorf("recent call ids cannot be negative: %w", ErrInvalidOptions)
	case o.QueueCapacity < 0 || o.GroupQueueCapacity < 0:
		return fmt.Errorf("queue capacity cannot be negative: %w", ErrInvalidOptions)
	case o.GroupPeekInterval <= 0:
		return fmt.Errorf("group peek interval must be positive: %w", ErrInvalidOptions)
	case o.MetricsEnabled && o.MetricsNamespace == "":
		return fmt.Errorf("metrics namespace is required: %w", ErrInvalidOptions)
	}
	return nil
}

// callingConfig translates the options, creating a collector if asked to.
func (o *Options) callingConfig() *calling.Config {
	cfg := calling.DefaultConfig()
	cfg.MaxOfferAge = o.MaxOfferAge
	cfg.CallSetupTimeout = o.CallSetupTimeout
	cfg.RecentCallIDs = o.RecentCallIDs
	cfg.QueueCapacity = o.QueueCapacity
	cfg.ErrorReporter = o.ErrorReporter
	if o.TimeProvider != nil {
		cfg.TimeProvider = o.TimeProvider
	}

	cfg.Group = group.DefaultConfig()
	cfg.Group.PeekInterval = o.GroupPeekInterval
	cfg.Group.QueueCapacity = o.GroupQueueCapacity
	cfg.Group.TimeProvider = cfg.TimeProvider

	if o.MetricsEnabled {
		cfg.Metrics = metrics.New(&metrics.Config{
			Namespace:  o.MetricsNamespace,
			Registerer: o.MetricsRegisterer,
		})
	}
	return cfg
}

// Manager is a calling.Manager together with the collector it records to.
type Manager struct {
	*calling.Manager
	metrics *metrics.Collector
}

// Metrics returns the collector, or nil when metrics are disabled.
func (m *Manager) Metrics() *metrics.Collector {
	return m.metrics
}

// NewManager creates a call manager for the host platform. options may be
// nil for NewOptions().
func NewManager(p platform.Platform, options *Options) (*Manager, error) {
	if options == nil {
		options = NewOptions()
	}

	logrus.WithFields(logrus.Fields{
		"function":        "NewManager",
		"metrics_enabled": options.MetricsEnabled,
		"redaction":       options.RedactionEnabled,
	}).Debug("Creating manager from options")

	if err := options.Validate(); err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "NewManager",
			"error":    err.Error(),
		}).Error("Options validation failed")
		return nil, err
	}

	cfg := options.callingConfig()
	inner, err := calling.NewManager(p, cfg)
	if err != nil {
		return nil, fmt.Errorf("callcore: %w", err)
	}
	return &Manager{Manager: inner, metrics: cfg.Metrics}, nil
}

var (
	formatterMu sync.Mutex
	formatter   *redact.Formatter
)

// ConfigureLogging applies the log level and installs the redacting
// formatter on the standard logrus logger. Calling it again reuses the
// installed formatter.
func ConfigureLogging(options *Options) {
	if options == nil {
		options = NewOptions()
	}
	configureLogger(logrus.StandardLogger(), options)
}

func configureLogger(logger *logrus.Logger, options *Options) {
	formatterMu.Lock()
	defer formatterMu.Unlock()

	f, ok := logger.Formatter.(*redact.Formatter)
	if !ok {
		f = redact.NewFormatter(logger.Formatter, options.RedactionEnabled)
		logger.SetFormatter(f)
	}
	f.SetEnabled(options.RedactionEnabled)
	logger.SetLevel(options.LogLevel)
	if logger == logrus.StandardLogger() {
		formatter = f
	}
}

// SetRedactionEnabled flips redaction on the formatter installed by
// ConfigureLogging. It reports false if none is installed.
func SetRedactionEnabled(enabled bool) bool {
	formatterMu.Lock()
	defer formatterMu.Unlock()
	if formatter == nil {
		return false
	}
	formatter.SetEnabled(enabled)
	return true
}
