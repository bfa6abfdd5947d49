// Package metrics exports call and group client counters to Prometheus.
//
// A nil *Collector is valid and records nothing, so components can take an
// optional collector without nil checks at every call site.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Config selects where collectors register.
type Config struct {
	Namespace string
	// Registerer defaults to a fresh registry owned by the collector.
	Registerer prometheus.Registerer
}

// DefaultConfig returns the default metrics configuration.
func DefaultConfig() *Config {
	return &Config{Namespace: "callcore"}
}

// Collector holds every callcore metric.
type Collector struct {
	registry *prometheus.Registry

	callsStarted      *prometheus.CounterVec
	callsEnded        *prometheus.CounterVec
	activeCalls       prometheus.Gauge
	callSetup         prometheus.Histogram
	signalingSent     *prometheus.CounterVec
	signalingReceived *prometheus.CounterVec
	offersRejected    *prometheus.CounterVec
	groupClients      prometheus.Gauge
	httpRequests      *prometheus.CounterVec
}

// New creates a collector.
func New(config *Config) *Collector {
	if config == nil {
		config = DefaultConfig()
	}

	c := &Collector{}
	reg := config.Registerer
	if reg == nil {
		c.registry = prometheus.NewRegistry()
		reg = c.registry
	}
	factory := promauto.With(reg)
	ns := config.Namespace

	c.callsStarted = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "calls_started_total",
		Help:      "One-to-one calls started, by direction.",
	}, []string{"direction"})

	c.callsEnded = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "calls_ended_total",
		Help:      "One-to-one calls ended, by end reason.",
	}, []string{"reason"})

	c.activeCalls = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "active_calls",
		Help:      "Calls that have started and not yet concluded.",
	})

	c.callSetup = factory.NewHistogram(prometheus.HistogramOpts{
		Namespace: ns,
		Name:      "call_setup_seconds",
		Help:      "Time from call start to media connected.",
		Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	})

	c.signalingSent = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "signaling_sent_total",
		Help:      "Signaling messages handed to the transport, by type.",
	}, []string{"type"})

	c.signalingReceived = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "signaling_received_total",
		Help:      "Signaling messages received, by type.",
	}, []string{"type"})

	c.offersRejected = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "offers_rejected_total",
		Help:      "Incoming offers concluded without ringing, by reason.",
	}, []string{"reason"})

	c.groupClients = factory.NewGauge(prometheus.GaugeOpts{
		Namespace: ns,
		Name:      "group_clients",
		Help:      "Live group call clients.",
	})

	c.httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Namespace: ns,
		Name:      "http_requests_total",
		Help:      "HTTP requests issued through the host, by outcome.",
	}, []string{"outcome"})

	return c
}

// Registry returns the collector's own registry, or nil when it was
// registered elsewhere.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// CallStarted counts a new call.
func (c *Collector) CallStarted(direction string) {
	if c == nil {
		return
	}
	c.callsStarted.WithLabelValues(direction).Inc()
	c.activeCalls.Inc()
}

// CallEnded counts an ended call.
func (c *Collector) CallEnded(reason string) {
	if c == nil {
		return
	}
	c.callsEnded.WithLabelValues(reason).Inc()
}

// CallConcluded marks a call as gone.
func (c *Collector) CallConcluded() {
	if c == nil {
		return
	}
	c.activeCalls.Dec()
}

// CallConnected records setup latency.
func (c *Collector) CallConnected(setup time.Duration) {
	if c == nil {
		return
	}
	c.callSetup.Observe(setup.Seconds())
}

// SignalingSent counts an outbound message.
func (c *Collector) SignalingSent(messageType string) {
	if c == nil {
		return
	}
	c.signalingSent.WithLabelValues(messageType).Inc()
}

// SignalingReceived counts an inbound message.
func (c *Collector) SignalingReceived(messageType string) {
	if c == nil {
		return
	}
	c.signalingReceived.WithLabelValues(messageType).Inc()
}

// OfferRejected counts an offer that never rang.
func (c *Collector) OfferRejected(reason string) {
	if c == nil {
		return
	}
	c.offersRejected.WithLabelValues(reason).Inc()
}

// GroupClientCreated counts a new group client.
func (c *Collector) GroupClientCreated() {
	if c == nil {
		return
	}
	c.groupClients.Inc()
}

// GroupClientDeleted counts a removed group client.
func (c *Collector) GroupClientDeleted() {
	if c == nil {
		return
	}
	c.groupClients.Dec()
}

// HTTPRequest counts a request outcome: "sent", "ok", "error" or "failed".
func (c *Collector) HTTPRequest(outcome string) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(outcome).Inc()
}
