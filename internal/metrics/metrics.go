// Package metrics exposes dispatcher counters to Prometheus. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "hamm"

// Reasons a command is not applied.
const (
	ReasonUnknownTopic = "unknown_topic"
	ReasonValidation   = "validation"
	ReasonHandler      = "handler"
	ReasonPublish      = "publish"
)

type Metrics struct {
	MessagesReceived prometheus.Counter
	MessagesRouted   *prometheus.CounterVec
	MessagesRejected *prometheus.CounterVec
	PublishFailures  prometheus.Counter
	Reconnects       prometheus.Counter
	ConnectionState  prometheus.Gauge
	Entities         prometheus.Gauge
	LoopDuration     prometheus.Histogram
}

// New creates the collectors and registers them with registerer when it
// is not nil.
func New(registerer prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		MessagesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "received_total",
			Help:      "Total number of MQTT messages received by the poll loop",
		}),
		MessagesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "routed_total",
			Help:      "Total number of commands applied, by component",
		}, []string{"component"}),
		MessagesRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "messages",
			Name:      "rejected_total",
			Help:      "Total number of messages not applied, by reason",
		}, []string{"reason"}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "publish_failures_total",
			Help:      "Total number of discovery, state or availability publishes that failed",
		}),
		Reconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "reconnects_total",
			Help:      "Total number of successful reconnects after a link loss",
		}),
		ConnectionState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "mqtt",
			Name:      "connection_state",
			Help:      "Connection state (0=disconnected, 1=connecting, 2=connected, 3=reconnecting)",
		}),
		Entities: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "entities",
			Help:      "Number of entities registered with the dispatcher",
		}),
		LoopDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "loop_duration_seconds",
			Help:      "Duration of one poll step including dispatch",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if registerer == nil {
		return m, nil
	}
	for _, collector := range m.collectors() {
		if err := registerer.Register(collector); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.MessagesReceived, m.MessagesRouted, m.MessagesRejected, m.PublishFailures,
		m.Reconnects, m.ConnectionState, m.Entities, m.LoopDuration,
	}
}

func (m *Metrics) Received() {
	if m != nil {
		m.MessagesReceived.Inc()
	}
}

func (m *Metrics) Routed(component string) {
	if m != nil {
		m.MessagesRouted.WithLabelValues(component).Inc()
	}
}

func (m *Metrics) Rejected(reason string) {
	if m != nil {
		m.MessagesRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) PublishFailed() {
	if m != nil {
		m.PublishFailures.Inc()
	}
}

func (m *Metrics) Reconnected() {
	if m != nil {
		m.Reconnects.Inc()
	}
}

func (m *Metrics) SetState(state int) {
	if m != nil {
		m.ConnectionState.Set(float64(state))
	}
}

func (m *Metrics) SetEntities(n int) {
	if m != nil {
		m.Entities.Set(float64(n))
	}
}

func (m *Metrics) ObserveLoop(d time.Duration) {
	if m != nil {
		m.LoopDuration.Observe(d.Seconds())
	}
}
