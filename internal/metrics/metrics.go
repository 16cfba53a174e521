// Package metrics exposes Prometheus counters for the control channel.
//
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of one server.
type Metrics struct {
	registry *prometheus.Registry

	sessions    prometheus.Gauge
	pending     prometheus.Gauge
	rejections  *prometheus.CounterVec
	frames      *prometheus.CounterVec
	admissions  *prometheus.CounterVec
	decodeDrops *prometheus.CounterVec
	sendErrors  prometheus.Counter
}

// New creates the collectors and registers them on a private registry.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "authorized",
			Help:      "Authorized sessions currently registered.",
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "awaiting_auth",
			Help:      "Sessions waiting for authorization.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connections",
			Name:      "rejected_total",
			Help:      "Upgrade requests rejected during validation.",
		}, []string{"reason"}),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "total",
			Help:      "Frames sent and received.",
		}, []string{"direction"}),
		admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "admissions_total",
			Help:      "Rate limiter verdicts for inbound frames.",
		}, []string{"verdict"}),
		decodeDrops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "decode_dropped_total",
			Help:      "Inbound frames dropped because they could not be decoded.",
		}, []string{"reason"}),
		sendErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "frames",
			Name:      "send_errors_total",
			Help:      "Outbound frames that failed and closed their connection.",
		}),
	}
	m.registry.MustRegister(m.sessions, m.pending, m.rejections, m.frames, m.admissions, m.decodeDrops, m.sendErrors)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the private registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) SessionAuthorized() {
	if m != nil {
		m.sessions.Inc()
	}
}

func (m *Metrics) SessionClosed() {
	if m != nil {
		m.sessions.Dec()
	}
}

func (m *Metrics) AwaitingAuth(delta float64) {
	if m != nil {
		m.pending.Add(delta)
	}
}

func (m *Metrics) Rejected(reason string) {
	if m != nil {
		m.rejections.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) FrameIn() {
	if m != nil {
		m.frames.WithLabelValues("in").Inc()
	}
}

func (m *Metrics) FrameOut() {
	if m != nil {
		m.frames.WithLabelValues("out").Inc()
	}
}

func (m *Metrics) Admission(verdict string) {
	if m != nil {
		m.admissions.WithLabelValues(verdict).Inc()
	}
}

func (m *Metrics) DecodeDropped(reason string) {
	if m != nil {
		m.decodeDrops.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) SendFailed() {
	if m != nil {
		m.sendErrors.Inc()
	}
}
