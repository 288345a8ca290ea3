// Package observability exposes relay metrics to Prometheus.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/shopfloor-ops/change-relay/internal/domain/model"
	"github.com/shopfloor-ops/change-relay/internal/service"
)

const namespace = "change_relay"

// Interface guard
var _ service.Observer = (*RelayMetrics)(nil)

// RelayMetrics implements service.Observer on Prometheus collectors.
type RelayMetrics struct {
	// ActiveSessions tracks sessions between open and close.
	// Labels: topic
	ActiveSessions *prometheus.GaugeVec

	// SessionsClosed counts finished sessions.
	// Labels: topic, reason (cancelled, fatal, retry_exhausted, sink_dead)
	SessionsClosed *prometheus.CounterVec

	// EventsForwarded counts events written to clients.
	// Labels: topic, type (connected excluded)
	EventsForwarded *prometheus.CounterVec

	// RecordsSkipped counts change records that never reached the client.
	// Labels: topic, reason (filtered, lookup, encode)
	RecordsSkipped *prometheus.CounterVec

	// Reconnects counts successful subscription reopenings.
	// Labels: topic
	Reconnects *prometheus.CounterVec
}

// NewRelayMetrics registers the collectors on reg. Tests pass a fresh
// prometheus.NewRegistry to stay isolated.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	factory := promauto.With(reg)
	return &RelayMetrics{
		ActiveSessions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Relay sessions currently running",
		}, []string{"topic"}),
		SessionsClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sessions",
			Name:      "closed_total",
			Help:      "Relay sessions closed by reason",
		}, []string{"topic", "reason"}),
		EventsForwarded: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "forwarded_total",
			Help:      "Change events delivered to clients",
		}, []string{"topic", "type"}),
		RecordsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "skipped_total",
			Help:      "Change records dropped before delivery",
		}, []string{"topic", "reason"}),
		Reconnects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "feed",
			Name:      "reconnects_total",
			Help:      "Change feed subscriptions reopened after a failure",
		}, []string{"topic"}),
	}
}

func (m *RelayMetrics) SessionOpened(topic string) {
	m.ActiveSessions.WithLabelValues(topic).Inc()
}

func (m *RelayMetrics) SessionClosed(topic string, reason model.CloseReason) {
	m.ActiveSessions.WithLabelValues(topic).Dec()
	m.SessionsClosed.WithLabelValues(topic, string(reason)).Inc()
}

func (m *RelayMetrics) EventForwarded(topic string, typ model.EventType) {
	m.EventsForwarded.WithLabelValues(topic, string(typ)).Inc()
}

func (m *RelayMetrics) RecordSkipped(topic, reason string) {
	m.RecordsSkipped.WithLabelValues(topic, reason).Inc()
}

func (m *RelayMetrics) Reconnected(topic string) {
	m.Reconnects.WithLabelValues(topic).Inc()
}
