// Package metrics holds the Prometheus collectors of the messaging core.
// A nil *Metrics is valid and records nothing, which keeps tests free of
// registry setup.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "talkcore"

type Metrics struct {
	MessagesSent         *prometheus.CounterVec
	NotificationsQueued  prometheus.Counter
	NotificationsDropped prometheus.Counter
	NotificationFailures *prometheus.CounterVec
	ReconcileRepairs     *prometheus.CounterVec
	ReconcileRuns        prometheus.Counter
	HTTPDuration         *prometheus.HistogramVec
	WSConnections        prometheus.Gauge
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		MessagesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_sent_total",
			Help:      "Messages appended, by message type.",
		}, []string{"type"}),
		NotificationsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_queued_total",
			Help:      "Notifications accepted by the dispatcher queue.",
		}),
		NotificationsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Notifications dropped because the dispatcher queue was full.",
		}),
		NotificationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_failures_total",
			Help:      "Sink delivery failures, by sink.",
		}, []string{"sink"}),
		ReconcileRepairs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_repairs_total",
			Help:      "Conversations repaired by the reconciler, by kind.",
		}, []string{"kind"}),
		ReconcileRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reconcile_runs_total",
			Help:      "Completed reconciler sweeps.",
		}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		WSConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_connections",
			Help:      "Open WebSocket connections on this instance.",
		}),
	}
	reg.MustRegister(
		m.MessagesSent,
		m.NotificationsQueued,
		m.NotificationsDropped,
		m.NotificationFailures,
		m.ReconcileRepairs,
		m.ReconcileRuns,
		m.HTTPDuration,
		m.WSConnections,
	)
	return m
}

func (m *Metrics) MessageSent(kind string) {
	if m == nil {
		return
	}
	m.MessagesSent.WithLabelValues(kind).Inc()
}

func (m *Metrics) NotificationQueued() {
	if m == nil {
		return
	}
	m.NotificationsQueued.Inc()
}

func (m *Metrics) NotificationDropped() {
	if m == nil {
		return
	}
	m.NotificationsDropped.Inc()
}

func (m *Metrics) NotificationFailed(sink string) {
	if m == nil {
		return
	}
	m.NotificationFailures.WithLabelValues(sink).Inc()
}

func (m *Metrics) Repaired(kind string) {
	if m == nil {
		return
	}
	m.ReconcileRepairs.WithLabelValues(kind).Inc()
}

func (m *Metrics) ReconcileDone() {
	if m == nil {
		return
	}
	m.ReconcileRuns.Inc()
}

func (m *Metrics) ObserveHTTP(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}

func (m *Metrics) WSConnected(delta float64) {
	if m == nil {
		return
	}
	m.WSConnections.Add(delta)
}
