package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MessageSent("text")
		m.NotificationDropped()
		m.NotificationFailed("push")
		m.ObserveHTTP("GET", "/x", 200, time.Millisecond)
		m.WSConnected(1)
	})
}

func TestCountersIncrement(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.MessageSent("text")
	m.MessageSent("text")
	m.NotificationDropped()
	m.Repaired("last_message")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesSent.WithLabelValues("text")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ReconcileRepairs.WithLabelValues("last_message")))
}
