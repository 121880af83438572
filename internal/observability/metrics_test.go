package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCountersIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("warelay", reg, func() float64 { return 3 })

	m.Message("inbound")
	m.Message("inbound")
	m.Message("outbound")
	m.SessionEvent("expired")
	m.AssistantOutcome("completed")

	assert.Equal(t, float64(2), testutil.ToFloat64(m.Messages.WithLabelValues("inbound")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.Messages.WithLabelValues("outbound")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.SessionEvents.WithLabelValues("expired")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.AssistantOutcomes.WithLabelValues("completed")))
}

func TestActiveSessionsGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New("warelay", reg, func() float64 { return 7 })

	assert.Equal(t, float64(7), testutil.ToFloat64(m.ActiveSessions))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.Message("inbound")
	m.SessionEvent("warned")
	m.AssistantOutcome("failed")
}
