// Package observability groups the relay's Prometheus instruments.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the relay. Methods
// are nil-safe so tests can pass a nil handle.
type Metrics struct {
	ActiveSessions    prometheus.GaugeFunc
	Messages          *prometheus.CounterVec
	SessionEvents     *prometheus.CounterVec
	AssistantOutcomes *prometheus.CounterVec
}

// New registers the relay's instruments with the given registerer. The
// activeSessions callback is sampled on scrape.
func New(namespace string, reg prometheus.Registerer, activeSessions func() float64) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ActiveSessions: factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_sessions",
			Help:      "Number of live user sessions.",
		}, activeSessions),
		Messages: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Messages by direction.",
		}, []string{"direction"}),
		SessionEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "session_events_total",
			Help:      "Session lifecycle events by type.",
		}, []string{"event"}),
		AssistantOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "assistant_outcomes_total",
			Help:      "Assistant run outcomes by status.",
		}, []string{"status"}),
	}
}

// Message counts an inbound or outbound message.
func (m *Metrics) Message(direction string) {
	if m == nil {
		return
	}
	m.Messages.WithLabelValues(direction).Inc()
}

// SessionEvent counts a session lifecycle event
// (created, restarted, warned, expired).
func (m *Metrics) SessionEvent(event string) {
	if m == nil {
		return
	}
	m.SessionEvents.WithLabelValues(event).Inc()
}

// AssistantOutcome counts an assistant run result by status.
func (m *Metrics) AssistantOutcome(status string) {
	if m == nil {
		return
	}
	m.AssistantOutcomes.WithLabelValues(status).Inc()
}

// Handler returns the scrape endpoint handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
