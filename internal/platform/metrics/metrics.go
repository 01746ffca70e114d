// Package metrics holds the Prometheus collectors for the booking saga,
// the outbox relay and the fact consumer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is nil-safe: a nil *Metrics records nothing.
type Metrics struct {
	sagaOutcomes     *prometheus.CounterVec
	sagaDuration     prometheus.Histogram
	consumerMessages *prometheus.CounterVec
	outboxPublished  prometheus.Counter
	outboxFailures   prometheus.Counter

	gatherer prometheus.Gatherer
}

func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		sagaOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "booking_saga_total",
			Help: "Booking sagas by terminal state.",
		}, []string{"state"}),
		sagaDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "booking_saga_duration_seconds",
			Help:    "Wall time of a booking saga.",
			Buckets: prometheus.DefBuckets,
		}),
		consumerMessages: f.NewCounterVec(prometheus.CounterOpts{
			Name: "consumer_messages_total",
			Help: "Consumed facts by outcome.",
		}, []string{"outcome"}),
		outboxPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "outbox_published_total",
			Help: "Outbox entries acknowledged by the bus.",
		}),
		outboxFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "outbox_publish_failures_total",
			Help: "Outbox publish attempts that failed.",
		}),
		gatherer: reg,
	}
}

func (m *Metrics) ObserveSaga(state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.sagaOutcomes.WithLabelValues(state).Inc()
	m.sagaDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveConsumed(outcome string) {
	if m == nil {
		return
	}
	m.consumerMessages.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveOutbox(err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.outboxFailures.Inc()
		return
	}
	m.outboxPublished.Inc()
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
