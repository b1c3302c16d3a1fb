// Package metrics defines the prometheus instruments for the execution core.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	ordersTotal       *prometheus.CounterVec
	executionDuration *prometheus.HistogramVec
	partialFailures   prometheus.Counter
}

func New(registerer prometheus.Registerer) *Metrics {
	m := &Metrics{
		ordersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "brokercore",
			Name:      "orders_total",
			Help:      "Orders processed, by side and final status.",
		}, []string{"side", "status"}),
		executionDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "brokercore",
			Name:      "order_execution_seconds",
			Help:      "End-to-end PlaceOrder latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"side"}),
		partialFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "brokercore",
			Name:      "ledger_partial_applications_total",
			Help:      "Ledger mutations that were applied only in part and need reconciliation.",
		}),
	}

	registerer.MustRegister(m.ordersTotal, m.executionDuration, m.partialFailures)
	return m
}

// NewNop returns metrics bound to a throwaway registry. Used in tests.
func NewNop() *Metrics {
	return New(prometheus.NewRegistry())
}

func (m *Metrics) ObserveOrder(side, status string, duration time.Duration) {
	m.ordersTotal.WithLabelValues(side, status).Inc()
	m.executionDuration.WithLabelValues(side).Observe(duration.Seconds())
}

func (m *Metrics) IncPartialApplication() {
	m.partialFailures.Inc()
}
