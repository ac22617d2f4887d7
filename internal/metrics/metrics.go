// Package metrics exposes Prometheus counters for purchases and backend calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "payment_gateway"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	purchases    *prometheus.CounterVec
	backendCalls *prometheus.HistogramVec
	circuitOpen  *prometheus.CounterVec
}

// New registers the collectors on reg. Tests pass a fresh registry so runs
// stay hermetic.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		purchases: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purchases_total",
			Help:      "Terminal purchase outcomes by backend, phase and outcome.",
		}, []string{"backend", "phase", "outcome"}),
		backendCalls: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_call_duration_seconds",
			Help:      "Latency of calls into payment backends.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "operation"}),
		circuitOpen: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_open_rejections_total",
			Help:      "Backend calls refused because the circuit was open.",
		}, []string{"backend"}),
	}
}

func (m *Metrics) ObservePurchase(backend, phase, outcome string) {
	if m == nil {
		return
	}
	m.purchases.WithLabelValues(backend, phase, outcome).Inc()
}

func (m *Metrics) ObserveBackendCall(backend, operation string, d time.Duration) {
	if m == nil {
		return
	}
	m.backendCalls.WithLabelValues(backend, operation).Observe(d.Seconds())
}

func (m *Metrics) CircuitOpen(backend string) {
	if m == nil {
		return
	}
	m.circuitOpen.WithLabelValues(backend).Inc()
}

// PurchasesCounter is exposed for tests.
func (m *Metrics) PurchasesCounter() *prometheus.CounterVec { return m.purchases }

func (m *Metrics) CircuitOpenCounter() *prometheus.CounterVec { return m.circuitOpen }
