package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	Exceeded       *prometheus.CounterVec
	StoreErrors    prometheus.Counter
	DegradedChecks prometheus.Counter
	CircuitOpen    prometheus.Gauge
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Exceeded: f.NewCounterVec(prometheus.CounterOpts{
			Name: "algodid_ratelimit_exceeded_total",
			Help: "Requests refused by the rate limiter, by endpoint class",
		}, []string{"class"}),
		StoreErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "algodid_ratelimit_store_errors_total",
			Help: "Failed checks against the shared rate limit store",
		}),
		DegradedChecks: f.NewCounter(prometheus.CounterOpts{
			Name: "algodid_ratelimit_degraded_checks_total",
			Help: "Checks answered by the in-memory fallback",
		}),
		CircuitOpen: f.NewGauge(prometheus.GaugeOpts{
			Name: "algodid_ratelimit_circuit_open",
			Help: "1 while the shared rate limit store is bypassed",
		}),
	}
}

func (m *Metrics) IncrementExceeded(class string) {
	if m != nil {
		m.Exceeded.WithLabelValues(class).Inc()
	}
}

func (m *Metrics) IncrementStoreErrors() {
	if m != nil {
		m.StoreErrors.Inc()
	}
}

func (m *Metrics) IncrementDegraded() {
	if m != nil {
		m.DegradedChecks.Inc()
	}
}

func (m *Metrics) SetCircuitOpen(open bool) {
	if m == nil {
		return
	}
	if open {
		m.CircuitOpen.Set(1)
		return
	}
	m.CircuitOpen.Set(0)
}
