package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for registry operations.
type Metrics struct {
	// Operation outcomes by operation and error code ("ok" on success)
	Outcomes *prometheus.CounterVec

	// End-to-end operation latency including confirmation
	Duration *prometheus.HistogramVec

	// Confirmation wait after submission
	ConfirmationLatency prometheus.Histogram

	// Minimum-balance funding paid to applications
	FundingMicroAlgos prometheus.Counter

	// Retries of read-only ledger calls
	ReadRetries *prometheus.CounterVec
}

// New creates the registry metrics and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Outcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "algodid_registry_operations_total",
			Help: "Registry operations by operation and outcome",
		}, []string{"operation", "outcome"}),

		Duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "algodid_registry_operation_duration_seconds",
			Help:    "Duration of registry operations",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40},
		}, []string{"operation"}),

		ConfirmationLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "algodid_registry_confirmation_duration_seconds",
			Help:    "Time between submission and confirmation of write groups",
			Buckets: []float64{0.5, 1, 2.5, 3.5, 5, 7.5, 10, 20, 40},
		}),

		FundingMicroAlgos: f.NewCounter(prometheus.CounterOpts{
			Name: "algodid_registry_funding_microalgos_total",
			Help: "Minimum-balance funding paid to registry applications",
		}),

		ReadRetries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "algodid_registry_read_retries_total",
			Help: "Retries of read-only ledger calls after network errors",
		}, []string{"call"}),
	}
}

// ObserveOperation records the outcome and duration of an operation.
func (m *Metrics) ObserveOperation(operation, outcome string, d time.Duration) {
	if m != nil {
		m.Outcomes.WithLabelValues(operation, outcome).Inc()
		m.Duration.WithLabelValues(operation).Observe(d.Seconds())
	}
}

// ObserveConfirmation records how long a submitted group took to confirm.
func (m *Metrics) ObserveConfirmation(d time.Duration) {
	if m != nil {
		m.ConfirmationLatency.Observe(d.Seconds())
	}
}

// AddFunding records a funding payment.
func (m *Metrics) AddFunding(microAlgos uint64) {
	if m != nil && microAlgos > 0 {
		m.FundingMicroAlgos.Add(float64(microAlgos))
	}
}

// IncrementReadRetry records a retried read.
func (m *Metrics) IncrementReadRetry(call string) {
	if m != nil {
		m.ReadRetries.WithLabelValues(call).Inc()
	}
}
