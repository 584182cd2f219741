package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOperation("upload_document", "ok", time.Second)
	m.AddFunding(0)
	m.AddFunding(2500)
	m.IncrementReadRetry("box")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Outcomes.WithLabelValues("upload_document", "ok")))
	assert.Equal(t, float64(2500), testutil.ToFloat64(m.FundingMicroAlgos))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ReadRetries.WithLabelValues("box")))
}

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveOperation("resolve", "not_found", time.Millisecond)
		m.ObserveConfirmation(time.Second)
		m.AddFunding(1)
		m.IncrementReadRetry("params")
	})
}
