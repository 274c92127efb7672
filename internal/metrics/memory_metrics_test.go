package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/23skdu/lockfree/internal/metrics"
)

// getGaugeValue retrieves the current value of a gauge metric
func getGaugeValue(t *testing.T, gauge prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	err := gauge.Write(&m)
	require.NoError(t, err)
	return m.GetGauge().GetValue()
}

// getCounterValue retrieves the current value of a counter metric
func getCounterValue(t *testing.T, counter prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	err := counter.Write(&m)
	require.NoError(t, err)
	return m.GetCounter().GetValue()
}

func TestNodeCountersPerAllocator(t *testing.T) {
	a := metrics.NodesAllocatedTotal.WithLabelValues("metrics_test_a")
	b := metrics.NodesAllocatedTotal.WithLabelValues("metrics_test_b")
	beforeA, beforeB := getCounterValue(t, a), getCounterValue(t, b)

	a.Add(3)
	b.Inc()

	assert.Equal(t, beforeA+3, getCounterValue(t, a))
	assert.Equal(t, beforeB+1, getCounterValue(t, b), "labels are independent")
}

func TestNodesLiveTracksAllocFree(t *testing.T) {
	live := metrics.NodesLive.WithLabelValues("metrics_test_live")
	before := getGaugeValue(t, live)

	for i := 0; i < 5; i++ {
		live.Inc()
	}
	live.Sub(5)
	assert.Equal(t, before, getGaugeValue(t, live))
}

func TestHazardMetricsRegistration(t *testing.T) {
	tests := []struct {
		name      string
		collector prometheus.Collector
	}{
		{"slots_in_use", metrics.HazardSlotsInUse.WithLabelValues("metrics_test")},
		{"exhausted", metrics.HazardExhaustedTotal.WithLabelValues("metrics_test")},
		{"retired", metrics.HazardRetiredNodes.WithLabelValues("metrics_test")},
		{"scans", metrics.HazardScansTotal.WithLabelValues("metrics_test")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotNil(t, tt.collector)
		})
	}
}

func TestRetiredNodesGauge(t *testing.T) {
	g := metrics.HazardRetiredNodes.WithLabelValues("metrics_test_retired")
	before := getGaugeValue(t, g)

	g.Add(4)
	assert.Equal(t, before+4, getGaugeValue(t, g))
	g.Sub(4)
	assert.Equal(t, before, getGaugeValue(t, g))
}
