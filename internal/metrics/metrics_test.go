package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	return testutil.ToFloat64(g)
}

func TestNew_RegistersWithoutPanicOnFreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New("vaultmind_test", reg)
	require.NotNil(t, c)
}

func TestCollector_SetIndexedDocuments_SetsLabeledGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New("vaultmind_test", reg)

	c.SetIndexedDocuments("work", "vector", 42)

	g, err := c.IndexedDocuments.GetMetricWithLabelValues("work", "vector")
	require.NoError(t, err)
	require.Equal(t, 42.0, gaugeValue(t, g))
}

func TestCollector_SetJobState_TogglesRunningFlag(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New("vaultmind_test", reg)

	c.SetJobState(true, 50, 12.5)
	require.Equal(t, 1.0, gaugeValue(t, c.JobRunning))
	require.Equal(t, 50.0, gaugeValue(t, c.JobProgress))
	require.Equal(t, 12.5, gaugeValue(t, c.JobETASeconds))

	c.SetJobState(false, 0, 0)
	require.Equal(t, 0.0, gaugeValue(t, c.JobRunning))
}

func TestCollector_SetComponentHealth_ReflectsHealthyFlag(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New("vaultmind_test", reg)

	c.SetComponentHealth("embedder", true)
	g, err := c.ComponentHealth.GetMetricWithLabelValues("embedder")
	require.NoError(t, err)
	require.Equal(t, 1.0, gaugeValue(t, g))

	c.SetComponentHealth("embedder", false)
	require.Equal(t, 0.0, gaugeValue(t, g))
}

func TestCollector_RecordSearch_ObservesLatencyAndResultCount(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New("vaultmind_test", reg)

	c.RecordSearch("hybrid", "work", 25*time.Millisecond, 7)

	mf, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, mf)
}
