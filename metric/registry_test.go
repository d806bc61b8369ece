package metric

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsRegistry(t *testing.T) {
	r := NewMetricsRegistry()
	require.NotNil(t, r.CoreMetrics())
	require.NotNil(t, r.PrometheusRegistry())

	// Core metrics are live immediately.
	r.Metrics.ManifestsResolved.Inc()
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Metrics.ManifestsResolved))

	r.Metrics.ItemsRouted.WithLabelValues("grill-kds", "display").Add(3)
	assert.Equal(t, 3.0,
		testutil.ToFloat64(r.Metrics.ItemsRouted.WithLabelValues("grill-kds", "display")))
}

func TestRegister_Duplicate(t *testing.T) {
	r := NewMetricsRegistry()

	c := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_test_counter",
		Help: "test",
	})
	require.NoError(t, r.Register("dispatch", "test_counter", c))

	c2 := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dispatch_test_counter_other",
		Help: "test",
	})
	err := r.Register("dispatch", "test_counter", c2)
	assert.Error(t, err, "same component.name key must be rejected")
}

func TestUnregister(t *testing.T) {
	r := NewMetricsRegistry()

	c := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "display_backlog",
		Help: "test",
	})
	require.NoError(t, r.Register("display", "backlog", c))

	assert.True(t, r.Unregister("display", "backlog"))
	assert.False(t, r.Unregister("display", "backlog"), "second unregister is a no-op")

	// Key is free for re-registration after unregister.
	assert.NoError(t, r.Register("display", "backlog", c))
}
