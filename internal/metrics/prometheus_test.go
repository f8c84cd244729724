package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPrometheusMetrics(t *testing.T) {
	pm := NewPrometheusMetrics()
	require.NotNil(t, pm)
	require.NotNil(t, pm.GetRegistry())
}

func TestScanCounters(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.IncrementScansTotal("internal", "success")
	pm.IncrementScansTotal("internal", "success")
	pm.IncrementScansTotal("nmap", "error")

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.scansTotal.WithLabelValues("internal", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.scansTotal.WithLabelValues("nmap", "error")))
}

func TestProbeCounters(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.IncrementProbes("open")
	pm.IncrementProbes("closed")
	pm.IncrementProbes("closed")
	pm.RecordProbeDuration("open", 5*time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(pm.probesTotal.WithLabelValues("open")))
	assert.Equal(t, 2.0, testutil.ToFloat64(pm.probesTotal.WithLabelValues("closed")))
}

func TestProcessGauges(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.SetProcessRunning("server", true)
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.processesRunning.WithLabelValues("server")))

	pm.SetProcessRunning("server", false)
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.processesRunning.WithLabelValues("server")))

	pm.IncrementProcessConflicts("tunnel")
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.processConflicts.WithLabelValues("tunnel")))
}

func TestUpdateSystemMetrics(t *testing.T) {
	pm := NewPrometheusMetrics()

	before := pm.GetLastUpdate()
	pm.UpdateSystemMetrics()
	assert.True(t, pm.GetLastUpdate().After(before))
	assert.Greater(t, testutil.ToFloat64(pm.goroutines), 0.0)
}

func TestGetGlobalMetrics(t *testing.T) {
	first := GetGlobalMetrics()
	second := GetGlobalMetrics()
	assert.Same(t, first, second)
}
