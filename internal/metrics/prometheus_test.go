package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics_ScanCounters(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.IncrementScansTotal("completed")
	pm.IncrementScansTotal("completed")
	pm.IncrementScansTotal("drain_timeout")
	pm.IncrementPortsProbed()
	pm.IncrementOpenPorts()
	pm.IncrementHostsVisited("unknown", "alive")

	assert.Equal(t, 2.0, testutil.ToFloat64(pm.scansTotal.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.scansTotal.WithLabelValues("drain_timeout")))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.portsProbed))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.openPorts))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.hostsVisited.WithLabelValues("unknown", "alive")))
}

func TestPrometheusMetrics_Gauges(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.SetQueueDepth(7)
	pm.SetPaused(true)
	pm.RecordDiscovery(250*time.Millisecond, 4)

	assert.Equal(t, 7.0, testutil.ToFloat64(pm.queueDepth))
	assert.Equal(t, 1.0, testutil.ToFloat64(pm.paused))
	assert.Equal(t, 4.0, testutil.ToFloat64(pm.hostsDiscovered))

	pm.SetPaused(false)
	assert.Equal(t, 0.0, testutil.ToFloat64(pm.paused))
}

func TestPrometheusMetrics_HTTPHandlerServes(t *testing.T) {
	pm := NewPrometheusMetrics()
	pm.UpdateSystemMetrics()
	pm.IncrementPublishFailures("open_port")

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	promhttp.HandlerFor(pm.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.True(t, strings.Contains(body, "reconnode_system_uptime_seconds"))
	assert.True(t, strings.Contains(body, `reconnode_publish_failures_total{kind="open_port"} 1`))
}

func TestPrometheusMetrics_PeriodicUpdatesStopOnCancel(t *testing.T) {
	pm := NewPrometheusMetrics()
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		pm.StartPeriodicUpdates(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("periodic updates did not stop after cancel")
	}
	assert.Greater(t, testutil.ToFloat64(pm.uptime), 0.0)
}

func TestGetGlobalMetrics_Singleton(t *testing.T) {
	assert.Same(t, GetGlobalMetrics(), GetGlobalMetrics())
}
