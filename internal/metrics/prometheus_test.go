package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusMetrics_HTTPHandlerServes(t *testing.T) {
	pm := NewPrometheusMetrics()
	pm.UpdateSystemMetrics()

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	promhttp.HandlerFor(pm.GetRegistry(), promhttp.HandlerOpts{}).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "lanscope_system_uptime_seconds")
}

func TestPrometheusMetrics_ScanLifecycle(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.ScanStarted()
	pm.ScanStarted()
	assert.Equal(t, float64(2), testutil.ToFloat64(pm.activeScans))

	pm.ScanFinished("completed", 2*time.Second)
	pm.ScanFinished("cancelled", time.Second)
	assert.Equal(t, float64(0), testutil.ToFloat64(pm.activeScans))

	assert.Equal(t, float64(1), testutil.ToFloat64(pm.scansTotal.WithLabelValues("completed")))
	assert.Equal(t, 2, testutil.CollectAndCount(pm.scansTotal))
	assert.Equal(t, 1, testutil.CollectAndCount(pm.scanDuration))
}

func TestPrometheusMetrics_ProbeAndResolver(t *testing.T) {
	pm := NewPrometheusMetrics()

	pm.ObserveHostProbe("icmp", "alive", 3*time.Millisecond)
	pm.ObserveHostProbe("icmp", "dead", 500*time.Millisecond)
	pm.ObserveHostProbe("tcp", "alive", 10*time.Millisecond)
	assert.Equal(t, 3, testutil.CollectAndCount(pm.hostsProbed))
	assert.Equal(t, 2, testutil.CollectAndCount(pm.probeDuration))

	pm.AddPortsProbed("open", 2)
	pm.AddPortsProbed("closed", 18)
	assert.Equal(t, float64(18), testutil.ToFloat64(pm.portsProbed.WithLabelValues("closed")))

	pm.ObserveChannel("DNS", "success")
	pm.ObserveChannel("DNS", "error")
	pm.ObserveChannel("mDNS", "empty")
	assert.Equal(t, 3, testutil.CollectAndCount(pm.channelResults))

	pm.ObserveCache("range", "hit")
	pm.ObserveCache("range", "hit")
	pm.ObserveCache("identity", "miss")
	assert.Equal(t, float64(2), testutil.ToFloat64(pm.cacheLookups.WithLabelValues("range", "hit")))
}

func TestPrometheusMetrics_StartPeriodicUpdates(t *testing.T) {
	pm := NewPrometheusMetrics()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		pm.StartPeriodicUpdates(ctx, 10*time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StartPeriodicUpdates did not return after context cancellation")
	}
	assert.False(t, pm.GetLastUpdate().IsZero())
	assert.Greater(t, testutil.ToFloat64(pm.uptime), float64(0))
}

func TestPrometheusMetrics_GlobalInstance(t *testing.T) {
	assert.Same(t, GetGlobalMetrics(), GetGlobalMetrics())
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.ScanStarted()
	r.ScanFinished("completed", time.Second)
	r.ObserveHostProbe("tcp", "alive", time.Millisecond)
	r.AddPortsProbed("open", 1)
	r.ObserveChannel("ARP", "success")
	r.ObserveCache("range", "miss")
}
