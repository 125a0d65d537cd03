package metrics

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const (
	// Namespace for all lanscope metrics
	namespace = "lanscope"

	// Subsystems
	subsystemScan     = "scan"
	subsystemProbe    = "probe"
	subsystemResolver = "resolver"
	subsystemCache    = "cache"
	subsystemSystem   = "system"
)

// PrometheusMetrics holds all Prometheus metric collectors
type PrometheusMetrics struct {
	// Scan metrics
	scansTotal   *prometheus.CounterVec
	scanDuration prometheus.Histogram
	activeScans  prometheus.Gauge

	// Probe metrics
	hostsProbed   *prometheus.CounterVec
	probeDuration *prometheus.HistogramVec
	portsProbed   *prometheus.CounterVec

	// Resolver metrics
	channelResults *prometheus.CounterVec

	// Cache metrics
	cacheLookups *prometheus.CounterVec

	// System metrics
	goroutines  prometheus.Gauge
	memoryUsage prometheus.Gauge
	uptime      prometheus.Gauge

	startTime  time.Time
	lastUpdate time.Time
	mu         sync.RWMutex
	registry   *prometheus.Registry
}

// NewPrometheusMetrics creates a new Prometheus metrics instance with all collectors
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()

	pm := &PrometheusMetrics{
		startTime: time.Now(),
		registry:  registry,
	}

	pm.initScanMetrics()
	pm.initProbeMetrics()
	pm.initResolverMetrics()
	pm.initSystemMetrics()

	registry.MustRegister(
		pm.scansTotal, pm.scanDuration, pm.activeScans,
		pm.hostsProbed, pm.probeDuration, pm.portsProbed,
		pm.channelResults, pm.cacheLookups,
		pm.goroutines, pm.memoryUsage, pm.uptime,
	)

	// Register standard Go and process collectors for runtime visibility
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	return pm
}

func (pm *PrometheusMetrics) initScanMetrics() {
	pm.scansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "total",
			Help:      "Total number of range scans by outcome",
		},
		[]string{"outcome"},
	)

	pm.scanDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "duration_seconds",
			Help:      "Duration of range scans in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1.0, 5.0, 10.0, 30.0, 60.0, 300.0},
		},
	)

	pm.activeScans = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemScan,
			Name:      "active",
			Help:      "Number of range scans currently running",
		},
	)
}

func (pm *PrometheusMetrics) initProbeMetrics() {
	pm.hostsProbed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "hosts_total",
			Help:      "Total number of liveness probes by provider and host status",
		},
		[]string{"provider", "status"},
	)

	pm.probeDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "duration_seconds",
			Help:      "Duration of liveness probes in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0, 2.0, 5.0},
		},
		[]string{"provider"},
	)

	pm.portsProbed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemProbe,
			Name:      "ports_total",
			Help:      "Total number of port connection attempts by state",
		},
		[]string{"state"},
	)
}

func (pm *PrometheusMetrics) initResolverMetrics() {
	pm.channelResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemResolver,
			Name:      "channel_results_total",
			Help:      "Identity evidence channel outcomes by channel and status",
		},
		[]string{"channel", "status"},
	)

	pm.cacheLookups = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystemCache,
			Name:      "lookups_total",
			Help:      "Cache lookups by cache and result",
		},
		[]string{"cache", "result"},
	)
}

func (pm *PrometheusMetrics) initSystemMetrics() {
	pm.memoryUsage = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "memory_bytes",
			Help:      "Current memory usage in bytes",
		},
	)

	pm.goroutines = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "goroutines",
			Help:      "Current number of goroutines",
		},
	)

	pm.uptime = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystemSystem,
			Name:      "uptime_seconds",
			Help:      "Application uptime in seconds",
		},
	)
}

// GetRegistry returns the Prometheus registry for HTTP handler
func (pm *PrometheusMetrics) GetRegistry() *prometheus.Registry {
	return pm.registry
}

// ScanStarted marks a range scan as active.
func (pm *PrometheusMetrics) ScanStarted() {
	pm.activeScans.Inc()
}

// ScanFinished records the outcome and duration of a range scan.
func (pm *PrometheusMetrics) ScanFinished(outcome string, duration time.Duration) {
	pm.activeScans.Dec()
	pm.scansTotal.WithLabelValues(outcome).Inc()
	pm.scanDuration.Observe(duration.Seconds())
}

// ObserveHostProbe records one liveness probe.
func (pm *PrometheusMetrics) ObserveHostProbe(provider, status string, duration time.Duration) {
	pm.hostsProbed.WithLabelValues(provider, status).Inc()
	pm.probeDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

// AddPortsProbed counts port connection attempts.
func (pm *PrometheusMetrics) AddPortsProbed(state string, count int) {
	pm.portsProbed.WithLabelValues(state).Add(float64(count))
}

// ObserveChannel records one identity evidence channel outcome.
func (pm *PrometheusMetrics) ObserveChannel(channel, status string) {
	pm.channelResults.WithLabelValues(channel, status).Inc()
}

// ObserveCache records a cache lookup result.
func (pm *PrometheusMetrics) ObserveCache(cache, result string) {
	pm.cacheLookups.WithLabelValues(cache, result).Inc()
}

// UpdateSystemMetrics updates all system metrics with current values
func (pm *PrometheusMetrics) UpdateSystemMetrics() {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	pm.memoryUsage.Set(float64(memStats.Alloc))
	pm.goroutines.Set(float64(runtime.NumGoroutine()))
	pm.uptime.Set(time.Since(pm.startTime).Seconds())
	pm.lastUpdate = time.Now()
}

// GetUptime returns the application uptime
func (pm *PrometheusMetrics) GetUptime() time.Duration {
	return time.Since(pm.startTime)
}

// GetLastUpdate returns the last metrics update time
func (pm *PrometheusMetrics) GetLastUpdate() time.Time {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.lastUpdate
}

// StartPeriodicUpdates updates system metrics every interval until ctx is done
func (pm *PrometheusMetrics) StartPeriodicUpdates(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pm.UpdateSystemMetrics()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.UpdateSystemMetrics()
		}
	}
}

// Global instance for easy access
var globalMetrics *PrometheusMetrics
var metricsOnce sync.Once

// GetGlobalMetrics returns the global Prometheus metrics instance
func GetGlobalMetrics() *PrometheusMetrics {
	metricsOnce.Do(func() {
		globalMetrics = NewPrometheusMetrics()
	})
	return globalMetrics
}
