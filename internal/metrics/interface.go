// Package metrics provides Prometheus-based metrics for lanscope scans,
// probes, resolution channels and caches.
package metrics

import "time"

// Recorder is the metrics surface the engine components write to.
// It allows components to run without a Prometheus registry in tests.
type Recorder interface {
	// ScanStarted marks a range scan as active.
	ScanStarted()

	// ScanFinished records the outcome and duration of a range scan.
	ScanFinished(outcome string, duration time.Duration)

	// ObserveHostProbe records one liveness probe.
	ObserveHostProbe(provider, status string, duration time.Duration)

	// AddPortsProbed counts port connection attempts by resulting state.
	AddPortsProbed(state string, count int)

	// ObserveChannel records one identity evidence channel outcome.
	ObserveChannel(channel, status string)

	// ObserveCache records a cache lookup result (hit, miss, error).
	ObserveCache(cache, result string)
}

// Ensure that PrometheusMetrics implements Recorder.
var _ Recorder = (*PrometheusMetrics)(nil)

// Nop discards every observation.
type Nop struct{}

func (Nop) ScanStarted() {}
func (Nop) ScanFinished(string, time.Duration) {}
func (Nop) ObserveHostProbe(string, string, time.Duration) {}
func (Nop) AddPortsProbed(string, int) {}
func (Nop) ObserveChannel(string, string) {}
func (Nop) ObserveCache(string, string) {}
