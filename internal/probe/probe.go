// Package probe implements host liveness probing, TTL-based OS guessing and
// TCP connect port scanning behind a provider capability set.
//
// A Provider bundles the three capabilities. Detect picks the provider once at
// startup based on what the host allows: raw ICMP sockets, an installed nmap
// binary, or plain TCP connects.
package probe

import (
	"context"
	"time"
)

// Reachability is the outcome of one liveness probe. TTL is zero when the
// provider could not observe it.
type Reachability struct {
	Alive   bool          `json:"alive"`
	Latency time.Duration `json:"latency"`
	TTL     int           `json:"ttl,omitempty"`
}

// Prober performs one bounded reachability check per call. Failures are
// reported as Alive=false, never as errors.
type Prober interface {
	Probe(ctx context.Context, ip string, timeout time.Duration) Reachability
}

// PortScanner returns the open ports of ip in ascending order. It never fails;
// an unreachable host yields an empty slice.
type PortScanner interface {
	ScanPorts(ctx context.Context, ip string, ports []int, timeout time.Duration) []int
}

// OSGuesser derives an operating system guess from a probe result.
// An empty string means no guess.
type OSGuesser interface {
	GuessOS(r Reachability) string
}

// Provider is the capability set used by the scan orchestrator.
type Provider struct {
	Name     string
	Liveness Prober
	Ports    PortScanner
	OS       OSGuesser
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, ip string, timeout time.Duration) Reachability

// Probe calls f.
func (f ProberFunc) Probe(ctx context.Context, ip string, timeout time.Duration) Reachability {
	return f(ctx, ip, timeout)
}

// probeDeadline returns the earlier of now+timeout and the context deadline.
func probeDeadline(ctx context.Context, timeout time.Duration) time.Time {
	deadline := time.Now().Add(timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}
