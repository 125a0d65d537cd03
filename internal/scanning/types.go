package scanning

import (
	"fmt"
	"time"

	"github.com/anstrom/lanscope/internal/resolver"
)

const (
	// DefaultConcurrencyLimit is the batch size used when a request leaves it unset.
	DefaultConcurrencyLimit = 10

	// DefaultTimeoutMS is the per-host budget suggested to callers.
	DefaultTimeoutMS = 2000
)

// ScanRequest describes one range scan. It is treated as immutable once
// submitted.
type ScanRequest struct {
	// BaseIP is the three-octet network prefix, e.g. "192.168.1".
	BaseIP     string `json:"baseIp" validate:"required,baseip"`
	StartRange int    `json:"startRange" validate:"min=1,max=254"`
	EndRange   int    `json:"endRange" validate:"min=1,max=254,gtefield=StartRange"`

	Ports     []int `json:"ports" validate:"required,min=1,dive,min=1,max=65535"`
	TimeoutMS int   `json:"timeoutMs" validate:"min=100,max=30000"`

	// ConcurrencyLimit is the batch size; zero means DefaultConcurrencyLimit.
	ConcurrencyLimit int `json:"concurrencyLimit,omitempty" validate:"omitempty,min=1,max=100"`

	// BatchPause overrides the orchestrator's pause between batches when positive.
	BatchPause time.Duration `json:"batchPause,omitempty" validate:"min=0"`

	// Fresh skips the cache read. The result is still written through.
	Fresh bool `json:"fresh,omitempty"`
}

// Timeout returns the per-host budget.
func (r ScanRequest) Timeout() time.Duration {
	return time.Duration(r.TimeoutMS) * time.Millisecond
}

// BatchSize returns the effective concurrency limit.
func (r ScanRequest) BatchSize() int {
	if r.ConcurrencyLimit <= 0 {
		return DefaultConcurrencyLimit
	}
	return r.ConcurrencyLimit
}

// Key returns the cache key of the request's range.
func (r ScanRequest) Key() RangeKey {
	return RangeKey{BaseIP: r.BaseIP, Start: r.StartRange, End: r.EndRange}
}

// RangeKey identifies a cached scan result. Only an identical triple
// matches; a sub-range of a cached range is a different key.
type RangeKey struct {
	BaseIP string `json:"baseIp"`
	Start  int    `json:"startRange"`
	End    int    `json:"endRange"`
}

// String renders the key as "192.168.1.1-254".
func (k RangeKey) String() string {
	return fmt.Sprintf("%s.%d-%d", k.BaseIP, k.Start, k.End)
}

// Addresses lists every address in the range in ascending order.
func (k RangeKey) Addresses() []string {
	if k.End < k.Start {
		return nil
	}
	ips := make([]string, 0, k.End-k.Start+1)
	for octet := k.Start; octet <= k.End; octet++ {
		ips = append(ips, fmt.Sprintf("%s.%d", k.BaseIP, octet))
	}
	return ips
}

// HostResult describes one live host. Dead hosts never get a HostResult.
type HostResult struct {
	IP        string                  `json:"ip"`
	Alive     bool                    `json:"alive"`
	Latency   time.Duration           `json:"latency"`
	TTL       int                     `json:"ttl,omitempty"`
	OpenPorts []int                   `json:"openPorts"`
	Services  map[int]string          `json:"services"`
	OS        string                  `json:"os,omitempty"`
	Identity  resolver.DeviceIdentity `json:"identity"`
}

// ScanResult is the outcome of one range scan. Hosts are in ascending
// address order regardless of completion order.
type ScanResult struct {
	ID        string        `json:"id"`
	Range     RangeKey      `json:"range"`
	Hosts     []HostResult  `json:"hosts"`
	Scanned   int           `json:"scanned"`
	StartedAt time.Time     `json:"startedAt"`
	Duration  time.Duration `json:"duration"`
	Provider  string        `json:"provider,omitempty"`

	// Cancelled is set when CancelScan stopped the scan early. Hosts then
	// holds the batches that had already started.
	Cancelled bool `json:"cancelled,omitempty"`

	// FromCache is set on results served from the range cache.
	FromCache bool `json:"fromCache,omitempty"`

	// Warnings carries non-fatal problems such as cache faults.
	Warnings []string `json:"warnings,omitempty"`
}

// clone copies the result deeply enough that callers cannot mutate a cached value.
func (r *ScanResult) clone() *ScanResult {
	c := *r
	c.Hosts = make([]HostResult, len(r.Hosts))
	for i, h := range r.Hosts {
		h.OpenPorts = append([]int{}, h.OpenPorts...)
		services := make(map[int]string, len(h.Services))
		for p, s := range h.Services {
			services[p] = s
		}
		h.Services = services
		h.Identity = h.Identity.Clone()
		c.Hosts[i] = h
	}
	c.Warnings = append([]string(nil), r.Warnings...)
	return &c
}

// Progress is emitted after every completed host.
type Progress struct {
	Completed            int     `json:"completed"`
	Total                int     `json:"total"`
	Percentage           float64 `json:"percentage"`
	CurrentIP            string  `json:"currentIp"`
	ElapsedMS            int64   `json:"elapsedMs"`
	EstimatedRemainingMS int64   `json:"estimatedRemainingMs"`
	HostsPerSecond       float64 `json:"hostsPerSecond"`
}

// newProgress computes the derived fields. Speed is zero until time has
// elapsed, and the estimate is zero until the speed is known.
func newProgress(completed, total int, ip string, elapsed time.Duration) Progress {
	p := Progress{
		Completed: completed,
		Total:     total,
		CurrentIP: ip,
		ElapsedMS: elapsed.Milliseconds(),
	}
	if total > 0 {
		p.Percentage = float64(completed) / float64(total) * 100
	}
	if secs := elapsed.Seconds(); secs > 0 {
		p.HostsPerSecond = float64(completed) / secs
	}
	if p.HostsPerSecond > 0 {
		remaining := float64(total-completed) / p.HostsPerSecond
		p.EstimatedRemainingMS = int64(remaining * 1000)
	}
	return p
}
