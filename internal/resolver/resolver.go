// Package resolver fuses reverse DNS, platform name services, the neighbor
// table and OUI vendor data into a confidence-scored DeviceIdentity.
package resolver

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/anstrom/lanscope/internal/cache"
	"github.com/anstrom/lanscope/internal/errors"
	"github.com/anstrom/lanscope/internal/logging"
	"github.com/anstrom/lanscope/internal/metrics"
)

const (
	defaultTimeout          = 3 * time.Second
	defaultIdentityTTL      = 10 * time.Minute
	defaultBatchConcurrency = 10

	identityCacheName = "identity"
)

// Resolver resolves and caches device identities.
type Resolver struct {
	reverse   ReverseLookup
	names     NameService
	neighbors NeighborTable
	vendors   VendorLookup

	cache   *cache.TTLCache[string, DeviceIdentity]
	timeout time.Duration
	metrics metrics.Recorder
	logger  *logging.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithReverseLookup sets the reverse name lookup channel.
func WithReverseLookup(l ReverseLookup) Option {
	return func(r *Resolver) { r.reverse = l }
}

// WithNameService sets the platform name service channel.
func WithNameService(s NameService) Option {
	return func(r *Resolver) { r.names = s }
}

// WithNeighborTable sets the MAC lookup channel.
func WithNeighborTable(t NeighborTable) Option {
	return func(r *Resolver) { r.neighbors = t }
}

// WithVendorLookup sets the OUI channel.
func WithVendorLookup(v VendorLookup) Option {
	return func(r *Resolver) { r.vendors = v }
}

// WithCache replaces the identity cache.
func WithCache(c *cache.TTLCache[string, DeviceIdentity]) Option {
	return func(r *Resolver) { r.cache = c }
}

// WithTimeout bounds one ResolveDeviceInfo call.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Resolver) { r.logger = l }
}

// New creates a Resolver. Channels that are not supplied fall back to no-ops.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		reverse:   NopReverseLookup{},
		names:     NopNameService{},
		neighbors: NopNeighborTable{},
		vendors:   NopVendorLookup{},
		timeout:   defaultTimeout,
		metrics:   metrics.Nop{},
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.cache == nil {
		r.cache = cache.New[string, DeviceIdentity](identityCacheName, defaultIdentityTTL)
	}
	if r.logger == nil {
		r.logger = logging.Default()
	}
	r.logger = r.logger.WithComponent("resolver")
	return r
}

// evidence collects raw channel outputs before fusion.
type evidence struct {
	hostname string
	record   NameRecord
	mac      string
	vendor   string
}

// ResolveDeviceInfo returns the identity of ip, from cache when present.
// Channel failures lower the confidence but are never returned; an error
// means the address was invalid or ctx ended before resolution started.
func (r *Resolver) ResolveDeviceInfo(ctx context.Context, ip string) (DeviceIdentity, error) {
	if parsed := net.ParseIP(ip); parsed == nil || parsed.To4() == nil {
		return emptyIdentity(ip), errors.WrapScanErrorWithTarget(errors.CodeTargetInvalid,
			"Invalid IPv4 address", ip, fmt.Errorf("cannot parse %q", ip)).WithOperation("resolve")
	}
	if err := ctx.Err(); err != nil {
		return emptyIdentity(ip), err
	}

	if id, ok := r.cache.Get(ip); ok {
		r.metrics.ObserveCache(identityCacheName, "hit")
		return id.Clone(), nil
	}
	r.metrics.ObserveCache(identityCacheName, "miss")

	rctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ev := r.gather(rctx, ip)
	id := fuse(ip, ev)

	// An identity cut short by the caller is not worth keeping.
	if ctx.Err() == nil {
		r.cache.Set(ip, id.Clone(), 0)
	}
	return id, nil
}

// gather runs the channels concurrently. Each one settles independently;
// a failure or panic in one leaves the others untouched.
func (r *Resolver) gather(ctx context.Context, ip string) evidence {
	var (
		ev evidence
		wg sync.WaitGroup
	)

	wg.Add(3)
	go r.settle(&wg, SourceDNS, ip, func() (bool, error) {
		name, err := r.reverse.LookupAddr(ctx, ip)
		ev.hostname = name
		return name != "", err
	})
	go r.settle(&wg, r.names.Name(), ip, func() (bool, error) {
		rec, err := r.names.Lookup(ctx, ip)
		ev.record = rec
		return rec.Name != "" || rec.Description != "", err
	})
	go r.settle(&wg, SourceARP, ip, func() (bool, error) {
		mac, err := r.neighbors.LookupMAC(ctx, ip)
		if err != nil || mac == "" {
			return false, err
		}
		ev.mac = NormalizeMAC(mac)

		// Vendor depends on the MAC, so it runs on the same goroutine.
		r.settle(nil, SourceOUI, ip, func() (bool, error) {
			vendor, err := r.vendors.Vendor(ctx, ev.mac)
			ev.vendor = vendor
			return vendor != "", err
		})
		return true, nil
	})
	wg.Wait()

	if err := ctx.Err(); err != nil {
		r.logger.DebugProbe("resolution budget exhausted", ip, "error", err)
	}
	return ev
}

func (r *Resolver) settle(wg *sync.WaitGroup, channel, ip string, fn func() (bool, error)) {
	if wg != nil {
		defer wg.Done()
	}
	defer func() {
		if p := recover(); p != nil {
			r.metrics.ObserveChannel(channel, "error")
			r.logger.WarnChannel(channel, ip, fmt.Errorf("panic: %v", p))
		}
	}()

	found, err := fn()
	switch {
	case err != nil:
		r.metrics.ObserveChannel(channel, "error")
		r.logger.WarnChannel(channel, ip, errors.ErrChannelFailed(channel, ip, err))
	case found:
		r.metrics.ObserveChannel(channel, "success")
	default:
		r.metrics.ObserveChannel(channel, "empty")
	}
}

// fuse applies the channel weights in a fixed order.
func fuse(ip string, ev evidence) DeviceIdentity {
	id := emptyIdentity(ip)

	if ev.hostname != "" {
		id.Hostname = ev.hostname
		id.add(SourceDNS, weightDNS)
	}
	nameSource := ev.record.Source
	if nameSource == "" {
		nameSource = SourceMDNS
	}
	if id.Hostname == "" && ev.record.Name != "" {
		id.Hostname = ev.record.Name
		id.add(nameSource, weightNameService)
	}
	if ev.record.Description != "" {
		id.Description = ev.record.Description
		id.add(nameSource, weightDescription)
	}
	if ev.mac != "" {
		id.MAC = ev.mac
		id.add(SourceARP, weightMAC)
	}
	if ev.vendor != "" {
		id.Vendor = ev.vendor
		id.add(SourceOUI, weightVendor)
	}
	if id.Hostname == "" && id.Description == "" {
		if desc := describe(ip); desc != "" {
			id.Description = desc
			id.add("", weightDescription)
		}
	}

	id.DeviceType = classify(id.Hostname, id.Vendor, ip)
	if id.DeviceType != UnknownDeviceType {
		id.add("", weightDeviceType)
	}
	return id
}

// ResolveBatch resolves ips in chunks of maxConcurrency, each chunk finishing
// before the next starts. The result is in input order; an address that
// fails resolves to a zero-confidence identity.
func (r *Resolver) ResolveBatch(ctx context.Context, ips []string, maxConcurrency int) []DeviceIdentity {
	if maxConcurrency <= 0 {
		maxConcurrency = defaultBatchConcurrency
	}
	out := make([]DeviceIdentity, len(ips))

	for start := 0; start < len(ips); start += maxConcurrency {
		end := min(start+maxConcurrency, len(ips))

		var g errgroup.Group
		for i := start; i < end; i++ {
			g.Go(func() error {
				out[i] = r.resolveIsolated(ctx, ips[i])
				return nil
			})
		}
		_ = g.Wait()
	}
	return out
}

func (r *Resolver) resolveIsolated(ctx context.Context, ip string) (id DeviceIdentity) {
	defer func() {
		if p := recover(); p != nil {
			r.logger.WarnChannel("batch", ip, fmt.Errorf("panic: %v", p))
			id = emptyIdentity(ip)
		}
	}()
	id, err := r.ResolveDeviceInfo(ctx, ip)
	if err != nil {
		r.logger.DebugProbe("resolution failed", ip, "error", err)
		return emptyIdentity(ip)
	}
	return id
}

// ClearCache drops every cached identity and resets the counters.
func (r *Resolver) ClearCache() {
	r.cache.Clear()
	r.logger.InfoCache("cache cleared", identityCacheName)
}

// CacheStats reports identity cache counters.
func (r *Resolver) CacheStats() cache.Stats {
	return r.cache.Stats()
}
