package scanning

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anstrom/lanscope/internal/cache"
	"github.com/anstrom/lanscope/internal/errors"
	"github.com/anstrom/lanscope/internal/probe"
	"github.com/anstrom/lanscope/internal/resolver"
)

// simNetwork is a simulated LAN. Hosts missing from alive are dead.
type simNetwork struct {
	alive map[string]probe.Reachability
	open  map[string][]int
	delay func(ip string) time.Duration
	gate  chan struct{}

	mu        sync.Mutex
	probes    map[string]int
	portScans map[string]int
	inFlight  int
	peak      int
}

func newSimNetwork() *simNetwork {
	return &simNetwork{
		alive:     map[string]probe.Reachability{},
		open:      map[string][]int{},
		probes:    map[string]int{},
		portScans: map[string]int{},
	}
}

func (n *simNetwork) up(ip string, ttl int, ports ...int) *simNetwork {
	n.alive[ip] = probe.Reachability{Alive: true, Latency: time.Millisecond, TTL: ttl}
	n.open[ip] = ports
	return n
}

func (n *simNetwork) Probe(ctx context.Context, ip string, _ time.Duration) probe.Reachability {
	n.mu.Lock()
	n.probes[ip]++
	n.inFlight++
	n.peak = max(n.peak, n.inFlight)
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		n.inFlight--
		n.mu.Unlock()
	}()

	if n.gate != nil {
		select {
		case <-n.gate:
		case <-ctx.Done():
			return probe.Reachability{}
		}
	}
	if n.delay != nil {
		time.Sleep(n.delay(ip))
	}
	return n.alive[ip]
}

func (n *simNetwork) ScanPorts(_ context.Context, ip string, ports []int, _ time.Duration) []int {
	n.mu.Lock()
	n.portScans[ip]++
	n.mu.Unlock()

	open := []int{}
	for _, p := range n.open[ip] {
		if slices.Contains(ports, p) {
			open = append(open, p)
		}
	}
	slices.Sort(open)
	return open
}

func (n *simNetwork) totalProbes() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	total := 0
	for _, c := range n.probes {
		total += c
	}
	return total
}

func (n *simNetwork) provider() *probe.Provider {
	return &probe.Provider{Name: "sim", Liveness: n, Ports: n, OS: probe.TTLGuesser{}}
}

type simResolver struct {
	mu    sync.Mutex
	calls map[string]int
	panic bool
}

func (r *simResolver) ResolveDeviceInfo(_ context.Context, ip string) (resolver.DeviceIdentity, error) {
	r.mu.Lock()
	if r.calls == nil {
		r.calls = map[string]int{}
	}
	r.calls[ip]++
	r.mu.Unlock()
	if r.panic {
		panic("resolver exploded")
	}
	return resolver.DeviceIdentity{IP: ip, Hostname: "host-" + ip, Confidence: 30, Sources: []string{resolver.SourceDNS}}, nil
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) listen(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) ofType(t EventType) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

func newTestOrchestrator(t *testing.T, net *simNetwork, opts ...Option) (*Orchestrator, *simResolver, *eventLog) {
	t.Helper()
	res := &simResolver{}
	log := &eventLog{}
	opts = append([]Option{WithResolver(res), WithListener(log.listen)}, opts...)
	o, err := NewOrchestrator(net.provider(), opts...)
	require.NoError(t, err)
	return o, res, log
}

func exampleRequest() ScanRequest {
	return ScanRequest{BaseIP: "192.168.1", StartRange: 1, EndRange: 5, Ports: []int{22, 80}, TimeoutMS: 500}
}

func TestScanNetwork_SingleLiveHost(t *testing.T) {
	net := newSimNetwork().up("192.168.1.1", 64, 80, 443)
	o, res, _ := newTestOrchestrator(t, net)

	result, err := o.ScanNetwork(context.Background(), exampleRequest())
	require.NoError(t, err)

	require.Len(t, result.Hosts, 1)
	host := result.Hosts[0]
	assert.Equal(t, "192.168.1.1", host.IP)
	assert.True(t, host.Alive)
	assert.Equal(t, []int{80}, host.OpenPorts)
	assert.Equal(t, map[int]string{80: "HTTP"}, host.Services)
	assert.Equal(t, probe.OSLinuxUnix, host.OS)
	assert.Equal(t, "host-192.168.1.1", host.Identity.Hostname)

	assert.Equal(t, 5, result.Scanned)
	assert.False(t, result.Cancelled)
	assert.False(t, result.FromCache)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, "sim", result.Provider)
	assert.Equal(t, OutcomeCompleted, o.LastOutcome())
	assert.Equal(t, StateIdle, o.State())

	// Dead hosts are never port scanned or resolved.
	for i := 2; i <= 5; i++ {
		ip := fmt.Sprintf("192.168.1.%d", i)
		assert.Equal(t, 1, net.probes[ip], ip)
		assert.Zero(t, net.portScans[ip], ip)
		assert.Zero(t, res.calls[ip], ip)
	}
}

func TestScanNetwork_AscendingOrderWithinRange(t *testing.T) {
	net := newSimNetwork()
	for i := 10; i <= 40; i += 3 {
		net.up(fmt.Sprintf("10.0.0.%d", i), 128)
	}
	// Later addresses answer first.
	net.delay = func(ip string) time.Duration {
		var last int
		_, _ = fmt.Sscanf(ip, "10.0.0.%d", &last)
		return time.Duration(50-last) * time.Millisecond / 5
	}
	o, _, _ := newTestOrchestrator(t, net)

	req := ScanRequest{BaseIP: "10.0.0", StartRange: 10, EndRange: 40, Ports: []int{22}, TimeoutMS: 500, ConcurrencyLimit: 8}
	result, err := o.ScanNetwork(context.Background(), req)
	require.NoError(t, err)

	require.Len(t, result.Hosts, 11)
	prev := 0
	for _, h := range result.Hosts {
		var last int
		_, err := fmt.Sscanf(h.IP, "10.0.0.%d", &last)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, last, req.StartRange)
		assert.LessOrEqual(t, last, req.EndRange)
		assert.Greater(t, last, prev)
		prev = last
		assert.Equal(t, probe.OSWindows, h.OS)
	}
}

func TestScanNetwork_CacheHitIssuesNoProbes(t *testing.T) {
	net := newSimNetwork().up("192.168.1.1", 64, 80)
	o, _, log := newTestOrchestrator(t, net)
	ctx := context.Background()

	first, err := o.ScanNetwork(ctx, exampleRequest())
	require.NoError(t, err)
	probes := net.totalProbes()

	second, err := o.ScanNetwork(ctx, exampleRequest())
	require.NoError(t, err)

	assert.Equal(t, probes, net.totalProbes())
	assert.True(t, second.FromCache)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.Hosts, second.Hosts)
	assert.Equal(t, OutcomeCacheHit, o.LastOutcome())
	assert.Len(t, log.ofType(EventCacheHit), 1)

	stats := o.CacheStats()
	assert.Equal(t, uint64(1), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate, 1e-9)

	// Mutating a returned result does not leak into the cache.
	second.Hosts[0].OpenPorts[0] = 9999
	third, err := o.ScanNetwork(ctx, exampleRequest())
	require.NoError(t, err)
	assert.Equal(t, []int{80}, third.Hosts[0].OpenPorts)
}

func TestScanNetwork_EventResultsAreCopies(t *testing.T) {
	net := newSimNetwork().up("192.168.1.1", 64, 80)
	tamper := func(e Event) {
		if e.Result != nil && len(e.Result.Hosts) > 0 {
			e.Result.Hosts[0].OpenPorts[0] = 9999
			e.Result.Hosts = nil
		}
	}
	o, _, _ := newTestOrchestrator(t, net, WithListener(tamper))
	ctx := context.Background()

	first, err := o.ScanNetwork(ctx, exampleRequest())
	require.NoError(t, err)
	require.Len(t, first.Hosts, 1)
	assert.Equal(t, []int{80}, first.Hosts[0].OpenPorts)

	cached, err := o.ScanNetwork(ctx, exampleRequest())
	require.NoError(t, err)
	require.True(t, cached.FromCache)
	require.Len(t, cached.Hosts, 1)
	assert.Equal(t, []int{80}, cached.Hosts[0].OpenPorts)
}

func TestScanNetwork_FreshAndSubRangeMiss(t *testing.T) {
	net := newSimNetwork().up("192.168.1.1", 64, 80)
	o, _, _ := newTestOrchestrator(t, net)
	ctx := context.Background()

	full := exampleRequest()
	full.EndRange = 10
	_, err := o.ScanNetwork(ctx, full)
	require.NoError(t, err)
	before := net.totalProbes()

	sub := exampleRequest()
	result, err := o.ScanNetwork(ctx, sub)
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Equal(t, before+5, net.totalProbes())

	fresh := full
	fresh.Fresh = true
	result, err = o.ScanNetwork(ctx, fresh)
	require.NoError(t, err)
	assert.False(t, result.FromCache)
	assert.Equal(t, before+15, net.totalProbes())
}

func TestScanNetwork_InvalidRequest(t *testing.T) {
	net := newSimNetwork()
	o, _, _ := newTestOrchestrator(t, net)

	req := exampleRequest()
	req.StartRange, req.EndRange = 20, 10

	result, err := o.ScanNetwork(context.Background(), req)
	require.Error(t, err)
	assert.Nil(t, result)
	assert.True(t, errors.IsCode(err, errors.CodeConfiguration))
	assert.True(t, errors.IsFatal(err))
	assert.Zero(t, net.totalProbes())
	assert.Equal(t, OutcomeFailed, o.LastOutcome())
	assert.Equal(t, StateIdle, o.State())
}

func TestScanNetwork_ConcurrentScanRejected(t *testing.T) {
	net := newSimNetwork().up("192.168.1.1", 64, 80)
	net.gate = make(chan struct{})
	o, _, _ := newTestOrchestrator(t, net)

	done := make(chan error, 1)
	go func() {
		_, err := o.ScanNetwork(context.Background(), exampleRequest())
		done <- err
	}()

	require.Eventually(t, func() bool { return o.Status().Slots != nil }, time.Second, time.Millisecond)

	_, err := o.ScanNetwork(context.Background(), exampleRequest())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.CodeScanInProgress))

	status := o.Status()
	assert.Equal(t, StateScanning, status.State)
	require.NotNil(t, status.Slots)
	assert.Equal(t, DefaultConcurrencyLimit, status.Slots.Capacity)

	close(net.gate)
	require.NoError(t, <-done)
	assert.Equal(t, OutcomeCompleted, o.LastOutcome())
}

// budgetPorts records the budget the port scanner was given.
type budgetPorts struct {
	mu       sync.Mutex
	timeout  time.Duration
	deadline time.Duration
}

func (b *budgetPorts) ScanPorts(ctx context.Context, _ string, _ []int, timeout time.Duration) []int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timeout = timeout
	if d, ok := ctx.Deadline(); ok {
		b.deadline = time.Until(d)
	}
	return []int{}
}

func TestScanNetwork_HostWindowCoversAllPhases(t *testing.T) {
	net := newSimNetwork().up("192.168.1.1", 64)
	net.delay = func(string) time.Duration { return 150 * time.Millisecond }
	ports := &budgetPorts{}

	o, err := NewOrchestrator(&probe.Provider{Name: "sim", Liveness: net, Ports: ports})
	require.NoError(t, err)

	req := ScanRequest{BaseIP: "192.168.1", StartRange: 1, EndRange: 1, Ports: []int{80}, TimeoutMS: 400}
	result, err := o.ScanNetwork(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, result.Hosts, 1)

	ports.mu.Lock()
	defer ports.mu.Unlock()
	assert.Positive(t, ports.timeout)
	assert.LessOrEqual(t, ports.timeout, 250*time.Millisecond)
	assert.Positive(t, ports.deadline)
	assert.LessOrEqual(t, ports.deadline, 250*time.Millisecond)
}

func TestScanNetwork_ConcurrencyBound(t *testing.T) {
	net := newSimNetwork()
	for i := 1; i <= 30; i++ {
		net.up(fmt.Sprintf("10.1.1.%d", i), 64)
	}
	net.delay = func(string) time.Duration { return 5 * time.Millisecond }
	o, _, _ := newTestOrchestrator(t, net)

	req := ScanRequest{BaseIP: "10.1.1", StartRange: 1, EndRange: 30, Ports: []int{80}, TimeoutMS: 500, ConcurrencyLimit: 4}
	result, err := o.ScanNetwork(context.Background(), req)
	require.NoError(t, err)
	assert.Len(t, result.Hosts, 30)
	assert.LessOrEqual(t, net.peak, 4)
	assert.Positive(t, net.peak)
}

func TestScanNetwork_CancelAfterFirstBatch(t *testing.T) {
	net := newSimNetwork()
	for i := 1; i <= 9; i++ {
		net.up(fmt.Sprintf("192.168.5.%d", i), 64)
	}

	var o *Orchestrator
	var mu sync.Mutex
	var progress []Progress
	cancelOnFirstBatch := func(e Event) {
		if e.Type != EventProgress {
			return
		}
		mu.Lock()
		progress = append(progress, *e.Progress)
		mu.Unlock()
		if e.Progress.Completed == 3 {
			o.CancelScan()
		}
	}
	o, _, log := newTestOrchestrator(t, net, WithListener(cancelOnFirstBatch))

	req := ScanRequest{BaseIP: "192.168.5", StartRange: 1, EndRange: 9, Ports: []int{22}, TimeoutMS: 500, ConcurrencyLimit: 3}
	result, err := o.ScanNetwork(context.Background(), req)
	require.NoError(t, err)

	assert.True(t, result.Cancelled)
	assert.Equal(t, 3, result.Scanned)
	require.Len(t, result.Hosts, 3)
	for i, h := range result.Hosts {
		assert.Equal(t, fmt.Sprintf("192.168.5.%d", i+1), h.IP)
	}
	assert.Equal(t, 3, net.totalProbes())

	mu.Lock()
	require.Len(t, progress, 3)
	assert.Equal(t, 3, progress[len(progress)-1].Completed)
	mu.Unlock()

	assert.Len(t, log.ofType(EventScanCancelled), 1)
	assert.Empty(t, log.ofType(EventScanComplete))
	assert.Equal(t, OutcomeCancelled, o.LastOutcome())

	// Cancelled results are not cached.
	again, err := o.ScanNetwork(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, again.FromCache)
}

func TestScanNetwork_IdleCancelDoesNotLeak(t *testing.T) {
	net := newSimNetwork().up("192.168.1.2", 64)
	o, _, _ := newTestOrchestrator(t, net)

	o.CancelScan()
	result, err := o.ScanNetwork(context.Background(), exampleRequest())
	require.NoError(t, err)
	assert.False(t, result.Cancelled)
	assert.Len(t, result.Hosts, 1)
}

func TestScanNetwork_ContextCancelledBeforeStart(t *testing.T) {
	net := newSimNetwork().up("192.168.1.2", 64)
	o, _, _ := newTestOrchestrator(t, net)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := o.ScanNetwork(ctx, exampleRequest())
	require.NoError(t, err)
	assert.True(t, result.Cancelled)
	assert.Empty(t, result.Hosts)
	assert.Zero(t, net.totalProbes())
}

func TestScanNetwork_Progress(t *testing.T) {
	net := newSimNetwork().up("192.168.1.3", 64)
	o, _, log := newTestOrchestrator(t, net)

	_, err := o.ScanNetwork(context.Background(), exampleRequest())
	require.NoError(t, err)

	events := log.ofType(EventProgress)
	require.Len(t, events, 5)
	for i, e := range events {
		assert.Equal(t, i+1, e.Progress.Completed)
		assert.Equal(t, 5, e.Progress.Total)
		assert.NotEmpty(t, e.Progress.CurrentIP)
		assert.GreaterOrEqual(t, e.Progress.HostsPerSecond, float64(0))
	}
	last := events[len(events)-1].Progress
	assert.InDelta(t, 100.0, last.Percentage, 1e-9)
	assert.Zero(t, last.EstimatedRemainingMS)

	discovered := log.ofType(EventHostDiscovered)
	require.Len(t, discovered, 1)
	assert.Equal(t, "192.168.1.3", discovered[0].Host.IP)
	assert.Len(t, log.ofType(EventScanComplete), 1)
}

func TestNewProgress(t *testing.T) {
	p := newProgress(0, 10, "10.0.0.1", 0)
	assert.Zero(t, p.HostsPerSecond)
	assert.Zero(t, p.EstimatedRemainingMS)

	p = newProgress(5, 10, "10.0.0.5", 2*time.Second)
	assert.InDelta(t, 2.5, p.HostsPerSecond, 1e-9)
	assert.Equal(t, int64(2000), p.EstimatedRemainingMS)
	assert.InDelta(t, 50.0, p.Percentage, 1e-9)
	assert.Equal(t, int64(2000), p.ElapsedMS)

	assert.Zero(t, newProgress(0, 0, "", time.Second).Percentage)
}

type faultyCache struct{}

func (faultyCache) Get(context.Context, RangeKey) (*ScanResult, bool, error) {
	return nil, false, fmt.Errorf("store offline")
}

func (faultyCache) Set(context.Context, RangeKey, *ScanResult) error { return fmt.Errorf("store offline") }

func (faultyCache) Clear(context.Context) error { return fmt.Errorf("store offline") }

func (faultyCache) Stats() cache.Stats { return cache.Stats{} }

func TestScanNetwork_CacheFaultStillScans(t *testing.T) {
	net := newSimNetwork().up("192.168.1.1", 64, 22)
	o, _, log := newTestOrchestrator(t, net, WithResultCache(faultyCache{}))

	result, err := o.ScanNetwork(context.Background(), exampleRequest())
	require.NoError(t, err)
	assert.Len(t, result.Hosts, 1)
	require.Len(t, result.Warnings, 2)
	assert.Contains(t, result.Warnings[0], "CACHE_FAILURE")

	faults := log.ofType(EventCacheError)
	require.Len(t, faults, 2)
	assert.True(t, errors.IsCode(faults[0].Err, errors.CodeCacheFailure))

	err = o.ClearCache(context.Background())
	assert.True(t, errors.IsCode(err, errors.CodeCacheFailure))
}

func TestScanNetwork_ResolverPanicIsContained(t *testing.T) {
	net := newSimNetwork().up("192.168.1.4", 64, 22)
	o, res, _ := newTestOrchestrator(t, net)
	res.panic = true

	result, err := o.ScanNetwork(context.Background(), exampleRequest())
	require.NoError(t, err)
	require.Len(t, result.Hosts, 1)
	assert.Equal(t, []int{22}, result.Hosts[0].OpenPorts)
	assert.Zero(t, result.Hosts[0].Identity.Confidence)
	assert.Empty(t, result.Hosts[0].Identity.Sources)
}

func TestClearCache(t *testing.T) {
	net := newSimNetwork().up("192.168.1.1", 64)
	o, _, _ := newTestOrchestrator(t, net)
	ctx := context.Background()

	_, err := o.ScanNetwork(ctx, exampleRequest())
	require.NoError(t, err)
	assert.Equal(t, 1, o.CacheStats().Keys)

	require.NoError(t, o.ClearCache(ctx))
	stats := o.CacheStats()
	assert.Zero(t, stats.Keys)
	assert.Zero(t, stats.Hits)
	assert.Zero(t, stats.Misses)
}

func TestNewOrchestrator_RequiresProvider(t *testing.T) {
	_, err := NewOrchestrator(nil)
	assert.True(t, errors.IsCode(err, errors.CodeConfiguration))

	_, err = NewOrchestrator(&probe.Provider{Name: "empty"})
	assert.Error(t, err)
}

func TestRangeKey(t *testing.T) {
	k := RangeKey{BaseIP: "10.0.0", Start: 250, End: 254}
	assert.Equal(t, "10.0.0.250-254", k.String())
	assert.Equal(t, []string{"10.0.0.250", "10.0.0.251", "10.0.0.252", "10.0.0.253", "10.0.0.254"}, k.Addresses())
	assert.Nil(t, RangeKey{BaseIP: "10.0.0", Start: 5, End: 4}.Addresses())
}
