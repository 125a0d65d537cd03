package scanning

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/anstrom/lanscope/internal/cache"
	"github.com/anstrom/lanscope/internal/errors"
	"github.com/anstrom/lanscope/internal/logging"
	"github.com/anstrom/lanscope/internal/metrics"
	"github.com/anstrom/lanscope/internal/probe"
	"github.com/anstrom/lanscope/internal/resolver"
)

// State is the orchestrator's position in the scan lifecycle.
type State string

// Orchestrator states.
const (
	StateIdle       State = "idle"
	StateValidating State = "validating"
	StateScanning   State = "scanning"
)

// Outcome is how the most recent scan ended.
type Outcome string

// Scan outcomes.
const (
	OutcomeNone      Outcome = ""
	OutcomeCacheHit  Outcome = "cache-hit"
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

const rangeCacheName = "range"

// IdentityResolver resolves the identity of a live host.
type IdentityResolver interface {
	ResolveDeviceInfo(ctx context.Context, ip string) (resolver.DeviceIdentity, error)
}

// cancelToken is created per scan so a stale cancel cannot reach a later scan.
type cancelToken struct {
	once sync.Once
	done chan struct{}
}

func newCancelToken() *cancelToken {
	return &cancelToken{done: make(chan struct{})}
}

func (t *cancelToken) cancel() {
	t.once.Do(func() { close(t.done) })
}

func (t *cancelToken) cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Orchestrator runs range scans: validation, cache lookup, batched probing,
// progress reporting and cancellation. One scan runs at a time.
type Orchestrator struct {
	provider   *probe.Provider
	resolver   IdentityResolver
	results    ResultCache
	metrics    metrics.Recorder
	logger     *logging.Logger
	listeners  []Listener
	batchPause time.Duration
	now        func() time.Time

	mu          sync.Mutex
	state       State
	lastOutcome Outcome
	token       *cancelToken
	slots       *HostSlots

	emitMu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithResolver sets the identity resolver. Without one, hosts carry an
// empty identity.
func WithResolver(r IdentityResolver) Option {
	return func(o *Orchestrator) { o.resolver = r }
}

// WithResultCache replaces the in-memory range cache.
func WithResultCache(c ResultCache) Option {
	return func(o *Orchestrator) { o.results = c }
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m metrics.Recorder) Option {
	return func(o *Orchestrator) { o.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// WithListener registers an event listener.
func WithListener(l Listener) Option {
	return func(o *Orchestrator) { o.listeners = append(o.listeners, l) }
}

// WithBatchPause sets the default pause between batches.
func WithBatchPause(d time.Duration) Option {
	return func(o *Orchestrator) { o.batchPause = d }
}

// NewOrchestrator creates an idle orchestrator around a probe provider.
func NewOrchestrator(provider *probe.Provider, opts ...Option) (*Orchestrator, error) {
	if provider == nil || provider.Liveness == nil {
		return nil, errors.NewConfigFieldError(errors.CodeConfiguration,
			"A probe provider with a liveness check is required", "scanning.provider", nil)
	}

	o := &Orchestrator{
		provider: provider,
		metrics:  metrics.Nop{},
		now:      time.Now,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.results == nil {
		o.results = NewMemoryResultCache(5*time.Minute, 64)
	}
	if o.logger == nil {
		o.logger = logging.Default()
	}
	o.logger = o.logger.WithComponent("orchestrator")
	return o, nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// LastOutcome returns how the most recent scan ended.
func (o *Orchestrator) LastOutcome() Outcome {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastOutcome
}

// Status is a point-in-time view for health reporting.
type Status struct {
	State       State      `json:"state"`
	LastOutcome Outcome    `json:"lastOutcome,omitempty"`
	Provider    string     `json:"provider"`
	Slots       *SlotStats `json:"slots,omitempty"`
}

// Status returns the orchestrator status. Slots is set while scanning.
func (o *Orchestrator) Status() Status {
	o.mu.Lock()
	defer o.mu.Unlock()
	st := Status{State: o.state, LastOutcome: o.lastOutcome, Provider: o.provider.Name}
	if o.slots != nil {
		s := o.slots.Stats()
		st.Slots = &s
	}
	return st
}

func (o *Orchestrator) begin() (*cancelToken, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateIdle {
		return nil, errors.ErrScanInProgress()
	}
	o.state = StateValidating
	o.token = newCancelToken()
	return o.token, nil
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) end(outcome Outcome) {
	o.mu.Lock()
	o.state = StateIdle
	o.lastOutcome = outcome
	o.slots = nil
	o.mu.Unlock()
}

// CancelScan asks the running scan to stop after its current batch. It has
// no effect when no scan is running.
func (o *Orchestrator) CancelScan() {
	o.mu.Lock()
	tok, state := o.token, o.state
	o.mu.Unlock()

	if tok == nil || state == StateIdle {
		return
	}
	tok.cancel()
	o.logger.Info("Scan cancellation requested")
}

// ScanNetwork validates req, serves it from the range cache when possible,
// and otherwise scans the range batch by batch. Only an invalid request or
// a concurrent scan produce an error; a cancelled scan returns its partial
// result with Cancelled set.
func (o *Orchestrator) ScanNetwork(ctx context.Context, req ScanRequest) (*ScanResult, error) {
	token, err := o.begin()
	if err != nil {
		return nil, err
	}

	validation := Validate(req)
	if !validation.OK {
		o.end(OutcomeFailed)
		return nil, errors.ErrInvalidRequest(validation.Errors)
	}

	scanID := uuid.NewString()
	key := req.Key()
	logger := o.logger.WithScanID(scanID).WithTarget(key.String())
	for _, w := range validation.Warnings {
		logger.Warn("Scan request warning", "warning", w)
	}

	var warnings []string
	if !req.Fresh {
		cached, ok, err := o.results.Get(ctx, key)
		switch {
		case err != nil:
			warnings = append(warnings, o.cacheFault(logger, scanID, "get", key, err))
		case ok:
			o.metrics.ObserveCache(rangeCacheName, "hit")
			cached.FromCache = true
			logger.InfoCache("Range served from cache", rangeCacheName, "hosts", len(cached.Hosts))
			o.end(OutcomeCacheHit)
			o.emit(Event{Type: EventCacheHit, ScanID: cached.ID, Result: cached.clone()})
			return cached, nil
		default:
			o.metrics.ObserveCache(rangeCacheName, "miss")
		}
	}

	o.setState(StateScanning)
	result := o.scan(ctx, req, scanID, token, logger)
	result.Warnings = append(warnings, result.Warnings...)

	if result.Cancelled {
		o.metrics.ScanFinished(string(OutcomeCancelled), result.Duration)
		logger.InfoScan("Scan cancelled", key.String(), "hosts", len(result.Hosts), "scanned", result.Scanned)
		o.end(OutcomeCancelled)
		o.emit(Event{Type: EventScanCancelled, ScanID: scanID, Result: result.clone()})
		return result, nil
	}

	if err := o.results.Set(ctx, key, result); err != nil {
		result.Warnings = append(result.Warnings, o.cacheFault(logger, scanID, "set", key, err))
	}
	o.metrics.ScanFinished(string(OutcomeCompleted), result.Duration)
	logger.InfoScan("Scan completed", key.String(),
		"hosts", len(result.Hosts), "scanned", result.Scanned, "duration", result.Duration)
	o.end(OutcomeCompleted)
	o.emit(Event{Type: EventScanComplete, ScanID: scanID, Result: result.clone()})
	return result, nil
}

func (o *Orchestrator) cacheFault(logger *logging.Logger, scanID, op string, key RangeKey, err error) string {
	cerr := errors.ErrCacheFailure(op, key.String(), err)
	o.metrics.ObserveCache(rangeCacheName, "error")
	logger.WithError(cerr).Warn("Range cache unavailable, continuing uncached")
	o.emit(Event{Type: EventCacheError, ScanID: scanID, Err: cerr})
	return cerr.Error()
}

// progressTracker counts finished hosts. Guarded by emitMu.
type progressTracker struct {
	completed int
	total     int
	start     time.Time
}

func (o *Orchestrator) scan(ctx context.Context, req ScanRequest, scanID string, token *cancelToken, logger *logging.Logger) *ScanResult {
	key := req.Key()
	ips := key.Addresses()
	batch := req.BatchSize()
	pause := o.batchPause
	if req.BatchPause > 0 {
		pause = req.BatchPause
	}

	slots := NewHostSlots(batch)
	defer slots.Close()
	o.mu.Lock()
	o.slots = slots
	o.mu.Unlock()

	start := o.now()
	tracker := &progressTracker{total: len(ips), start: start}
	hosts := make([]*HostResult, len(ips))
	scanned := 0
	cancelled := false

	o.metrics.ScanStarted()
	logger.InfoScan("Scan started", key.String(), "hosts", len(ips), "ports", len(req.Ports), "batch_size", batch)

	for first := 0; first < len(ips); first += batch {
		if first > 0 && pause > 0 {
			timer := time.NewTimer(pause)
			select {
			case <-timer.C:
			case <-token.done:
			case <-ctx.Done():
			}
			timer.Stop()
		}
		if token.cancelled() || ctx.Err() != nil {
			cancelled = true
			break
		}

		last := min(first+batch, len(ips))
		var wg sync.WaitGroup
		for i := first; i < last; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				hosts[i] = o.scanHost(ctx, slots, ips[i], req, scanID)
				o.reportProgress(tracker, token, scanID, ips[i])
			}(i)
		}
		wg.Wait()
		scanned = last
	}

	result := &ScanResult{
		ID:        scanID,
		Range:     key,
		Hosts:     []HostResult{},
		Scanned:   scanned,
		StartedAt: start,
		Duration:  o.now().Sub(start),
		Provider:  o.provider.Name,
		Cancelled: cancelled,
	}
	for _, h := range hosts {
		if h != nil {
			result.Hosts = append(result.Hosts, *h)
		}
	}
	return result
}

// scanHost probes one address. Dead hosts return nil without any port scan
// or resolution. Failures are logged and never returned.
func (o *Orchestrator) scanHost(ctx context.Context, slots *HostSlots, ip string, req ScanRequest, scanID string) (host *HostResult) {
	defer func() {
		if p := recover(); p != nil {
			o.logger.DebugProbe("Host probe failed", ip, "error", errors.ErrProbeFailed(ip, fmt.Errorf("panic: %v", p)))
			host = nil
		}
	}()

	if err := slots.Acquire(ctx, ip); err != nil {
		return nil
	}
	defer slots.Release(ip)

	// One window covers liveness, the port scan and resolution.
	hctx, cancel := context.WithTimeout(ctx, req.Timeout())
	defer cancel()

	reach := o.provider.Liveness.Probe(hctx, ip, req.Timeout())
	if !reach.Alive {
		o.logger.DebugProbe("Host unreachable", ip)
		return nil
	}
	timeout := hostBudgetLeft(hctx)

	var (
		wg       sync.WaitGroup
		open     []int
		identity resolver.DeviceIdentity
		osGuess  string
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		open = o.scanPorts(hctx, ip, req.Ports, timeout)
	}()
	go func() {
		defer wg.Done()
		identity = o.resolve(hctx, ip)
	}()
	if o.provider.OS != nil {
		osGuess = o.provider.OS.GuessOS(reach)
	}
	wg.Wait()

	host = &HostResult{
		IP:        ip,
		Alive:     true,
		Latency:   reach.Latency,
		TTL:       reach.TTL,
		OpenPorts: open,
		Services:  probe.ServiceMap(open),
		OS:        osGuess,
		Identity:  identity,
	}
	o.logger.DebugProbe("Host alive", ip, "open_ports", len(open), "os", osGuess)
	o.emit(Event{Type: EventHostDiscovered, ScanID: scanID, Host: host})
	return host
}

// hostBudgetLeft is the time remaining before the host deadline on ctx,
// never less than 1ms.
func hostBudgetLeft(ctx context.Context) time.Duration {
	deadline, _ := ctx.Deadline()
	return max(time.Until(deadline), time.Millisecond)
}

func (o *Orchestrator) scanPorts(ctx context.Context, ip string, ports []int, timeout time.Duration) (open []int) {
	defer func() {
		if p := recover(); p != nil {
			o.logger.DebugProbe("Port scan failed", ip, "error", fmt.Errorf("panic: %v", p))
			open = []int{}
		}
	}()
	if o.provider.Ports == nil {
		return []int{}
	}
	open = o.provider.Ports.ScanPorts(ctx, ip, ports, timeout)
	if open == nil {
		open = []int{}
	}
	return open
}

func (o *Orchestrator) resolve(ctx context.Context, ip string) (id resolver.DeviceIdentity) {
	empty := resolver.DeviceIdentity{IP: ip, Sources: []string{}}
	defer func() {
		if p := recover(); p != nil {
			o.logger.WarnChannel("resolver", ip, fmt.Errorf("panic: %v", p))
			id = empty
		}
	}()
	if o.resolver == nil {
		return empty
	}
	id, err := o.resolver.ResolveDeviceInfo(ctx, ip)
	if err != nil {
		o.logger.DebugProbe("Identity resolution failed", ip, "error", err)
		return empty
	}
	return id
}

// reportProgress counts a finished host and emits progress unless the scan
// has been cancelled.
func (o *Orchestrator) reportProgress(t *progressTracker, token *cancelToken, scanID, ip string) {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()

	t.completed++
	if token.cancelled() {
		return
	}
	p := newProgress(t.completed, t.total, ip, o.now().Sub(t.start))
	o.deliver(Event{Type: EventProgress, ScanID: scanID, Progress: &p})
}

func (o *Orchestrator) emit(e Event) {
	o.emitMu.Lock()
	defer o.emitMu.Unlock()
	o.deliver(e)
}

func (o *Orchestrator) deliver(e Event) {
	for _, l := range o.listeners {
		func() {
			defer func() {
				if p := recover(); p != nil {
					o.logger.Warn("Event listener panicked", "event", e.Type, "panic", p)
				}
			}()
			l(e)
		}()
	}
}

// ClearCache empties the range cache and, when the resolver has one, the
// identity cache.
func (o *Orchestrator) ClearCache(ctx context.Context) error {
	if err := o.results.Clear(ctx); err != nil {
		return errors.ErrCacheFailure("clear", "*", err)
	}
	if c, ok := o.resolver.(interface{ ClearCache() }); ok {
		c.ClearCache()
	}
	o.logger.InfoCache("Cache cleared", rangeCacheName)
	return nil
}

// CacheStats reports range cache counters.
func (o *Orchestrator) CacheStats() cache.Stats {
	return o.results.Stats()
}
