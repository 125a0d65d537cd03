package probe

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"github.com/anstrom/lanscope/internal/errors"
	"github.com/anstrom/lanscope/internal/logging"
	"github.com/anstrom/lanscope/internal/metrics"
)

// Provider modes accepted by Detect.
const (
	ModeAuto = "auto"
	ModeICMP = "icmp"
	ModeTCP  = "tcp"
	ModeNmap = "nmap"
)

// DetectOptions controls provider selection.
type DetectOptions struct {
	Mode            string
	LivenessPorts   []int
	PortConcurrency int64
	Limiter         *rate.Limiter
	Metrics         metrics.Recorder

	// Capability checks, replaceable in tests.
	CheckICMP func() error
	CheckNmap func() error
}

// NewLimiter builds the shared probe rate limiter, or nil when perSecond <= 0.
func NewLimiter(perSecond, burst int) *rate.Limiter {
	if perSecond <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(perSecond), burst)
}

// Detect selects the probe provider once. In auto mode ICMP is preferred, then
// nmap, then TCP connect liveness, which is always available. A forced mode
// whose capability check fails is a configuration error.
func Detect(opts DetectOptions) (*Provider, error) {
	if opts.CheckICMP == nil {
		opts.CheckICMP = CheckICMP
	}
	if opts.CheckNmap == nil {
		opts.CheckNmap = CheckNmap
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.Nop{}
	}
	if opts.Mode == "" {
		opts.Mode = ModeAuto
	}

	var mode string
	switch opts.Mode {
	case ModeAuto:
		mode = ModeTCP
		if err := opts.CheckICMP(); err == nil {
			mode = ModeICMP
		} else if err := opts.CheckNmap(); err == nil {
			mode = ModeNmap
		}
	case ModeICMP:
		if err := opts.CheckICMP(); err != nil {
			return nil, errors.ErrProviderUnavailable(ModeICMP, err)
		}
		mode = ModeICMP
	case ModeNmap:
		if err := opts.CheckNmap(); err != nil {
			return nil, errors.ErrProviderUnavailable(ModeNmap, err)
		}
		mode = ModeNmap
	case ModeTCP:
		mode = ModeTCP
	default:
		return nil, errors.ErrProviderUnavailable(opts.Mode, fmt.Errorf("unknown provider mode"))
	}

	p := &Provider{Name: mode, OS: TTLGuesser{}}
	tcpPorts := NewTCPPortScanner(opts.PortConcurrency, opts.Limiter, opts.Metrics)

	var liveness Prober
	switch mode {
	case ModeICMP:
		liveness = NewICMPProber()
		p.Ports = tcpPorts
	case ModeNmap:
		liveness = NmapProber{}
		p.Ports = NmapPortScanner{}
	default:
		liveness = NewTCPProber(opts.LivenessPorts)
		p.Ports = tcpPorts
	}
	p.Liveness = Instrument(Limit(liveness, opts.Limiter), mode, opts.Metrics)

	logging.Info("Probe provider selected", "provider", mode, "requested", opts.Mode)
	return p, nil
}

// Limit makes every probe wait for a token from limiter. A nil limiter
// returns the prober unchanged.
func Limit(p Prober, limiter *rate.Limiter) Prober {
	if limiter == nil {
		return p
	}
	return ProberFunc(func(ctx context.Context, ip string, timeout time.Duration) Reachability {
		if err := limiter.Wait(ctx); err != nil {
			return Reachability{}
		}
		return p.Probe(ctx, ip, timeout)
	})
}

// Instrument records each probe outcome and duration under the provider name.
func Instrument(p Prober, provider string, rec metrics.Recorder) Prober {
	return ProberFunc(func(ctx context.Context, ip string, timeout time.Duration) Reachability {
		start := time.Now()
		r := p.Probe(ctx, ip, timeout)
		status := "dead"
		if r.Alive {
			status = "alive"
		}
		rec.ObserveHostProbe(provider, status, time.Since(start))
		logging.DebugProbe("probe finished", ip, "status", status, "latency", r.Latency, "ttl", r.TTL)
		return r
	})
}
