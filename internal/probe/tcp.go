package probe

import (
	"context"
	"errors"
	"net"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/anstrom/lanscope/internal/metrics"
)

// minPortTimeout keeps per-port budgets usable for very small host timeouts.
const minPortTimeout = 50 * time.Millisecond

// DialFunc opens a network connection, matching net.Dialer.DialContext.
type DialFunc func(ctx context.Context, network, address string) (net.Conn, error)

func defaultDial(ctx context.Context, network, address string) (net.Conn, error) {
	var d net.Dialer
	return d.DialContext(ctx, network, address)
}

// TCPPortScanner probes ports with plain TCP connects. A port is open when the
// handshake completes; the connection is closed immediately with no payload.
type TCPPortScanner struct {
	// MaxConcurrent bounds in-flight connects per call. Zero means one
	// goroutine per port.
	MaxConcurrent int64
	Limiter       *rate.Limiter
	Dial          DialFunc
	Metrics       metrics.Recorder
}

// NewTCPPortScanner creates a scanner bounded to maxConcurrent connects.
func NewTCPPortScanner(maxConcurrent int64, limiter *rate.Limiter, rec metrics.Recorder) *TCPPortScanner {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &TCPPortScanner{
		MaxConcurrent: maxConcurrent,
		Limiter:       limiter,
		Dial:          defaultDial,
		Metrics:       rec,
	}
}

// PortTimeout is the budget for one connect: half the host timeout.
func PortTimeout(hostTimeout time.Duration) time.Duration {
	t := hostTimeout / 2
	if t < minPortTimeout {
		return minPortTimeout
	}
	return t
}

// ScanPorts implements PortScanner.
func (s *TCPPortScanner) ScanPorts(ctx context.Context, ip string, ports []int, timeout time.Duration) []int {
	open := []int{}
	ports = uniquePorts(ports)
	if len(ports) == 0 {
		return open
	}

	dial := s.Dial
	if dial == nil {
		dial = defaultDial
	}
	var sem *semaphore.Weighted
	if s.MaxConcurrent > 0 {
		sem = semaphore.NewWeighted(s.MaxConcurrent)
	}
	perPort := PortTimeout(timeout)

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, port := range ports {
		if sem != nil {
			if err := sem.Acquire(ctx, 1); err != nil {
				break
			}
		}
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			if sem != nil {
				defer sem.Release(1)
			}
			if s.Limiter != nil {
				if err := s.Limiter.Wait(ctx); err != nil {
					return
				}
			}

			dctx, cancel := context.WithTimeout(ctx, perPort)
			defer cancel()
			conn, err := dial(dctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
			if err != nil {
				return
			}
			_ = conn.Close()

			mu.Lock()
			open = append(open, port)
			mu.Unlock()
		}(port)
	}
	wg.Wait()

	sort.Ints(open)
	if rec := s.Metrics; rec != nil {
		rec.AddPortsProbed("open", len(open))
		rec.AddPortsProbed("closed", len(ports)-len(open))
	}
	return open
}

func uniquePorts(ports []int) []int {
	seen := make(map[int]struct{}, len(ports))
	out := make([]int, 0, len(ports))
	for _, p := range ports {
		if p < 1 || p > 65535 {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// TCPProber judges liveness by connecting to a few common ports. Either a
// completed handshake or an active refusal proves the host is up. It cannot
// observe the reply TTL, so it never enables an OS guess.
type TCPProber struct {
	Ports []int
	Dial  DialFunc
}

// DefaultLivenessPorts are dialed when no ports are configured.
var DefaultLivenessPorts = []int{80, 443, 22, 445, 139}

// NewTCPProber creates a TCP liveness prober for the given ports.
func NewTCPProber(ports []int) *TCPProber {
	if len(ports) == 0 {
		ports = DefaultLivenessPorts
	}
	return &TCPProber{Ports: ports, Dial: defaultDial}
}

// Probe implements Prober.
func (p *TCPProber) Probe(ctx context.Context, ip string, timeout time.Duration) Reachability {
	ctx, cancel := context.WithDeadline(ctx, probeDeadline(ctx, timeout))
	defer cancel()

	dial := p.Dial
	if dial == nil {
		dial = defaultDial
	}

	start := time.Now()
	answered := make(chan time.Duration, len(p.Ports))
	var wg sync.WaitGroup
	for _, port := range p.Ports {
		wg.Add(1)
		go func(port int) {
			defer wg.Done()
			conn, err := dial(ctx, "tcp", net.JoinHostPort(ip, strconv.Itoa(port)))
			if err == nil {
				_ = conn.Close()
				answered <- time.Since(start)
				return
			}
			if isRefused(err) {
				answered <- time.Since(start)
			}
		}(port)
	}
	go func() {
		wg.Wait()
		close(answered)
	}()

	latency, ok := <-answered
	if !ok {
		return Reachability{}
	}
	return Reachability{Alive: true, Latency: latency}
}

func isRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}
