package probe

import (
	"context"
	"os/exec"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Ullaakut/nmap/v3"

	"github.com/anstrom/lanscope/internal/logging"
)

// nmapStartup is added to every probe budget to cover process start and XML parsing.
const nmapStartup = 2 * time.Second

// NmapProber uses an nmap ping scan for liveness. The status reason TTL and
// smoothed RTT of the reply are carried into the Reachability.
type NmapProber struct{}

// CheckNmap reports whether an nmap binary is on PATH.
func CheckNmap() error {
	_, err := exec.LookPath("nmap")
	return err
}

// Probe implements Prober.
func (NmapProber) Probe(ctx context.Context, ip string, timeout time.Duration) Reachability {
	ctx, cancel := context.WithTimeout(ctx, timeout+nmapStartup)
	defer cancel()

	scanner, err := nmap.NewScanner(ctx,
		nmap.WithTargets(ip),
		nmap.WithPingScan(),
		nmap.WithTimingTemplate(timingFor(timeout)),
	)
	if err != nil {
		logging.DebugProbe("nmap scanner unavailable", ip, "error", err)
		return Reachability{}
	}

	result, warnings, err := scanner.Run()
	if err != nil {
		logging.DebugProbe("nmap ping scan failed", ip, "error", err)
		return Reachability{}
	}
	if warnings != nil && len(*warnings) > 0 {
		logging.DebugProbe("nmap ping scan warnings", ip, "warnings", *warnings)
	}

	for i := range result.Hosts {
		host := &result.Hosts[i]
		if host.Status.State != "up" {
			continue
		}
		return Reachability{
			Alive:   true,
			Latency: parseSRTT(host.Times.SRTT),
			TTL:     int(host.Status.ReasonTTL),
		}
	}
	return Reachability{}
}

// NmapPortScanner runs a TCP connect scan of the requested ports with host
// discovery skipped, since liveness is already established.
type NmapPortScanner struct{}

// ScanPorts implements PortScanner.
func (NmapPortScanner) ScanPorts(ctx context.Context, ip string, ports []int, timeout time.Duration) []int {
	open := []int{}
	ports = uniquePorts(ports)
	if len(ports) == 0 {
		return open
	}

	ctx, cancel := context.WithTimeout(ctx, PortTimeout(timeout)+nmapStartup)
	defer cancel()

	spec := make([]string, len(ports))
	for i, p := range ports {
		spec[i] = strconv.Itoa(p)
	}

	scanner, err := nmap.NewScanner(ctx,
		nmap.WithTargets(ip),
		nmap.WithPorts(strings.Join(spec, ",")),
		nmap.WithConnectScan(),
		nmap.WithSkipHostDiscovery(),
		nmap.WithTimingTemplate(timingFor(timeout)),
	)
	if err != nil {
		return open
	}
	result, _, err := scanner.Run()
	if err != nil {
		logging.DebugProbe("nmap port scan failed", ip, "error", err)
		return open
	}

	for i := range result.Hosts {
		for _, p := range result.Hosts[i].Ports {
			if p.State.State == "open" {
				open = append(open, int(p.ID))
			}
		}
	}
	sort.Ints(open)
	return open
}

func timingFor(timeout time.Duration) nmap.Timing {
	switch {
	case timeout <= time.Second:
		return nmap.TimingAggressive
	case timeout <= 5*time.Second:
		return nmap.TimingNormal
	default:
		return nmap.TimingPolite
	}
}

// parseSRTT converts nmap's smoothed round trip time, in microseconds.
func parseSRTT(srtt string) time.Duration {
	us, err := strconv.Atoi(srtt)
	if err != nil || us < 0 {
		return 0
	}
	return time.Duration(us) * time.Microsecond
}
