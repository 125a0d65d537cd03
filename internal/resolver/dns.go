package resolver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const resolvConfPath = "/etc/resolv.conf"

// DNSLookup performs PTR queries against explicit servers, falling back to
// the system resolver when none are configured.
type DNSLookup struct {
	Servers []string
	Timeout time.Duration

	client *dns.Client
}

// NewDNSLookup builds a reverse lookup. Empty servers are read from
// resolv.conf; if that fails the system resolver is used.
func NewDNSLookup(servers []string, timeout time.Duration) *DNSLookup {
	if len(servers) == 0 {
		if conf, err := dns.ClientConfigFromFile(resolvConfPath); err == nil {
			for _, s := range conf.Servers {
				servers = append(servers, net.JoinHostPort(s, conf.Port))
			}
		}
	}
	for i, s := range servers {
		if _, _, err := net.SplitHostPort(s); err != nil {
			servers[i] = net.JoinHostPort(s, "53")
		}
	}
	return &DNSLookup{
		Servers: servers,
		Timeout: timeout,
		client:  &dns.Client{Net: "udp", Timeout: timeout},
	}
}

// LookupAddr returns the first PTR name for ip without the trailing dot.
// NXDOMAIN is an empty answer, not an error.
func (d *DNSLookup) LookupAddr(ctx context.Context, ip string) (string, error) {
	if len(d.Servers) == 0 {
		return systemLookupAddr(ctx, ip)
	}

	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return "", fmt.Errorf("invalid address %q: %w", ip, err)
	}

	m := new(dns.Msg)
	m.SetQuestion(arpa, dns.TypePTR)
	m.RecursionDesired = true

	var lastErr error
	for _, srv := range d.Servers {
		in, _, err := d.client.ExchangeContext(ctx, m, srv)
		if err != nil {
			lastErr = err
			continue
		}
		switch in.Rcode {
		case dns.RcodeSuccess:
		case dns.RcodeNameError:
			return "", nil
		default:
			lastErr = fmt.Errorf("server %s answered %s", srv, dns.RcodeToString[in.Rcode])
			continue
		}
		for _, rr := range in.Answer {
			if ptr, ok := rr.(*dns.PTR); ok {
				return strings.TrimSuffix(ptr.Ptr, "."), nil
			}
		}
		return "", nil
	}
	return "", lastErr
}

func systemLookupAddr(ctx context.Context, ip string) (string, error) {
	names, err := net.DefaultResolver.LookupAddr(ctx, ip)
	if err != nil {
		var dnsErr *net.DNSError
		if errors.As(err, &dnsErr) && dnsErr.IsNotFound {
			return "", nil
		}
		return "", err
	}
	if len(names) == 0 {
		return "", nil
	}
	return strings.TrimSuffix(names[0], "."), nil
}
