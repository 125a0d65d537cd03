package resolver

import (
	"github.com/anstrom/lanscope/internal/cache"
	"github.com/anstrom/lanscope/internal/config"
	"github.com/anstrom/lanscope/internal/logging"
	"github.com/anstrom/lanscope/internal/metrics"
)

// NewFromConfig wires the channels enabled in cfg. Disabled channels keep
// their no-op fallback.
func NewFromConfig(cfg *config.Config, rec metrics.Recorder, logger *logging.Logger) *Resolver {
	rc := cfg.Resolver
	opts := []Option{
		WithTimeout(rc.Timeout),
		WithMetrics(rec),
		WithLogger(logger),
		WithCache(cache.New[string, DeviceIdentity](identityCacheName, cfg.Cache.IdentityTTL,
			cache.WithCapacity(cfg.Cache.IdentityCapacity))),
	}

	if rc.DNS.Enabled {
		opts = append(opts, WithReverseLookup(NewDNSLookup(rc.DNS.Servers, rc.Timeout)))
	}

	var names ChainNameService
	if rc.MDNS.Enabled {
		names = append(names, NewMDNSService(rc.MDNS.Services, rc.MDNS.BrowseWindow, rc.MDNS.RefreshInterval, nil))
	}
	if rc.SNMP.Enabled {
		names = append(names, NewSNMPService(rc.SNMP.Community, rc.SNMP.Port, rc.SNMP.Timeout, nil))
	}
	switch len(names) {
	case 0:
	case 1:
		opts = append(opts, WithNameService(names[0]))
	default:
		opts = append(opts, WithNameService(names))
	}

	if rc.Neighbor.Enabled {
		opts = append(opts, WithNeighborTable(NewARPTable(rc.Neighbor.ProcPath, nil)))
	}
	if rc.OUI.Enabled {
		opts = append(opts, WithVendorLookup(NewOUIVendor(rc.OUI.ExternalURL, rc.OUI.CacheSize, rc.Timeout)))
	}

	return New(opts...)
}
