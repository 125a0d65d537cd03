package resolver

import (
	"context"
)

// ReverseLookup resolves an address to a hostname. An empty name with a nil
// error means the lookup succeeded without data.
type ReverseLookup interface {
	LookupAddr(ctx context.Context, ip string) (string, error)
}

// NameRecord is what a platform name service knows about a host.
type NameRecord struct {
	Name        string
	Description string
	// Source names the service that answered, e.g. "mDNS".
	Source string
}

// NameService queries a platform name service (mDNS, SNMP) for a host.
type NameService interface {
	Name() string
	Lookup(ctx context.Context, ip string) (NameRecord, error)
}

// NeighborTable maps an address to its hardware address.
type NeighborTable interface {
	LookupMAC(ctx context.Context, ip string) (string, error)
}

// VendorLookup maps a hardware address to its manufacturer.
type VendorLookup interface {
	Vendor(ctx context.Context, mac string) (string, error)
}

// Fallbacks used when a channel is disabled or unavailable.
type (
	NopReverseLookup struct{}
	NopNameService   struct{}
	NopNeighborTable struct{}
	NopVendorLookup  struct{}
)

func (NopReverseLookup) LookupAddr(context.Context, string) (string, error) { return "", nil }

func (NopNameService) Name() string { return "none" }

func (NopNameService) Lookup(context.Context, string) (NameRecord, error) {
	return NameRecord{}, nil
}

func (NopNeighborTable) LookupMAC(context.Context, string) (string, error) { return "", nil }

func (NopVendorLookup) Vendor(context.Context, string) (string, error) { return "", nil }
