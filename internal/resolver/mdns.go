package resolver

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
)

const mdnsDomain = "local."

// BrowseFunc starts a DNS-SD browse, delivering entries until ctx is done.
// It matches (*zeroconf.Resolver).Browse.
type BrowseFunc func(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error

// MDNSService answers name lookups from an index of DNS-SD announcements.
// The index is built by browsing every configured service type for one
// window and is reused until RefreshInterval elapses.
type MDNSService struct {
	Services        []string
	BrowseWindow    time.Duration
	RefreshInterval time.Duration

	browse BrowseFunc
	now    func() time.Time

	mu       sync.Mutex
	index    map[string]NameRecord
	builtAt  time.Time
	buildErr error
	building chan struct{}
}

// NewMDNSService creates the mDNS channel. A nil browse uses zeroconf.
func NewMDNSService(services []string, window, refresh time.Duration, browse BrowseFunc) *MDNSService {
	if browse == nil {
		browse = zeroconfBrowse
	}
	return &MDNSService{
		Services:        services,
		BrowseWindow:    window,
		RefreshInterval: refresh,
		browse:          browse,
		now:             time.Now,
	}
}

func zeroconfBrowse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}
	return resolver.Browse(ctx, service, domain, entries)
}

// Name implements NameService.
func (m *MDNSService) Name() string { return SourceMDNS }

// Lookup implements NameService. Callers arriving while the index is being
// built wait for that build instead of starting another.
func (m *MDNSService) Lookup(ctx context.Context, ip string) (NameRecord, error) {
	index, err := m.currentIndex(ctx)
	if err != nil {
		return NameRecord{}, err
	}
	return index[ip], nil
}

func (m *MDNSService) currentIndex(ctx context.Context) (map[string]NameRecord, error) {
	m.mu.Lock()
	if m.index != nil && m.now().Sub(m.builtAt) < m.RefreshInterval {
		index := m.index
		m.mu.Unlock()
		return index, nil
	}
	if m.building == nil {
		m.building = make(chan struct{})
		go m.rebuild(m.building)
	}
	done := m.building
	m.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index, m.buildErr
}

// rebuild runs detached from any caller context so an impatient lookup does
// not truncate the shared browse window.
func (m *MDNSService) rebuild(done chan struct{}) {
	ctx, cancel := context.WithTimeout(context.Background(), m.BrowseWindow)
	defer cancel()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		index    = make(map[string]NameRecord)
		failures int
		lastErr  error
	)
	for _, service := range m.Services {
		wg.Add(1)
		go func(service string) {
			defer wg.Done()
			entries := make(chan *zeroconf.ServiceEntry)
			if err := m.browse(ctx, service, mdnsDomain, entries); err != nil {
				mu.Lock()
				failures++
				lastErr = err
				mu.Unlock()
				return
			}
			for {
				select {
				case <-ctx.Done():
					return
				case entry, ok := <-entries:
					if !ok {
						return
					}
					mu.Lock()
					indexEntry(index, entry)
					mu.Unlock()
				}
			}
		}(service)
	}
	wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.building = nil
	if len(m.Services) > 0 && failures == len(m.Services) {
		m.index = nil
		m.buildErr = fmt.Errorf("mDNS browse failed: %w", lastErr)
	} else {
		m.index = index
		m.builtAt = m.now()
		m.buildErr = nil
	}
	close(done)
}

func indexEntry(index map[string]NameRecord, entry *zeroconf.ServiceEntry) {
	if entry == nil {
		return
	}
	rec := NameRecord{
		Name:        strings.TrimSuffix(entry.HostName, "."),
		Description: entryDescription(entry),
		Source:      SourceMDNS,
	}
	for _, addr := range entry.AddrIPv4 {
		ip := addr.String()
		// First announcement with a hostname wins.
		if existing, ok := index[ip]; ok && existing.Name != "" {
			continue
		}
		index[ip] = rec
	}
}

var modelKeys = []string{"md", "model", "ty", "usb_MDL"}

func entryDescription(entry *zeroconf.ServiceEntry) string {
	txt := make(map[string]string, len(entry.Text))
	for _, kv := range entry.Text {
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 2 {
			txt[parts[0]] = parts[1]
		}
	}
	for _, key := range modelKeys {
		if v := strings.TrimSpace(txt[key]); v != "" {
			return v
		}
	}
	return entry.Instance
}
