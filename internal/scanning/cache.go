package scanning

import (
	"context"
	"time"

	"github.com/anstrom/lanscope/internal/cache"
)

// ResultCache stores whole-range results under their RangeKey. Errors are
// cache faults; a miss is (nil, false, nil).
type ResultCache interface {
	Get(ctx context.Context, key RangeKey) (*ScanResult, bool, error)
	Set(ctx context.Context, key RangeKey, result *ScanResult) error
	Clear(ctx context.Context) error
	Stats() cache.Stats
}

// MemoryResultCache is the in-process ResultCache.
type MemoryResultCache struct {
	entries *cache.TTLCache[RangeKey, *ScanResult]
}

// NewMemoryResultCache creates a cache holding up to capacity ranges for ttl.
func NewMemoryResultCache(ttl time.Duration, capacity int) *MemoryResultCache {
	return &MemoryResultCache{
		entries: cache.New[RangeKey, *ScanResult]("range", ttl, cache.WithCapacity(capacity)),
	}
}

// Get implements ResultCache.
func (m *MemoryResultCache) Get(_ context.Context, key RangeKey) (*ScanResult, bool, error) {
	r, ok := m.entries.Get(key)
	if !ok {
		return nil, false, nil
	}
	return r.clone(), true, nil
}

// Set implements ResultCache.
func (m *MemoryResultCache) Set(_ context.Context, key RangeKey, result *ScanResult) error {
	m.entries.Set(key, result.clone(), 0)
	return nil
}

// Clear implements ResultCache.
func (m *MemoryResultCache) Clear(context.Context) error {
	m.entries.Clear()
	return nil
}

// Stats implements ResultCache.
func (m *MemoryResultCache) Stats() cache.Stats {
	return m.entries.Stats()
}
