package scanning

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// HostSlots bounds the number of hosts probed at once and tracks which
// addresses hold a slot.
type HostSlots struct {
	capacity  int
	semaphore chan struct{}
	active    map[string]time.Time
	mutex     sync.RWMutex
	peak      int
	closed    bool
}

// NewHostSlots creates a pool with capacity slots; capacity < 1 becomes 1.
func NewHostSlots(capacity int) *HostSlots {
	if capacity <= 0 {
		capacity = 1
	}

	return &HostSlots{
		capacity:  capacity,
		semaphore: make(chan struct{}, capacity),
		active:    make(map[string]time.Time),
	}
}

// Acquire blocks until a slot is free for ip or ctx is done.
func (s *HostSlots) Acquire(ctx context.Context, ip string) error {
	s.mutex.RLock()
	closed := s.closed
	s.mutex.RUnlock()
	if closed {
		return fmt.Errorf("host slots are closed")
	}

	select {
	case s.semaphore <- struct{}{}:
		s.mutex.Lock()
		s.active[ip] = time.Now()
		if n := len(s.active); n > s.peak {
			s.peak = n
		}
		s.mutex.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release frees the slot held by ip. Releasing an unknown address is a no-op.
func (s *HostSlots) Release(ip string) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.active[ip]; !ok {
		return
	}
	delete(s.active, ip)
	select {
	case <-s.semaphore:
	default:
	}
}

// InFlight returns the number of held slots.
func (s *HostSlots) InFlight() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return len(s.active)
}

// Peak returns the highest InFlight value observed.
func (s *HostSlots) Peak() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.peak
}

// Available returns the number of free slots.
func (s *HostSlots) Available() int {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return s.capacity - len(s.active)
}

// Close rejects further Acquire calls and drops every held slot.
func (s *HostSlots) Close() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	s.active = make(map[string]time.Time)
	for {
		select {
		case <-s.semaphore:
		default:
			return
		}
	}
}

// SlotStats summarizes a pool for health reporting.
type SlotStats struct {
	Capacity  int `json:"capacity"`
	InFlight  int `json:"inFlight"`
	Available int `json:"available"`
	Peak      int `json:"peak"`
}

// Stats returns a snapshot of the pool.
func (s *HostSlots) Stats() SlotStats {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return SlotStats{
		Capacity:  s.capacity,
		InFlight:  len(s.active),
		Available: s.capacity - len(s.active),
		Peak:      s.peak,
	}
}
