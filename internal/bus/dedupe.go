package bus

import (
	"sync"
	"time"
)

// DedupeCache remembers recently seen keys so webhook retries and
// double-deliveries are processed once. Entries expire after ttl and the
// oldest are evicted beyond max.
type DedupeCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	seen    map[string]time.Time
	order   []dedupeEntry
	nowFunc func() time.Time
}

type dedupeEntry struct {
	key string
	at  time.Time
}

// NewDedupeCache creates a cache with the given TTL and entry cap.
func NewDedupeCache(ttl time.Duration, max int) *DedupeCache {
	return &DedupeCache{
		ttl:     ttl,
		max:     max,
		seen:    make(map[string]time.Time),
		nowFunc: time.Now,
	}
}

// IsDuplicate reports whether key was seen within the TTL and records it.
func (d *DedupeCache) IsDuplicate(key string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	now := d.nowFunc()
	if at, ok := d.seen[key]; ok && now.Sub(at) < d.ttl {
		return true
	}

	d.prune(now)
	d.seen[key] = now
	d.order = append(d.order, dedupeEntry{key: key, at: now})
	return false
}

// Len returns the number of tracked keys.
func (d *DedupeCache) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *DedupeCache) prune(now time.Time) {
	i := 0
	for ; i < len(d.order); i++ {
		e := d.order[i]
		if at, ok := d.seen[e.key]; !ok || !at.Equal(e.at) {
			continue // superseded by a later sighting
		}
		if now.Sub(e.at) < d.ttl && len(d.seen) < d.max {
			break
		}
		delete(d.seen, e.key)
	}
	d.order = d.order[i:]
}
