package channels

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedKeys caps the number of tracked rate-limit keys to prevent
// memory exhaustion from attackers rotating source IPs/keys.
const maxTrackedKeys = 4096

type limiterEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// RateLimiter is a keyed token-bucket limiter (per sender or per client IP).
// Safe for concurrent use. A nil or disabled limiter allows everything.
type RateLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*limiterEntry
}

// NewRateLimiter allows perMinute events per key with the given burst.
// perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	if perMinute <= 0 {
		return &RateLimiter{}
	}
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(float64(perMinute) / 60),
		burst:   burst,
		entries: make(map[string]*limiterEntry),
	}
}

// Enabled reports whether limiting is active.
func (r *RateLimiter) Enabled() bool { return r != nil && r.entries != nil }

// Allow reports whether key may proceed now.
func (r *RateLimiter) Allow(key string) bool {
	if !r.Enabled() {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	e, ok := r.entries[key]
	if !ok {
		if len(r.entries) >= maxTrackedKeys {
			r.prune(now)
		}
		e = &limiterEntry{lim: rate.NewLimiter(r.limit, r.burst)}
		r.entries[key] = e
	}
	e.seen = now
	return e.lim.AllowN(now, 1)
}

// prune drops keys idle long enough for their bucket to refill, then
// arbitrary keys if still at the cap.
func (r *RateLimiter) prune(now time.Time) {
	refill := time.Duration(float64(r.burst) / float64(r.limit) * float64(time.Second))
	for k, e := range r.entries {
		if now.Sub(e.seen) >= refill {
			delete(r.entries, k)
		}
	}
	for k := range r.entries {
		if len(r.entries) < maxTrackedKeys {
			break
		}
		delete(r.entries, k)
	}
}
