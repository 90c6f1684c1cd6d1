// Package presence keeps the latest typing/recording state per user so the
// debounce scheduler can tell whether someone is still composing.
package presence

import (
	"sync"
	"time"

	"github.com/nextlevelbuilder/turnbuf/internal/bus"
	"github.com/nextlevelbuilder/turnbuf/internal/debounce"
)

const (
	// DefaultTTL bounds how long a typing or recording signal counts as
	// current. Platforms repeat the indicator every few seconds while it
	// holds, and some never send an explicit stop.
	DefaultTTL = 10 * time.Second

	// DefaultMaxEntries caps tracked users.
	DefaultMaxEntries = 5000
)

type entry struct {
	state bus.PresenceState
	at    time.Time
}

// Tracker is a concurrency-safe, TTL-bounded presence table.
type Tracker struct {
	mu      sync.Mutex
	ttl     time.Duration
	max     int
	entries map[string]entry
	now     func() time.Time
}

// NewTracker creates a Tracker. Non-positive arguments take the defaults.
func NewTracker(ttl time.Duration, maxEntries int) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Tracker{
		ttl:     ttl,
		max:     maxEntries,
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// Observe records state for userKey.
func (t *Tracker) Observe(userKey string, state bus.PresenceState) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if _, ok := t.entries[userKey]; !ok && len(t.entries) >= t.max {
		t.evict(now)
	}
	t.entries[userKey] = entry{state: state, at: now}
}

// Forget drops userKey's presence record.
func (t *Tracker) Forget(userKey string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, userKey)
}

// Activity implements debounce.ActivitySource. Expired records report idle.
func (t *Tracker) Activity(userKey string) (debounce.Activity, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[userKey]
	if !ok {
		return debounce.Activity{}, false
	}
	act := debounce.Activity{LastActivityAt: e.at}
	if t.now().Sub(e.at) < t.ttl {
		act.IsTyping = e.state == bus.PresenceTyping
		act.IsRecording = e.state == bus.PresenceRecording
	}
	return act, true
}

// Len returns the number of tracked users.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// evict drops expired entries, then the oldest one if still at the cap.
func (t *Tracker) evict(now time.Time) {
	var oldestKey string
	var oldest time.Time
	for k, e := range t.entries {
		if now.Sub(e.at) >= t.ttl {
			delete(t.entries, k)
			continue
		}
		if oldestKey == "" || e.at.Before(oldest) {
			oldestKey, oldest = k, e.at
		}
	}
	if len(t.entries) >= t.max && oldestKey != "" {
		delete(t.entries, oldestKey)
	}
}

var _ debounce.ActivitySource = (*Tracker)(nil)
