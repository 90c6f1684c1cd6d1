package debounce

import (
	"strings"
	"time"
)

// buffer is the per-user accumulation record. It is only touched while the
// owning shard's mutex is held.
type buffer struct {
	fragments      []string
	destination    string
	displayName    string
	createdAt      time.Time
	firstFragment  time.Time
	lastActivityAt time.Time

	pendingDelay time.Duration
	deadline     time.Time
	timer        Timer
	gen          uint64 // bumped on every arm; a firing timer with an older gen is stale
}

// append queues text unless it repeats the previous fragment. It reports
// whether the fragment was added.
func (b *buffer) append(text string, now time.Time) bool {
	if n := len(b.fragments); n > 0 && strings.TrimSpace(b.fragments[n-1]) == strings.TrimSpace(text) {
		return false
	}
	if len(b.fragments) == 0 {
		b.firstFragment = now
	}
	b.fragments = append(b.fragments, text)
	return true
}

// route records routing metadata. The destination sticks once set; the
// display name follows the latest non-default value.
func (b *buffer) route(destination, displayName, defaultName string) {
	if b.destination == "" && destination != "" {
		b.destination = destination
	}
	if displayName != "" && displayName != defaultName {
		b.displayName = displayName
	}
}

// stopTimer cancels the pending timer and invalidates any callback that
// already escaped Stop.
func (b *buffer) stopTimer() {
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
}

func (b *buffer) snapshot(userID string, now time.Time, running bool) Snapshot {
	return Snapshot{
		UserID:         userID,
		FragmentCount:  len(b.fragments),
		Destination:    b.destination,
		DisplayName:    b.displayName,
		Age:            now.Sub(b.createdAt),
		IdleFor:        now.Sub(b.lastActivityAt),
		PendingDelay:   b.pendingDelay,
		Deadline:       b.deadline,
		HandoffRunning: running,
	}
}
