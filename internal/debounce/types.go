// Package debounce aggregates bursts of chat input into single turns.
//
// Each user owns one buffer. Fragments and presence pings re-arm a timer
// ("last event wins"); when the timer fires and the user is no longer typing
// or recording, all queued fragments are combined and handed off exactly once.
// At most one handoff per user is in flight at any time.
package debounce

import (
	"context"
	"time"
)

// Activity is the externally tracked presence of one user.
type Activity struct {
	IsTyping       bool
	IsRecording    bool
	LastActivityAt time.Time
}

// Active reports whether the user is currently composing input.
func (a Activity) Active() bool { return a.IsTyping || a.IsRecording }

// ActivitySource answers presence queries. Implementations must not block.
type ActivitySource interface {
	Activity(userID string) (Activity, bool)
}

// ActivityFunc adapts a plain function to ActivitySource.
type ActivityFunc func(userID string) (Activity, bool)

func (f ActivityFunc) Activity(userID string) (Activity, bool) { return f(userID) }

// FlushReason records why a turn was handed off.
type FlushReason string

const (
	FlushTimer FlushReason = "timer"
	FlushCap   FlushReason = "cap"
)

// Turn is one combined unit of user input delivered downstream.
type Turn struct {
	ID              string
	UserID          string
	Text            string
	Fragments       []string
	Destination     string
	DisplayName     string
	FirstFragmentAt time.Time
	FlushedAt       time.Time
	Reason          FlushReason
}

// Handoff receives completed turns. It may take arbitrarily long; its
// failure is logged and the turn is dropped.
type Handoff interface {
	Handoff(ctx context.Context, turn Turn) error
}

// HandoffFunc adapts a plain function to Handoff.
type HandoffFunc func(ctx context.Context, turn Turn) error

func (f HandoffFunc) Handoff(ctx context.Context, turn Turn) error { return f(ctx, turn) }

// Snapshot is a read-only view of one buffer for diagnostics.
type Snapshot struct {
	UserID         string        `json:"user_id"`
	FragmentCount  int           `json:"fragment_count"`
	Destination    string        `json:"destination,omitempty"`
	DisplayName    string        `json:"display_name,omitempty"`
	Age            time.Duration `json:"age"`
	IdleFor        time.Duration `json:"idle_for"`
	PendingDelay   time.Duration `json:"pending_delay"`
	Deadline       time.Time     `json:"deadline"`
	HandoffRunning bool          `json:"handoff_running"`
}

// Stats summarizes scheduler state for monitoring.
type Stats struct {
	ActiveBuffers int `json:"active_buffers"`
	InFlight      int `json:"in_flight"`
	QueuedTurns   int `json:"queued_turns"`
}
