package store

import (
	"context"
	"time"
)

// TurnStatus is the delivery outcome of a handed-off turn.
type TurnStatus string

const (
	TurnDelivered TurnStatus = "delivered"
	TurnFailed    TurnStatus = "failed"
)

// TurnRecord is the persisted log entry for one handed-off turn.
type TurnRecord struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	Destination     string     `json:"destination"`
	DisplayName     string     `json:"display_name,omitempty"`
	Text            string     `json:"text"`
	Fragments       []string   `json:"fragments"`
	Reason          string     `json:"reason"`
	Status          TurnStatus `json:"status"`
	Error           string     `json:"error,omitempty"`
	FirstFragmentAt time.Time  `json:"first_fragment_at"`
	FlushedAt       time.Time  `json:"flushed_at"`
	CompletedAt     time.Time  `json:"completed_at"`
	DurationMS      int64      `json:"duration_ms"` // time spent inside the responder
}

// TurnFilter narrows ListTurns. Zero values match everything.
type TurnFilter struct {
	UserID string
	Limit  int
}

// DefaultTurnLimit applies when TurnFilter.Limit is unset.
const DefaultTurnLimit = 50

// EffectiveLimit returns the row cap for f.
func (f TurnFilter) EffectiveLimit() int {
	if f.Limit <= 0 || f.Limit > 1000 {
		return DefaultTurnLimit
	}
	return f.Limit
}

// TurnStore persists the turn log. ListTurns returns newest first.
type TurnStore interface {
	SaveTurn(ctx context.Context, rec *TurnRecord) error
	ListTurns(ctx context.Context, f TurnFilter) ([]TurnRecord, error)
	Close() error
}
