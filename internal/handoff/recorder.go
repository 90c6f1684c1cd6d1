package handoff

import (
	"context"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/turnbuf/internal/bus"
	"github.com/nextlevelbuilder/turnbuf/internal/debounce"
	"github.com/nextlevelbuilder/turnbuf/internal/store"
	"github.com/nextlevelbuilder/turnbuf/pkg/protocol"
)

// Recorder wraps a Handoff, appending each outcome to the turn log and
// broadcasting turn.completed / turn.failed.
type Recorder struct {
	next   debounce.Handoff
	turns  store.TurnStore
	events bus.EventPublisher
}

// NewRecorder decorates next. turns and events may be nil.
func NewRecorder(next debounce.Handoff, turns store.TurnStore, events bus.EventPublisher) *Recorder {
	return &Recorder{next: next, turns: turns, events: events}
}

func (r *Recorder) Handoff(ctx context.Context, turn debounce.Turn) error {
	start := time.Now()
	err := r.next.Handoff(ctx, turn)
	elapsed := time.Since(start)

	rec := &store.TurnRecord{
		ID:              turn.ID,
		UserID:          turn.UserID,
		Destination:     turn.Destination,
		DisplayName:     turn.DisplayName,
		Text:            turn.Text,
		Fragments:       turn.Fragments,
		Reason:          string(turn.Reason),
		Status:          store.TurnDelivered,
		FirstFragmentAt: turn.FirstFragmentAt,
		FlushedAt:       turn.FlushedAt,
		CompletedAt:     time.Now().UTC(),
		DurationMS:      elapsed.Milliseconds(),
	}
	event := protocol.EventTurnCompleted
	if err != nil {
		rec.Status = store.TurnFailed
		rec.Error = err.Error()
		event = protocol.EventTurnFailed
	}

	if r.turns != nil {
		// The turn context may already be cancelled on shutdown.
		saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		if serr := r.turns.SaveTurn(saveCtx, rec); serr != nil {
			slog.Warn("turn log: save failed", "turn_id", turn.ID, "error", serr)
		}
		cancel()
	}
	if r.events != nil {
		r.events.Broadcast(bus.Event{Name: event, Payload: protocol.TurnPayload{
			TurnID:      rec.ID,
			UserID:      rec.UserID,
			Destination: rec.Destination,
			Fragments:   len(rec.Fragments),
			Reason:      rec.Reason,
			Error:       rec.Error,
		}})
	}
	return err
}
