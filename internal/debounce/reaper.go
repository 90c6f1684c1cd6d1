package debounce

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/adhocore/gronx"
)

// DefaultReapSchedule sweeps abandoned buffers every five minutes.
const DefaultReapSchedule = "*/5 * * * *"

// Reaper periodically drops buffers idle longer than the scheduler's
// MaxIdleAge. Abandoned partial turns are discarded, never flushed.
type Reaper struct {
	sched  *Scheduler
	expr   string
	onReap func(removed int)
}

// NewReaper validates the cron expression and binds it to s.
func NewReaper(s *Scheduler, expr string) (*Reaper, error) {
	if expr == "" {
		expr = DefaultReapSchedule
	}
	if !gronx.New().IsValid(expr) {
		return nil, fmt.Errorf("invalid reap schedule %q", expr)
	}
	return &Reaper{sched: s, expr: expr}, nil
}

// OnReap registers a callback invoked after a sweep that removed buffers.
func (r *Reaper) OnReap(fn func(removed int)) { r.onReap = fn }

// Run sweeps on every schedule tick until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) error {
	slog.Info("idle reaper started", "schedule", r.expr, "max_idle_age", r.sched.Options().MaxIdleAge)
	for {
		next, err := gronx.NextTickAfter(r.expr, time.Now(), false)
		if err != nil {
			return fmt.Errorf("reaper: next tick: %w", err)
		}

		t := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			t.Stop()
			slog.Info("idle reaper stopped")
			return nil
		case <-t.C:
		}

		r.Sweep()
	}
}

// Sweep performs one pass and returns the number of buffers removed.
func (r *Reaper) Sweep() int {
	removed := r.sched.SweepIdle(r.sched.Options().MaxIdleAge)
	if removed > 0 {
		slog.Info("idle reaper removed abandoned buffers", "count", removed)
		if r.onReap != nil {
			r.onReap(removed)
		}
	}
	return removed
}
