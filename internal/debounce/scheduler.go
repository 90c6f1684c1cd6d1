package debounce

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const shardCount = 16

var tracer = otel.Tracer("github.com/nextlevelbuilder/turnbuf/internal/debounce")

// shard owns a disjoint slice of users. Every mutation of its buffers and
// guard happens under mu; handoffs never run while mu is held.
type shard struct {
	mu      sync.Mutex
	buffers map[string]*buffer
	guard   guard

	// sealed holds full buffers that hit the cap while the user's previous
	// turn was still in flight, oldest first. Non-empty only while the guard
	// is held.
	sealed map[string][]*buffer
}

func (sh *shard) getOrCreate(userID string, now time.Time) *buffer {
	b, ok := sh.buffers[userID]
	if !ok {
		b = &buffer{createdAt: now, lastActivityAt: now}
		sh.buffers[userID] = b
	}
	return b
}

// Scheduler is the per-conversation debounce and aggregation engine.
// It is safe for concurrent use.
type Scheduler struct {
	shards   [shardCount]*shard
	handoff  Handoff
	activity ActivitySource
	clock    Clock

	optsMu sync.RWMutex
	opts   Options

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped atomic.Bool

	spawn func(func()) // runs a handoff; a goroutine outside tests
}

// Option customizes a Scheduler at construction.
type Option func(*Scheduler)

// WithClock replaces the wall clock (tests).
func WithClock(c Clock) Option {
	return func(s *Scheduler) { s.clock = c }
}

// WithActivitySource wires the presence tracker consulted at arm and fire time.
func WithActivitySource(a ActivitySource) Option {
	return func(s *Scheduler) { s.activity = a }
}

// New creates a Scheduler. Zero option fields take their defaults.
func New(opts Options, h Handoff, extra ...Option) (*Scheduler, error) {
	if h == nil {
		return nil, errors.New("debounce: handoff is required")
	}
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		handoff: h,
		clock:   realClock{},
		opts:    opts,
		ctx:     ctx,
		cancel:  cancel,
		spawn:   func(f func()) { go f() },
	}
	for i := range s.shards {
		s.shards[i] = &shard{
			buffers: make(map[string]*buffer),
			guard:   make(guard),
			sealed:  make(map[string][]*buffer),
		}
	}
	for _, o := range extra {
		o(s)
	}
	return s, nil
}

// Options returns the options currently in effect.
func (s *Scheduler) Options() Options {
	s.optsMu.RLock()
	defer s.optsMu.RUnlock()
	return s.opts
}

// UpdateOptions swaps delays and limits. Timers already armed keep their
// original deadline.
func (s *Scheduler) UpdateOptions(opts Options) error {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return err
	}
	s.optsMu.Lock()
	s.opts = opts
	s.optsMu.Unlock()
	slog.Info("debounce options updated",
		"short_delay_ms", opts.ShortDelay.Milliseconds(),
		"long_delay_ms", opts.LongDelay.Milliseconds(),
		"max_fragments", opts.MaxFragments,
	)
	return nil
}

func (s *Scheduler) shardFor(userID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return s.shards[h.Sum32()%shardCount]
}

func (s *Scheduler) activityOf(userID string) (Activity, bool) {
	if s.activity == nil {
		return Activity{}, false
	}
	return s.activity.Activity(userID)
}

// AddFragment queues text for userID and restarts the debounce window.
// Empty text is ignored. Reaching MaxFragments flushes immediately.
func (s *Scheduler) AddFragment(userID, text, destination, displayName string) {
	if userID == "" || strings.TrimSpace(text) == "" || s.stopped.Load() {
		return
	}
	opts := s.Options()
	act, hasAct := s.activityOf(userID)
	sh := s.shardFor(userID)
	now := s.clock.Now()

	sh.mu.Lock()
	if s.stopped.Load() {
		sh.mu.Unlock()
		return
	}
	b := sh.getOrCreate(userID, now)
	if !b.append(text, now) {
		slog.Debug("debounce: duplicate fragment suppressed", "user_id", userID)
	}
	b.route(destination, displayName, opts.DefaultDisplayName)
	b.lastActivityAt = now

	// The cap is a hard bound and wins over escalation.
	if len(b.fragments) >= opts.MaxFragments {
		turn, ok := s.flushLocked(sh, userID, b, FlushCap)
		if !ok {
			// A previous turn is still being delivered. Park the full buffer
			// for release() and let later fragments start a fresh one.
			b.stopTimer()
			delete(sh.buffers, userID)
			sh.sealed[userID] = append(sh.sealed[userID], b)
			queued := len(sh.sealed[userID])
			sh.mu.Unlock()
			slog.Info("debounce: fragment cap reached during handoff, turn queued",
				"user_id", userID, "queued", queued)
			return
		}
		sh.mu.Unlock()
		slog.Info("debounce: fragment cap reached, flushing", "user_id", userID, "fragments", len(turn.Fragments))
		s.dispatch(sh, turn)
		return
	}

	delay := opts.ShortDelay
	if hasAct && act.Active() {
		delay = opts.LongDelay
	}
	s.armLocked(userID, b, delay)
	sh.mu.Unlock()

	slog.Debug("debounce: fragment queued",
		"user_id", userID,
		"delay_ms", delay.Milliseconds(),
		"escalated", delay == opts.LongDelay,
	)
}

// NotifyActivity records a presence ping and re-arms the long window.
func (s *Scheduler) NotifyActivity(userID string) {
	if userID == "" || s.stopped.Load() {
		return
	}
	opts := s.Options()
	sh := s.shardFor(userID)
	now := s.clock.Now()

	sh.mu.Lock()
	defer sh.mu.Unlock()
	if s.stopped.Load() {
		return
	}
	b := sh.getOrCreate(userID, now)
	b.lastActivityAt = now
	s.armLocked(userID, b, opts.LongDelay)
}

// Cancel discards userID's buffer without handing it off. It reports
// whether a buffer existed.
func (s *Scheduler) Cancel(userID string) bool {
	sh := s.shardFor(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	queued := len(sh.sealed[userID])
	delete(sh.sealed, userID)
	b, ok := sh.buffers[userID]
	if !ok {
		return queued > 0
	}
	b.stopTimer()
	delete(sh.buffers, userID)
	slog.Debug("debounce: buffer cancelled", "user_id", userID, "fragments", len(b.fragments), "queued", queued)
	return true
}

// SweepIdle drops every buffer whose last activity is older than maxAge and
// returns how many were removed. It never hands anything off.
func (s *Scheduler) SweepIdle(maxAge time.Duration) int {
	now := s.clock.Now()
	removed := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, b := range sh.buffers {
			if now.Sub(b.lastActivityAt) > maxAge {
				b.stopTimer()
				delete(sh.buffers, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Inspect returns a snapshot of userID's buffer.
func (s *Scheduler) Inspect(userID string) (Snapshot, bool) {
	sh := s.shardFor(userID)
	now := s.clock.Now()
	sh.mu.Lock()
	defer sh.mu.Unlock()

	b, ok := sh.buffers[userID]
	if !ok {
		return Snapshot{}, false
	}
	return b.snapshot(userID, now, sh.guard.held(userID)), true
}

// Buffers returns snapshots of all live buffers ordered by user id.
func (s *Scheduler) Buffers() []Snapshot {
	now := s.clock.Now()
	var out []Snapshot
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, b := range sh.buffers {
			out = append(out, b.snapshot(id, now, sh.guard.held(id)))
		}
		sh.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

// Stats reports live buffer and in-flight handoff counts.
func (s *Scheduler) Stats() Stats {
	var st Stats
	for _, sh := range s.shards {
		sh.mu.Lock()
		st.ActiveBuffers += len(sh.buffers)
		st.InFlight += len(sh.guard)
		for _, q := range sh.sealed {
			st.QueuedTurns += len(q)
		}
		sh.mu.Unlock()
	}
	return st
}

// Stop cancels all timers, drops pending buffers and waits for in-flight
// handoffs until ctx is done. Events arriving after Stop are ignored.
func (s *Scheduler) Stop(ctx context.Context) error {
	if !s.stopped.CompareAndSwap(false, true) {
		return nil
	}
	dropped := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for id, b := range sh.buffers {
			b.stopTimer()
			delete(sh.buffers, id)
			dropped++
		}
		for id, q := range sh.sealed {
			dropped += len(q)
			delete(sh.sealed, id)
		}
		sh.mu.Unlock()
	}
	if dropped > 0 {
		slog.Warn("debounce: pending buffers dropped on stop", "count", dropped)
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	defer s.cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("debounce: waiting for in-flight handoffs: %w", ctx.Err())
	}
}

// armLocked replaces b's timer with a fresh one for the full delay d.
func (s *Scheduler) armLocked(userID string, b *buffer, d time.Duration) {
	b.stopTimer()
	gen := b.gen
	b.pendingDelay = d
	b.deadline = s.clock.Now().Add(d)
	b.timer = s.clock.AfterFunc(d, func() { s.fire(userID, gen) })
}

// fire runs the flush protocol for a timer armed at generation gen.
func (s *Scheduler) fire(userID string, gen uint64) {
	if s.stopped.Load() {
		return
	}
	opts := s.Options()
	act, hasAct := s.activityOf(userID)
	sh := s.shardFor(userID)

	sh.mu.Lock()
	b, ok := sh.buffers[userID]
	if !ok || b.gen != gen || s.stopped.Load() {
		sh.mu.Unlock()
		return
	}
	b.timer = nil

	if sh.guard.held(userID) {
		s.armLocked(userID, b, opts.LongDelay)
		sh.mu.Unlock()
		slog.Debug("debounce: handoff in flight, deferring", "user_id", userID)
		return
	}
	if hasAct && act.Active() {
		s.armLocked(userID, b, opts.LongDelay)
		sh.mu.Unlock()
		slog.Debug("debounce: user still active, deferring",
			"user_id", userID, "typing", act.IsTyping, "recording", act.IsRecording)
		return
	}
	if len(b.fragments) == 0 {
		b.stopTimer()
		delete(sh.buffers, userID)
		sh.mu.Unlock()
		slog.Debug("debounce: empty buffer discarded", "user_id", userID)
		return
	}

	turn, _ := s.flushLocked(sh, userID, b, FlushTimer)
	sh.mu.Unlock()
	s.dispatch(sh, turn)
}

// flushLocked detaches b from the shard and turns it into a Turn. It returns
// false, leaving b untouched, when a handoff is already in flight.
func (s *Scheduler) flushLocked(sh *shard, userID string, b *buffer, reason FlushReason) (Turn, bool) {
	if sh.guard.held(userID) {
		return Turn{}, false
	}
	b.stopTimer()
	delete(sh.buffers, userID)
	return s.takeLocked(sh, userID, b, reason), true
}

// takeLocked takes the handoff guard for userID and registers the pending
// delivery with wg.
func (s *Scheduler) takeLocked(sh *shard, userID string, b *buffer, reason FlushReason) Turn {
	sh.guard.acquire(userID)
	s.wg.Add(1)

	return Turn{
		ID:              uuid.Must(uuid.NewV7()).String(),
		UserID:          userID,
		Text:            Combine(b.fragments),
		Fragments:       b.fragments,
		Destination:     b.destination,
		DisplayName:     b.displayName,
		FirstFragmentAt: b.firstFragment,
		FlushedAt:       s.clock.Now(),
		Reason:          reason,
	}
}

func (s *Scheduler) dispatch(sh *shard, turn Turn) {
	s.spawn(func() {
		defer s.wg.Done()
		s.deliver(sh, turn)
	})
}

func (s *Scheduler) deliver(sh *shard, turn Turn) {
	defer s.release(sh, turn.UserID)

	ctx, span := tracer.Start(s.ctx, "debounce.handoff", trace.WithAttributes(
		attribute.String("turn.id", turn.ID),
		attribute.String("turn.user_id", turn.UserID),
		attribute.Int("turn.fragments", len(turn.Fragments)),
		attribute.String("turn.reason", string(turn.Reason)),
	))
	defer span.End()

	start := time.Now()
	if err := s.invoke(ctx, turn); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Warn("debounce: handoff failed, turn dropped",
			"user_id", turn.UserID, "turn_id", turn.ID, "error", err)
		return
	}
	slog.Info("debounce: turn handed off",
		"user_id", turn.UserID,
		"turn_id", turn.ID,
		"fragments", len(turn.Fragments),
		"reason", turn.Reason,
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (s *Scheduler) invoke(ctx context.Context, turn Turn) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("debounce: handoff panicked", "user_id", turn.UserID, "panic", r)
			err = fmt.Errorf("handoff panic: %v", r)
		}
	}()
	return s.handoff.Handoff(ctx, turn)
}

// release drops the guard for userID. The oldest buffer sealed at the cap
// while that turn was in flight is dispatched right away.
func (s *Scheduler) release(sh *shard, userID string) {
	sh.mu.Lock()
	sh.guard.release(userID)
	q := sh.sealed[userID]
	if len(q) == 0 || s.stopped.Load() {
		sh.mu.Unlock()
		return
	}
	b := q[0]
	if len(q) == 1 {
		delete(sh.sealed, userID)
	} else {
		sh.sealed[userID] = q[1:]
	}
	turn := s.takeLocked(sh, userID, b, FlushCap)
	sh.mu.Unlock()
	s.dispatch(sh, turn)
}
