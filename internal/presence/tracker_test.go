package presence

import (
	"testing"
	"time"

	"github.com/nextlevelbuilder/turnbuf/internal/bus"
)

func newTestTracker(ttl time.Duration, max int) (*Tracker, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(ttl, max)
	tr.now = func() time.Time { return now }
	return tr, &now
}

func TestTracker_States(t *testing.T) {
	tr, _ := newTestTracker(time.Second*10, 10)

	if _, ok := tr.Activity("telegram:1"); ok {
		t.Fatal("unknown user should report no record")
	}

	tests := []struct {
		state         bus.PresenceState
		typing, recording bool
	}{
		{bus.PresenceTyping, true, false},
		{bus.PresenceRecording, false, true},
		{bus.PresencePaused, false, false},
	}
	for _, tt := range tests {
		tr.Observe("telegram:1", tt.state)
		act, ok := tr.Activity("telegram:1")
		if !ok {
			t.Fatalf("%s: no record", tt.state)
		}
		if act.IsTyping != tt.typing || act.IsRecording != tt.recording {
			t.Errorf("%s: got typing=%v recording=%v", tt.state, act.IsTyping, act.IsRecording)
		}
	}
}

func TestTracker_Expiry(t *testing.T) {
	tr, now := newTestTracker(10*time.Second, 10)

	tr.Observe("u", bus.PresenceTyping)
	*now = now.Add(9 * time.Second)
	if act, _ := tr.Activity("u"); !act.Active() {
		t.Fatal("typing should still be active before ttl")
	}
	*now = now.Add(2 * time.Second)
	act, ok := tr.Activity("u")
	if !ok {
		t.Fatal("expired record should still be reported")
	}
	if act.Active() {
		t.Error("typing should have expired")
	}
}

func TestTracker_EvictsOldestAtCap(t *testing.T) {
	tr, now := newTestTracker(time.Minute, 2)

	tr.Observe("a", bus.PresenceTyping)
	*now = now.Add(time.Second)
	tr.Observe("b", bus.PresenceTyping)
	*now = now.Add(time.Second)
	tr.Observe("c", bus.PresenceTyping)

	if tr.Len() != 2 {
		t.Fatalf("Len = %d, want 2", tr.Len())
	}
	if _, ok := tr.Activity("a"); ok {
		t.Error("oldest entry should have been evicted")
	}

	tr.Forget("b")
	if _, ok := tr.Activity("b"); ok {
		t.Error("Forget did not remove entry")
	}
}
