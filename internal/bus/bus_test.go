package bus

import (
	"context"
	"testing"
	"time"
)

func TestParseAddress(t *testing.T) {
	tests := []struct {
		in      string
		want    Address
		wantErr bool
	}{
		{"telegram:12345", Address{"telegram", "12345"}, false},
		{"discord:guild:chan", Address{"discord", "guild:chan"}, false},
		{"telegram", Address{}, true},
		{":123", Address{}, true},
		{"telegram:", Address{}, true},
	}
	for _, tt := range tests {
		got, err := ParseAddress(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseAddress(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseAddress(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
		if !tt.wantErr && got.String() != tt.in {
			t.Errorf("round trip %q -> %q", tt.in, got.String())
		}
	}
}

func TestMessageBus_Queues(t *testing.T) {
	b := New()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	b.PublishInbound(InboundMessage{Channel: "telegram", Content: "hi"})
	msg, ok := b.ConsumeInbound(ctx)
	if !ok || msg.Content != "hi" {
		t.Fatalf("ConsumeInbound = %+v, %v", msg, ok)
	}

	b.PublishPresence(PresenceEvent{UserID: "u1", State: PresenceTyping})
	ev, ok := b.ConsumePresence(ctx)
	if !ok || ev.State != PresenceTyping {
		t.Fatalf("ConsumePresence = %+v, %v", ev, ok)
	}

	b.PublishOutbound(OutboundMessage{ChatID: "c1", Content: "reply"})
	out, ok := b.SubscribeOutbound(ctx)
	if !ok || out.Content != "reply" {
		t.Fatalf("SubscribeOutbound = %+v, %v", out, ok)
	}
}

func TestMessageBus_ConsumeStopsOnCancel(t *testing.T) {
	b := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, ok := b.ConsumeInbound(ctx); ok {
		t.Error("ConsumeInbound should return false after cancel")
	}
}

func TestMessageBus_PresenceDropsWhenFull(t *testing.T) {
	b := New()
	for i := 0; i < defaultBufferSize+10; i++ {
		b.PublishPresence(PresenceEvent{UserID: "u1", State: PresenceTyping})
	}
	if got := len(b.presence); got != defaultBufferSize {
		t.Errorf("presence queue len = %d, want %d", got, defaultBufferSize)
	}
}

func TestMessageBus_Broadcast(t *testing.T) {
	b := New()
	var got []string
	b.Subscribe("a", func(e Event) { got = append(got, "a:"+e.Name) })
	b.Subscribe("b", func(e Event) { got = append(got, "b:"+e.Name) })
	b.Unsubscribe("b")

	b.Broadcast(Event{Name: "turn.completed"})
	if len(got) != 1 || got[0] != "a:turn.completed" {
		t.Errorf("handlers saw %v", got)
	}
}

func TestDedupeCache(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d := NewDedupeCache(time.Minute, 3)
	d.nowFunc = func() time.Time { return now }

	if d.IsDuplicate("k1") {
		t.Fatal("first sighting reported as duplicate")
	}
	if !d.IsDuplicate("k1") {
		t.Fatal("second sighting not reported as duplicate")
	}

	now = now.Add(2 * time.Minute)
	if d.IsDuplicate("k1") {
		t.Fatal("expired key still reported as duplicate")
	}

	d.IsDuplicate("k2")
	d.IsDuplicate("k3")
	d.IsDuplicate("k4") // evicts k1, the oldest
	if d.Len() != 3 {
		t.Errorf("Len = %d, want 3", d.Len())
	}
	if d.IsDuplicate("k1") {
		t.Error("evicted key reported as duplicate")
	}
}
