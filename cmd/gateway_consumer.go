package cmd

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/turnbuf/internal/bus"
	"github.com/nextlevelbuilder/turnbuf/internal/channels"
	"github.com/nextlevelbuilder/turnbuf/pkg/protocol"
)

// fragmentSink is the scheduler surface the consumer drives.
type fragmentSink interface {
	AddFragment(userID, text, destination, displayName string)
	NotifyActivity(userID string)
	Cancel(userID string) bool
}

// presenceSink records presence state (presence.Tracker).
type presenceSink interface {
	Observe(userKey string, state bus.PresenceState)
}

// inboundConsumer moves channel traffic from the bus into the scheduler.
type inboundConsumer struct {
	sched    fragmentSink
	presence presenceSink
	dedupe   *bus.DedupeCache
	events   bus.EventPublisher // nil disables cancel broadcasts
}

// handleInbound routes one fragment (or a /cancel command) to the scheduler.
func (c *inboundConsumer) handleInbound(msg bus.InboundMessage) {
	if msg.UserID == "" {
		return
	}
	if id := msg.Metadata["message_id"]; id != "" && c.dedupe != nil {
		if c.dedupe.IsDuplicate(msg.Channel + ":" + msg.ChatID + ":" + id) {
			slog.Debug("inbound: duplicate message dropped", "channel", msg.Channel, "message_id", id)
			return
		}
	}

	key := bus.UserKey(msg.Channel, msg.UserID)

	if msg.Metadata["command"] == "cancel" {
		if c.sched.Cancel(key) {
			slog.Info("inbound: buffer cancelled by user", "user_id", key)
			if c.events != nil {
				c.events.Broadcast(bus.Event{
					Name:    protocol.EventBufferCancelled,
					Payload: protocol.BufferPayload{UserID: key, Count: 1},
				})
			}
		}
		return
	}

	dest := bus.Address{Channel: msg.Channel, ChatID: msg.ChatID}.String()
	slog.Debug("inbound: fragment",
		"user_id", key,
		"destination", dest,
		"preview", channels.Truncate(msg.Content, 50),
	)
	c.sched.AddFragment(key, msg.Content, dest, msg.DisplayName)
}

// handlePresence updates the tracker; typing and recording also extend the
// user's debounce window.
func (c *inboundConsumer) handlePresence(ev bus.PresenceEvent) {
	if ev.UserID == "" || !ev.State.Valid() {
		return
	}
	key := bus.UserKey(ev.Channel, ev.UserID)
	c.presence.Observe(key, ev.State)
	if ev.State == bus.PresenceTyping || ev.State == bus.PresenceRecording {
		c.sched.NotifyActivity(key)
	}
}

func (c *inboundConsumer) consumeInbound(ctx context.Context, router bus.MessageRouter) error {
	slog.Info("inbound message consumer started")
	for {
		msg, ok := router.ConsumeInbound(ctx)
		if !ok {
			return nil
		}
		c.handleInbound(msg)
	}
}

func (c *inboundConsumer) consumePresence(ctx context.Context, router bus.MessageRouter) error {
	for {
		ev, ok := router.ConsumePresence(ctx)
		if !ok {
			return nil
		}
		c.handlePresence(ev)
	}
}
