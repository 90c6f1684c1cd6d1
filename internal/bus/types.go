package bus

import (
	"context"
	"fmt"
	"strings"
)

// InboundMessage is one text fragment received from a channel (Telegram, Discord, etc.)
type InboundMessage struct {
	Channel     string            `json:"channel"`
	SenderID    string            `json:"sender_id"`
	ChatID      string            `json:"chat_id"`
	Content     string            `json:"content"`
	UserID      string            `json:"user_id,omitempty"`      // platform user id, sender_id without "|username"
	DisplayName string            `json:"display_name,omitempty"` // empty when the platform gave none
	PeerKind    string            `json:"peer_kind,omitempty"`    // "direct" or "group"
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// PresenceState is what a user is currently doing in a chat.
type PresenceState string

const (
	PresenceTyping    PresenceState = "typing"
	PresenceRecording PresenceState = "recording"
	PresencePaused    PresenceState = "paused"
)

// Valid reports whether s is a known presence state.
func (s PresenceState) Valid() bool {
	switch s {
	case PresenceTyping, PresenceRecording, PresencePaused:
		return true
	}
	return false
}

// PresenceEvent is a typing/recording indicator observed on a channel.
type PresenceEvent struct {
	Channel string        `json:"channel"`
	ChatID  string        `json:"chat_id"`
	UserID  string        `json:"user_id"`
	State   PresenceState `json:"state"`
}

// OutboundMessage represents a message to be sent to a channel.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"` // channel-specific metadata
}

// Event represents a server-side event to broadcast to WebSocket clients.
type Event struct {
	Name    string      `json:"name"` // event name (e.g. "turn.completed", "buffer.reaped")
	Payload interface{} `json:"payload,omitempty"`
}

// Address is a "channel:chat" reply destination.
type Address struct {
	Channel string
	ChatID  string
}

func (a Address) String() string { return a.Channel + ":" + a.ChatID }

// ParseAddress splits a "channel:chat" destination. The chat part may itself
// contain colons (e.g. Discord guild-scoped ids).
func ParseAddress(s string) (Address, error) {
	channel, chat, ok := strings.Cut(s, ":")
	if !ok || channel == "" || chat == "" {
		return Address{}, fmt.Errorf("malformed destination %q, want channel:chat", s)
	}
	return Address{Channel: channel, ChatID: chat}, nil
}

// UserKey namespaces a platform user id by channel so ids from different
// platforms never share a buffer.
func UserKey(channel, userID string) string { return channel + ":" + userID }

// EventHandler handles a broadcast event.
type EventHandler func(Event)

// EventPublisher abstracts event broadcast + subscription.
// Used by the gateway server and handoff recorder to decouple from the concrete MessageBus.
type EventPublisher interface {
	Subscribe(id string, handler EventHandler)
	Unsubscribe(id string)
	Broadcast(event Event)
}

// MessageRouter abstracts inbound/outbound message routing between channels and the turn pipeline.
type MessageRouter interface {
	PublishInbound(msg InboundMessage)
	ConsumeInbound(ctx context.Context) (InboundMessage, bool)
	PublishPresence(ev PresenceEvent)
	ConsumePresence(ctx context.Context) (PresenceEvent, bool)
	PublishOutbound(msg OutboundMessage)
	SubscribeOutbound(ctx context.Context) (OutboundMessage, bool)
}
