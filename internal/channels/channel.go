// Package channels provides the channel abstraction layer for multi-platform messaging.
// Channels turn platform events (Telegram, Discord, WhatsApp) into fragments and
// presence signals on the message bus, and deliver replies back out.
package channels

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/nextlevelbuilder/turnbuf/internal/bus"
)

// DMPolicy controls how DMs from unknown senders are handled.
type DMPolicy string

const (
	DMPolicyAllowlist DMPolicy = "allowlist" // Only whitelisted senders
	DMPolicyOpen      DMPolicy = "open"      // Accept all
	DMPolicyDisabled  DMPolicy = "disabled"  // Reject all DMs
)

// Peer kinds carried on InboundMessage.PeerKind.
const (
	PeerDirect = "direct"
	PeerGroup  = "group"
)

// Channel defines the interface that all channel implementations must satisfy.
type Channel interface {
	// Name returns the channel identifier (e.g., "telegram", "discord", "whatsapp").
	Name() string

	// Start begins listening for messages. Should be non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// Send delivers an outbound message to the channel.
	Send(ctx context.Context, msg bus.OutboundMessage) error

	// IsRunning returns whether the channel is actively processing messages.
	IsRunning() bool

	// IsAllowed checks if a sender is permitted by the channel's allowlist.
	IsAllowed(senderID string) bool
}

// BaseChannel provides shared functionality for all channel implementations.
// Channel implementations should embed this struct.
type BaseChannel struct {
	name      string
	bus       bus.MessageRouter
	running   bool
	allowList []string
	limiter   *RateLimiter
}

// NewBaseChannel creates a new BaseChannel with the given parameters.
func NewBaseChannel(name string, msgBus bus.MessageRouter, allowList []string) *BaseChannel {
	return &BaseChannel{
		name:      name,
		bus:       msgBus,
		allowList: allowList,
	}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning returns whether the channel is running.
func (c *BaseChannel) IsRunning() bool { return c.running }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running = running }

// Bus returns the message bus reference.
func (c *BaseChannel) Bus() bus.MessageRouter { return c.bus }

// SetRateLimiter enables per-sender fragment rate limiting.
func (c *BaseChannel) SetRateLimiter(l *RateLimiter) { c.limiter = l }

// HasAllowList returns true if an allowlist is configured (non-empty).
func (c *BaseChannel) HasAllowList() bool { return len(c.allowList) > 0 }

// IsAllowed checks if a sender is permitted by the allowlist.
// Supports compound senderID format: "123456|username".
// Empty allowlist means all senders are allowed.
func (c *BaseChannel) IsAllowed(senderID string) bool {
	if len(c.allowList) == 0 {
		return true
	}

	idPart, userPart := splitSender(senderID)
	for _, allowed := range c.allowList {
		trimmed := strings.TrimPrefix(allowed, "@")
		if senderID == allowed || idPart == allowed || idPart == trimmed ||
			(userPart != "" && (userPart == allowed || userPart == trimmed)) {
			return true
		}
	}
	return false
}

// CheckPolicy evaluates DM/Group policy for a message.
// peerKind is "direct" or "group". An empty policy means "open".
func (c *BaseChannel) CheckPolicy(peerKind, dmPolicy, groupPolicy, senderID string) bool {
	policy := dmPolicy
	if peerKind == PeerGroup {
		policy = groupPolicy
	}
	switch DMPolicy(policy) {
	case DMPolicyDisabled:
		return false
	case DMPolicyAllowlist:
		return c.IsAllowed(senderID)
	default:
		return true
	}
}

// HandleMessage publishes one text fragment to the bus.
// This is the standard way for channels to forward received messages.
func (c *BaseChannel) HandleMessage(senderID, chatID, content, displayName string, metadata map[string]string, peerKind string) {
	if !c.IsAllowed(senderID) {
		return
	}
	if c.limiter != nil && !c.limiter.Allow(c.name+":"+senderID) {
		slog.Warn("security.sender_rate_limited", "channel", c.name, "sender_id", senderID)
		return
	}

	userID, _ := splitSender(senderID)
	c.bus.PublishInbound(bus.InboundMessage{
		Channel:     c.name,
		SenderID:    senderID,
		ChatID:      chatID,
		Content:     content,
		UserID:      userID,
		DisplayName: displayName,
		PeerKind:    peerKind,
		Metadata:    metadata,
	})
}

// HandlePresence publishes a typing/recording/paused signal for senderID.
func (c *BaseChannel) HandlePresence(senderID, chatID string, state bus.PresenceState) {
	if !state.Valid() || !c.IsAllowed(senderID) {
		return
	}
	userID, _ := splitSender(senderID)
	c.bus.PublishPresence(bus.PresenceEvent{
		Channel: c.name,
		ChatID:  chatID,
		UserID:  userID,
		State:   state,
	})
}

// splitSender separates "123456|username" into its id and username parts.
func splitSender(senderID string) (id, username string) {
	if idx := strings.IndexByte(senderID, '|'); idx > 0 {
		return senderID[:idx], senderID[idx+1:]
	}
	return senderID, ""
}

// Truncate shortens s to at most maxLen bytes, appending "..." if truncated.
// The cut never splits a UTF-8 sequence.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
