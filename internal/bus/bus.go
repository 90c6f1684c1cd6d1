package bus

import (
	"context"
	"log/slog"
	"sync"
)

const defaultBufferSize = 256

// MessageBus connects channels to the turn pipeline. Inbound, presence and
// outbound traffic flow through buffered queues; events fan out to
// subscribers synchronously.
type MessageBus struct {
	inbound  chan InboundMessage
	presence chan PresenceEvent
	outbound chan OutboundMessage

	mu       sync.RWMutex
	handlers map[string]EventHandler
}

// New creates a MessageBus with default queue sizes.
func New() *MessageBus {
	return &MessageBus{
		inbound:  make(chan InboundMessage, defaultBufferSize),
		presence: make(chan PresenceEvent, defaultBufferSize),
		outbound: make(chan OutboundMessage, defaultBufferSize),
		handlers: make(map[string]EventHandler),
	}
}

// PublishInbound enqueues a fragment. It blocks while the queue is full.
func (b *MessageBus) PublishInbound(msg InboundMessage) { b.inbound <- msg }

// ConsumeInbound blocks until a fragment arrives or ctx is done.
func (b *MessageBus) ConsumeInbound(ctx context.Context) (InboundMessage, bool) {
	select {
	case msg := <-b.inbound:
		return msg, true
	case <-ctx.Done():
		return InboundMessage{}, false
	}
}

// PublishPresence enqueues a presence signal. Presence is advisory, so a
// full queue drops the event instead of stalling the channel.
func (b *MessageBus) PublishPresence(ev PresenceEvent) {
	select {
	case b.presence <- ev:
	default:
		slog.Debug("bus: presence queue full, dropping", "channel", ev.Channel, "user_id", ev.UserID)
	}
}

// ConsumePresence blocks until a presence signal arrives or ctx is done.
func (b *MessageBus) ConsumePresence(ctx context.Context) (PresenceEvent, bool) {
	select {
	case ev := <-b.presence:
		return ev, true
	case <-ctx.Done():
		return PresenceEvent{}, false
	}
}

// PublishOutbound enqueues a reply for channel delivery.
func (b *MessageBus) PublishOutbound(msg OutboundMessage) { b.outbound <- msg }

// SubscribeOutbound blocks until a reply is ready or ctx is done.
func (b *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	select {
	case msg := <-b.outbound:
		return msg, true
	case <-ctx.Done():
		return OutboundMessage{}, false
	}
}

// Subscribe registers handler under id, replacing any previous one.
func (b *MessageBus) Subscribe(id string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[id] = handler
}

// Unsubscribe removes the handler registered under id.
func (b *MessageBus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, id)
}

// Broadcast delivers event to every subscriber.
func (b *MessageBus) Broadcast(event Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(event)
	}
}
