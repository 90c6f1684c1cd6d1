package gateway

import (
	"context"

	"github.com/nextlevelbuilder/turnbuf/internal/bus"
	"github.com/nextlevelbuilder/turnbuf/internal/channels"
	httpapi "github.com/nextlevelbuilder/turnbuf/internal/http"
	"github.com/nextlevelbuilder/turnbuf/pkg/protocol"
)

// ReplyChannel delivers replies for fragments injected over REST. There is
// no platform behind it: replies go out as turn.reply events on /ws.
type ReplyChannel struct {
	*channels.BaseChannel
	events bus.EventPublisher
}

// NewReplyChannel creates the "http" channel.
func NewReplyChannel(router bus.MessageRouter, events bus.EventPublisher) *ReplyChannel {
	return &ReplyChannel{
		BaseChannel: channels.NewBaseChannel(httpapi.ChannelHTTP, router, nil),
		events:      events,
	}
}

func (c *ReplyChannel) Start(context.Context) error {
	c.SetRunning(true)
	return nil
}

func (c *ReplyChannel) Stop(context.Context) error {
	c.SetRunning(false)
	return nil
}

func (c *ReplyChannel) Send(_ context.Context, msg bus.OutboundMessage) error {
	c.events.Broadcast(bus.Event{
		Name: protocol.EventTurnReply,
		Payload: protocol.ReplyPayload{
			ChatID:  msg.ChatID,
			Content: msg.Content,
			TurnID:  msg.Metadata["turn_id"],
		},
	})
	return nil
}
