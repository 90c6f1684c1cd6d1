package handoff

import (
	"context"

	"github.com/nextlevelbuilder/turnbuf/internal/debounce"
)

// Echo replies with the combined turn text. Useful for checking channel
// wiring and delay tuning without a responder.
type Echo struct {
	out OutboundPublisher
}

func NewEcho(out OutboundPublisher) *Echo { return &Echo{out: out} }

func (e *Echo) Handoff(_ context.Context, turn debounce.Turn) error {
	return publishReply(e.out, turn, turn.Text)
}

// Discard accepts every turn. The recorder still logs and broadcasts it.
var Discard = debounce.HandoffFunc(func(context.Context, debounce.Turn) error { return nil })
