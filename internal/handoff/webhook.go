// Package handoff delivers completed turns downstream: to an HTTP responder,
// back to the sender (echo), and into the turn log and event stream.
package handoff

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/turnbuf/internal/bus"
	"github.com/nextlevelbuilder/turnbuf/internal/channels"
	"github.com/nextlevelbuilder/turnbuf/internal/debounce"
)

const defaultWebhookTimeout = 60 * time.Second

// OutboundPublisher is the slice of the message bus a responder needs.
type OutboundPublisher interface {
	PublishOutbound(msg bus.OutboundMessage)
}

// WebhookPayload is the JSON body POSTed to the responder.
type WebhookPayload struct {
	TurnID          string    `json:"turn_id"`
	UserID          string    `json:"user_id"`
	Destination     string    `json:"destination"`
	DisplayName     string    `json:"display_name,omitempty"`
	Text            string    `json:"text"`
	Fragments       []string  `json:"fragments"`
	Reason          string    `json:"reason"`
	FirstFragmentAt time.Time `json:"first_fragment_at"`
	FlushedAt       time.Time `json:"flushed_at"`
}

// webhookReply is the optional responder answer. A non-empty Reply is sent
// back to the turn's destination.
type webhookReply struct {
	Reply string `json:"reply"`
}

// Webhook hands turns to an external HTTP responder.
type Webhook struct {
	url      string
	token    string
	client   *http.Client
	outbound OutboundPublisher
}

// NewWebhook creates a responder client. outbound may be nil to ignore replies.
func NewWebhook(url, token string, timeout time.Duration, outbound OutboundPublisher) *Webhook {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	return &Webhook{
		url:      url,
		token:    token,
		client:   &http.Client{Timeout: timeout},
		outbound: outbound,
	}
}

func (w *Webhook) Handoff(ctx context.Context, turn debounce.Turn) error {
	body, err := json.Marshal(WebhookPayload{
		TurnID:          turn.ID,
		UserID:          turn.UserID,
		Destination:     turn.Destination,
		DisplayName:     turn.DisplayName,
		Text:            turn.Text,
		Fragments:       turn.Fragments,
		Reason:          string(turn.Reason),
		FirstFragmentAt: turn.FirstFragmentAt,
		FlushedAt:       turn.FlushedAt,
	})
	if err != nil {
		return fmt.Errorf("webhook: encode turn: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Turn-ID", turn.ID)
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("webhook: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: responder returned %d: %s", resp.StatusCode, channels.Truncate(string(respBody), 200))
	}

	if w.outbound == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	var reply webhookReply
	if err := json.Unmarshal(respBody, &reply); err != nil {
		slog.Debug("webhook: non-JSON response ignored", "turn_id", turn.ID)
		return nil
	}
	if reply.Reply == "" {
		return nil
	}
	return publishReply(w.outbound, turn, reply.Reply)
}

func publishReply(out OutboundPublisher, turn debounce.Turn, text string) error {
	addr, err := bus.ParseAddress(turn.Destination)
	if err != nil {
		return fmt.Errorf("reply for turn %s: %w", turn.ID, err)
	}
	out.PublishOutbound(bus.OutboundMessage{
		Channel: addr.Channel,
		ChatID:  addr.ChatID,
		Content: text,
		Metadata: map[string]string{
			"turn_id": turn.ID,
		},
	})
	return nil
}

