package whatsapp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/nextlevelbuilder/turnbuf/internal/bus"
	"github.com/nextlevelbuilder/turnbuf/internal/channels"
	"github.com/nextlevelbuilder/turnbuf/internal/config"
)

const (
	dialTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
	maxBackoff   = 30 * time.Second
	readLimit    = 1 << 20
)

// bridgeFrame is the JSON envelope exchanged with the bridge.
//
//	{"type":"message","from":"...","chat":"...","content":"...","id":"...","from_name":"..."}
//	{"type":"presence","from":"...","chat":"...","state":"composing|recording|paused"}
type bridgeFrame struct {
	Type     string `json:"type"`
	From     string `json:"from,omitempty"`
	Chat     string `json:"chat,omitempty"`
	To       string `json:"to,omitempty"`
	Content  string `json:"content,omitempty"`
	ID       string `json:"id,omitempty"`
	FromName string `json:"from_name,omitempty"`
	State    string `json:"state,omitempty"`
}

// Channel connects to a WhatsApp bridge via WebSocket.
// The bridge (e.g. whatsapp-web.js based) handles the actual WhatsApp
// protocol; this channel just sends/receives JSON frames over WS.
type Channel struct {
	*channels.BaseChannel
	config config.WhatsAppConfig

	mu     sync.Mutex
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a new WhatsApp channel from config.
func New(cfg config.WhatsAppConfig, msgBus bus.MessageRouter) (*Channel, error) {
	if cfg.BridgeURL == "" {
		return nil, fmt.Errorf("whatsapp bridge_url is required")
	}
	return &Channel{
		BaseChannel: channels.NewBaseChannel("whatsapp", msgBus, cfg.AllowFrom),
		config:      cfg,
	}, nil
}

// Start connects to the WhatsApp bridge WebSocket and begins listening.
func (c *Channel) Start(ctx context.Context) error {
	slog.Info("starting whatsapp channel", "bridge_url", c.config.BridgeURL)

	c.ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})

	if err := c.connect(c.ctx); err != nil {
		// The listen loop keeps retrying.
		slog.Warn("initial whatsapp bridge connection failed, will retry", "error", err)
	}

	go c.listenLoop()

	c.SetRunning(true)
	return nil
}

// Stop gracefully shuts down the WhatsApp channel.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping whatsapp channel")
	if c.cancel != nil {
		c.cancel()
	}

	c.mu.Lock()
	if c.conn != nil {
		_ = c.conn.Close(websocket.StatusNormalClosure, "shutdown")
		c.conn = nil
	}
	c.mu.Unlock()

	if c.done != nil {
		<-c.done
	}
	c.SetRunning(false)
	return nil
}

// Send delivers an outbound message to the WhatsApp bridge.
func (c *Channel) Send(ctx context.Context, msg bus.OutboundMessage) error {
	data, err := json.Marshal(bridgeFrame{Type: "message", To: msg.ChatID, Content: msg.Content})
	if err != nil {
		return fmt.Errorf("marshal whatsapp message: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("whatsapp bridge not connected")
	}

	wctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	if err := c.conn.Write(wctx, websocket.MessageText, data); err != nil {
		return fmt.Errorf("send whatsapp message: %w", err)
	}
	return nil
}

// connect establishes the WebSocket connection to the bridge.
func (c *Channel) connect(ctx context.Context) error {
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()

	conn, _, err := websocket.Dial(dctx, c.config.BridgeURL, nil)
	if err != nil {
		return fmt.Errorf("dial whatsapp bridge %s: %w", c.config.BridgeURL, err)
	}
	conn.SetReadLimit(readLimit)

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	slog.Info("whatsapp bridge connected", "url", c.config.BridgeURL)
	return nil
}

// listenLoop reads frames from the bridge with automatic reconnection.
func (c *Channel) listenLoop() {
	defer close(c.done)
	backoff := time.Second

	for {
		if c.ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			slog.Info("attempting whatsapp bridge reconnect", "backoff", backoff)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}
			if err := c.connect(c.ctx); err != nil {
				slog.Warn("whatsapp bridge reconnect failed", "error", err)
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			backoff = time.Second
			continue
		}

		_, data, err := conn.Read(c.ctx)
		if err != nil {
			if c.ctx.Err() != nil {
				return
			}
			slog.Warn("whatsapp read error, will reconnect",
				"error", err, "close_status", int(websocket.CloseStatus(err)))
			c.mu.Lock()
			if c.conn == conn {
				_ = conn.CloseNow()
				c.conn = nil
			}
			c.mu.Unlock()
			continue
		}

		c.handleFrame(data)
	}
}

// handleFrame dispatches one bridge frame to the bus.
func (c *Channel) handleFrame(data []byte) {
	var f bridgeFrame
	if err := json.Unmarshal(data, &f); err != nil {
		slog.Warn("invalid whatsapp frame JSON", "error", err)
		return
	}
	if f.From == "" {
		return
	}
	chatID := f.Chat
	if chatID == "" {
		chatID = f.From
	}
	peerKind := peerKindOf(chatID)
	if !c.CheckPolicy(peerKind, c.config.DMPolicy, c.config.GroupPolicy, f.From) {
		slog.Debug("whatsapp frame rejected by policy", "sender_id", f.From, "peer_kind", peerKind)
		return
	}

	switch f.Type {
	case "message":
		content := strings.TrimSpace(f.Content)
		if content == "" {
			return
		}
		metadata := map[string]string{}
		if f.ID != "" {
			metadata["message_id"] = f.ID
		}
		slog.Debug("whatsapp message received",
			"sender_id", f.From,
			"chat_id", chatID,
			"preview", channels.Truncate(content, 50),
		)
		c.HandleMessage(f.From, chatID, content, f.FromName, metadata, peerKind)

	case "presence":
		state, ok := presenceState(f.State)
		if !ok {
			return
		}
		c.HandlePresence(f.From, chatID, state)
	}
}

// presenceState maps WhatsApp chat states onto presence signals.
func presenceState(s string) (bus.PresenceState, bool) {
	switch s {
	case "composing", "typing":
		return bus.PresenceTyping, true
	case "recording":
		return bus.PresenceRecording, true
	case "paused", "available":
		return bus.PresencePaused, true
	}
	return "", false
}

// WhatsApp groups have chat IDs ending in "@g.us".
func peerKindOf(chatID string) string {
	if strings.HasSuffix(chatID, "@g.us") {
		return channels.PeerGroup
	}
	return channels.PeerDirect
}
