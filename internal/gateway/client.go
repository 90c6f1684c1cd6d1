package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/turnbuf/pkg/protocol"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 4096
	sendBufferSize = 64
)

// Client is one WebSocket subscriber. The connection is push-only; inbound
// frames are read solely to process control messages.
type Client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	seq  atomic.Int64

	closeOnce sync.Once
	done      chan struct{}
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		done: make(chan struct{}),
	}
}

// ID returns the client identifier.
func (c *Client) ID() string { return c.id }

// SendEvent queues an event frame. Slow clients drop frames rather than
// stalling the publisher.
func (c *Client) SendEvent(ev protocol.EventFrame) {
	ev.Type = "event"
	ev.Seq = c.seq.Add(1)
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Warn("gateway: encode event failed", "event", ev.Event, "error", err)
		return
	}
	select {
	case <-c.done:
	case c.send <- data:
	default:
		slog.Warn("gateway: client send buffer full, dropping event", "id", c.id, "event", ev.Event)
	}
}

// Run pumps frames until the connection or ctx closes.
func (c *Client) Run(ctx context.Context) {
	go c.writePump()

	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-c.done:
		}
	}()

	c.conn.SetReadLimit(maxInboundSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("gateway: client read error", "id", c.id, "error", err)
			}
			return
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			// Flush what is already queued (e.g. the shutdown event).
			for {
				select {
				case data := <-c.send:
					_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
					if c.conn.WriteMessage(websocket.TextMessage, data) != nil {
						return
					}
				default:
					_ = c.conn.WriteControl(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
					return
				}
			}
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}

// Close stops the pumps. The write pump flushes queued frames and then
// closes the connection, which unblocks the reader.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}
