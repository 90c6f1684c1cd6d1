package protocol

// ProtocolVersion is bumped on incompatible changes to event frames.
const ProtocolVersion = 1

// WebSocket event names pushed from server to client.
const (
	EventHealth   = "health"
	EventShutdown = "shutdown"

	// Turn lifecycle (payload: TurnPayload).
	EventTurnCompleted = "turn.completed"
	EventTurnFailed    = "turn.failed"

	// Responder reply addressed to the "http" channel (payload: ReplyPayload).
	EventTurnReply = "turn.reply"

	// Buffer lifecycle (payload: BufferPayload).
	EventBufferReaped    = "buffer.reaped"
	EventBufferCancelled = "buffer.cancelled"
)

// EventFrame is the JSON envelope written to WebSocket clients.
type EventFrame struct {
	Type    string      `json:"type"` // always "event"
	Event   string      `json:"event"`
	Seq     int64       `json:"seq"`
	Payload interface{} `json:"payload,omitempty"`
}

// TurnPayload describes a handed-off turn.
type TurnPayload struct {
	TurnID      string `json:"turn_id"`
	UserID      string `json:"user_id"`
	Destination string `json:"destination"`
	Fragments   int    `json:"fragments"`
	Reason      string `json:"reason"`
	Error       string `json:"error,omitempty"`
}

// ReplyPayload carries a responder reply to WebSocket clients.
type ReplyPayload struct {
	ChatID  string `json:"chat_id"`
	Content string `json:"content"`
	TurnID  string `json:"turn_id,omitempty"`
}

// BufferPayload describes buffers dropped without a handoff.
type BufferPayload struct {
	UserID string `json:"user_id,omitempty"` // empty for reaper sweeps
	Count  int    `json:"count"`
}

// NewEvent builds an event frame; the sequence number is assigned per client.
func NewEvent(name string, payload interface{}) *EventFrame {
	return &EventFrame{Type: "event", Event: name, Payload: payload}
}
