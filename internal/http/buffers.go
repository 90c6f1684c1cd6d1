package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/nextlevelbuilder/turnbuf/internal/bus"
	"github.com/nextlevelbuilder/turnbuf/internal/debounce"
	"github.com/nextlevelbuilder/turnbuf/pkg/protocol"
)

// ChannelHTTP is the channel name used for fragments injected over REST.
const ChannelHTTP = "http"

// BufferService is the subset of the debounce scheduler the API needs.
type BufferService interface {
	Buffers() []debounce.Snapshot
	Inspect(userID string) (debounce.Snapshot, bool)
	Cancel(userID string) bool
	Stats() debounce.Stats
}

// BuffersHandler serves buffer diagnostics and fragment injection.
type BuffersHandler struct {
	buffers        BufferService
	router         bus.MessageRouter
	events         bus.EventPublisher
	token          string
	maxFragmentLen int
}

// NewBuffersHandler creates a handler for buffer endpoints. events may be nil.
func NewBuffersHandler(buffers BufferService, router bus.MessageRouter, events bus.EventPublisher, token string, maxFragmentLen int) *BuffersHandler {
	return &BuffersHandler{
		buffers:        buffers,
		router:         router,
		events:         events,
		token:          token,
		maxFragmentLen: maxFragmentLen,
	}
}

// RegisterRoutes registers all buffer routes on the given mux.
func (h *BuffersHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/buffers", authMiddleware(h.token, h.handleList))
	mux.HandleFunc("GET /v1/buffers/{user}", authMiddleware(h.token, h.handleGet))
	mux.HandleFunc("DELETE /v1/buffers/{user}", authMiddleware(h.token, h.handleCancel))
	mux.HandleFunc("POST /v1/fragments", authMiddleware(h.token, h.handleFragment))
	mux.HandleFunc("POST /v1/activity", authMiddleware(h.token, h.handleActivity))
}

func (h *BuffersHandler) handleList(w http.ResponseWriter, r *http.Request) {
	buffers := h.buffers.Buffers()
	if buffers == nil {
		buffers = []debounce.Snapshot{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"buffers": buffers,
		"stats":   h.buffers.Stats(),
	})
}

func (h *BuffersHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	snap, ok := h.buffers.Inspect(r.PathValue("user"))
	if !ok {
		writeError(w, http.StatusNotFound, "no buffer for user")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (h *BuffersHandler) handleCancel(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("user")
	if !h.buffers.Cancel(userID) {
		writeError(w, http.StatusNotFound, "no buffer for user")
		return
	}
	slog.Info("buffer cancelled via api", "user_id", userID)
	if h.events != nil {
		h.events.Broadcast(bus.Event{
			Name:    protocol.EventBufferCancelled,
			Payload: protocol.BufferPayload{UserID: userID, Count: 1},
		})
	}
	w.WriteHeader(http.StatusNoContent)
}

// fragmentRequest is the body of POST /v1/fragments.
type fragmentRequest struct {
	Channel     string `json:"channel,omitempty"`
	UserID      string `json:"user_id"`
	ChatID      string `json:"chat_id,omitempty"`
	Content     string `json:"content"`
	DisplayName string `json:"display_name,omitempty"`
	MessageID   string `json:"message_id,omitempty"`
}

func (h *BuffersHandler) handleFragment(w http.ResponseWriter, r *http.Request) {
	var req fragmentRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	if req.UserID == "" {
		writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content is required")
		return
	}
	if h.maxFragmentLen > 0 && utf8.RuneCountInString(req.Content) > h.maxFragmentLen {
		writeError(w, http.StatusRequestEntityTooLarge, "content exceeds max fragment length")
		return
	}

	channel, ok := restChannel(req.Channel)
	if !ok {
		writeError(w, http.StatusBadRequest, errForeignChannel)
		return
	}
	msg := bus.InboundMessage{
		Channel:     channel,
		SenderID:    req.UserID,
		ChatID:      orDefault(req.ChatID, req.UserID),
		Content:     req.Content,
		UserID:      req.UserID,
		DisplayName: req.DisplayName,
		PeerKind:    "direct",
	}
	if req.MessageID != "" {
		msg.Metadata = map[string]string{"message_id": req.MessageID}
	}
	h.router.PublishInbound(msg)

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":   "queued",
		"user_key": bus.UserKey(channel, req.UserID),
	})
}

// activityRequest is the body of POST /v1/activity.
type activityRequest struct {
	Channel string `json:"channel,omitempty"`
	UserID  string `json:"user_id"`
	ChatID  string `json:"chat_id,omitempty"`
	State   string `json:"state"`
}

func (h *BuffersHandler) handleActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	state := bus.PresenceState(req.State)
	if strings.TrimSpace(req.UserID) == "" || !state.Valid() {
		writeError(w, http.StatusBadRequest, "user_id and a valid state (typing, recording, paused) are required")
		return
	}
	channel, ok := restChannel(req.Channel)
	if !ok {
		writeError(w, http.StatusBadRequest, errForeignChannel)
		return
	}
	h.router.PublishPresence(bus.PresenceEvent{
		Channel: channel,
		ChatID:  orDefault(req.ChatID, req.UserID),
		UserID:  req.UserID,
		State:   state,
	})
	w.WriteHeader(http.StatusAccepted)
}

const errForeignChannel = `channel must be "http"; platform users are fed by their own adapters`

// restChannel limits REST injection to the http channel so a token holder
// cannot steer responder replies into Telegram, Discord or WhatsApp chats.
func restChannel(v string) (string, bool) {
	ch := orDefault(v, ChannelHTTP)
	return ch, ch == ChannelHTTP
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
