package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/turnbuf/internal/bus"
	"github.com/nextlevelbuilder/turnbuf/internal/channels"
	"github.com/nextlevelbuilder/turnbuf/internal/config"
	httpapi "github.com/nextlevelbuilder/turnbuf/internal/http"
	"github.com/nextlevelbuilder/turnbuf/pkg/protocol"
)

// Server is the main gateway server handling WebSocket and HTTP connections.
type Server struct {
	cfg      config.GatewayConfig
	eventPub bus.EventPublisher
	buffers  httpapi.BufferService

	buffersHandler *httpapi.BuffersHandler
	turnsHandler   *httpapi.TurnsHandler
	mcpHandler     http.Handler

	upgrader    websocket.Upgrader
	rateLimiter *channels.RateLimiter
	clients     map[string]*Client
	mu          sync.RWMutex

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer creates a new gateway server.
func NewServer(cfg config.GatewayConfig, eventPub bus.EventPublisher, buffers httpapi.BufferService) *Server {
	s := &Server{
		cfg:      cfg,
		eventPub: eventPub,
		buffers:  buffers,
		clients:  make(map[string]*Client),
	}

	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}

	// rate_limit_rpm <= 0 disables per-IP limiting.
	s.rateLimiter = channels.NewRateLimiter(cfg.RateLimitRPM, 10)
	return s
}

// SetBuffersHandler sets the buffer inspection and fragment injection API.
func (s *Server) SetBuffersHandler(h *httpapi.BuffersHandler) { s.buffersHandler = h }

// SetTurnsHandler sets the turn log API.
func (s *Server) SetTurnsHandler(h *httpapi.TurnsHandler) { s.turnsHandler = h }

// SetMCPHandler mounts an MCP streamable HTTP endpoint at /mcp.
func (s *Server) SetMCPHandler(h http.Handler) { s.mcpHandler = h }

// checkOrigin validates WebSocket connection origin against the allowed origins whitelist.
// If no origins are configured, all origins are allowed (dev mode).
// Empty Origin header (non-browser clients like CLI/SDK) is always allowed.
func (s *Server) checkOrigin(r *http.Request) bool {
	allowed := s.cfg.AllowedOrigins
	if len(allowed) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, a := range allowed {
		if origin == a || a == "*" {
			return true
		}
	}
	slog.Warn("security.cors_rejected", "origin", origin)
	return false
}

// authorized accepts a bearer header or, for browsers opening /ws, a
// ?token= query parameter.
func (s *Server) authorized(r *http.Request) bool {
	if s.cfg.Token == "" {
		return true
	}
	got := r.URL.Query().Get("token")
	if auth := r.Header.Get("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		got = strings.TrimSpace(auth[7:])
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Token)) == 1
}

// rateLimit applies the per-client-IP limiter to next.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	if !s.rateLimiter.Enabled() {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if !s.rateLimiter.Allow(ip) {
			slog.Warn("security.rate_limited", "ip", ip, "path", r.URL.Path)
			w.Header().Set("Retry-After", "1")
			http.Error(w, `{"error":"rate limit exceeded"}`, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// BuildMux creates and caches the HTTP mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("GET /health", s.handleHealth)

	api := http.NewServeMux()
	if s.buffersHandler != nil {
		s.buffersHandler.RegisterRoutes(api)
	}
	if s.turnsHandler != nil {
		s.turnsHandler.RegisterRoutes(api)
	}
	mux.Handle("/v1/", s.rateLimit(api))

	if s.mcpHandler != nil {
		mux.Handle("/mcp", s.rateLimit(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !s.authorized(r) {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			s.mcpHandler.ServeHTTP(w, r)
		})))
	}

	s.mux = mux
	return mux
}

// Start begins listening for WebSocket and HTTP connections. It blocks
// until ctx is cancelled or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	mux := s.BuildMux()

	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("gateway starting", "addr", addr)

	go func() {
		<-ctx.Done()
		s.closeClients()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("gateway server: %w", err)
	}
	return nil
}

// handleWebSocket upgrades HTTP to WebSocket and streams bus events.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	client := NewClient(conn)
	s.registerClient(client)
	defer func() {
		s.unregisterClient(client)
		client.Close()
	}()

	client.SendEvent(*protocol.NewEvent(protocol.EventHealth, s.healthPayload()))
	client.Run(r.Context())
}

func (s *Server) healthPayload() map[string]interface{} {
	payload := map[string]interface{}{
		"status":   "ok",
		"protocol": protocol.ProtocolVersion,
	}
	if s.buffers != nil {
		payload["stats"] = s.buffers.Stats()
	}
	return payload
}

// handleHealth reports liveness and scheduler counters.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(s.healthPayload())
}

// BroadcastEvent sends an event to all connected clients.
func (s *Server) BroadcastEvent(event protocol.EventFrame) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, client := range s.clients {
		client.SendEvent(event)
	}
}

// ClientCount returns the number of connected WebSocket clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

func (s *Server) registerClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clients[c.id] = c

	s.eventPub.Subscribe(c.id, func(event bus.Event) {
		c.SendEvent(*protocol.NewEvent(event.Name, event.Payload))
	})

	slog.Info("client connected", "id", c.id)
}

func (s *Server) unregisterClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
	s.eventPub.Unsubscribe(c.id)
	slog.Info("client disconnected", "id", c.id)
}

// closeClients notifies every client of shutdown and closes its connection.
func (s *Server) closeClients() {
	s.mu.RLock()
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.RUnlock()

	for _, c := range clients {
		c.SendEvent(*protocol.NewEvent(protocol.EventShutdown, nil))
		c.Close()
	}
}
