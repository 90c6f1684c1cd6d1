// Package mcp exposes buffer diagnostics and the turn log as MCP tools so
// operators and agents can inspect the pipeline over the Model Context Protocol.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/nextlevelbuilder/turnbuf/internal/bus"
	"github.com/nextlevelbuilder/turnbuf/internal/debounce"
	"github.com/nextlevelbuilder/turnbuf/internal/store"
	"github.com/nextlevelbuilder/turnbuf/pkg/protocol"
)

// BufferService is the subset of the debounce scheduler the tools need.
type BufferService interface {
	Buffers() []debounce.Snapshot
	Inspect(userID string) (debounce.Snapshot, bool)
	Cancel(userID string) bool
	Stats() debounce.Stats
}

// Tools holds the dependencies behind each MCP tool handler.
type Tools struct {
	buffers BufferService
	turns   store.TurnStore   // nil disables list_turns
	events  bus.EventPublisher // nil disables cancel broadcasts
}

// NewTools binds tool handlers to the scheduler and turn store.
func NewTools(buffers BufferService, turns store.TurnStore, events bus.EventPublisher) *Tools {
	return &Tools{buffers: buffers, turns: turns, events: events}
}

// NewServer builds an MCP server with every tool registered.
func NewServer(t *Tools, version string) *server.MCPServer {
	s := server.NewMCPServer("turnbuf", version, server.WithToolCapabilities(false))

	s.AddTool(mcp.NewTool("buffer_stats",
		mcp.WithDescription("Count of open buffers and handoffs currently in flight."),
	), t.handleStats)

	s.AddTool(mcp.NewTool("list_buffers",
		mcp.WithDescription("List every open buffer with fragment count, idle time and pending delay."),
	), t.handleList)

	s.AddTool(mcp.NewTool("inspect_buffer",
		mcp.WithDescription("Show the buffer for one user key (channel:user)."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Buffer key, e.g. telegram:12345")),
	), t.handleInspect)

	s.AddTool(mcp.NewTool("cancel_buffer",
		mcp.WithDescription("Discard a user's pending fragments without handing them off."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Buffer key, e.g. telegram:12345")),
	), t.handleCancel)

	if t.turns != nil {
		s.AddTool(mcp.NewTool("list_turns",
			mcp.WithDescription("Most recent handed-off turns, newest first."),
			mcp.WithString("user_id", mcp.Description("Only turns for this buffer key")),
			mcp.WithNumber("limit", mcp.Description("Maximum rows (default 50)")),
		), t.handleTurns)
	}

	return s
}

// NewHTTPHandler serves s over the streamable HTTP transport.
func NewHTTPHandler(s *server.MCPServer) *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s)
}

func (t *Tools) handleStats(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return jsonResult(t.buffers.Stats())
}

func (t *Tools) handleList(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	buffers := t.buffers.Buffers()
	if buffers == nil {
		buffers = []debounce.Snapshot{}
	}
	return jsonResult(buffers)
}

func (t *Tools) handleInspect(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := stringArg(req, "user_id")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}
	snap, ok := t.buffers.Inspect(userID)
	if !ok {
		return mcp.NewToolResultError(fmt.Sprintf("no buffer for %s", userID)), nil
	}
	return jsonResult(snap)
}

func (t *Tools) handleCancel(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID := stringArg(req, "user_id")
	if userID == "" {
		return mcp.NewToolResultError("user_id is required"), nil
	}
	if !t.buffers.Cancel(userID) {
		return mcp.NewToolResultError(fmt.Sprintf("no buffer for %s", userID)), nil
	}
	slog.Info("buffer cancelled via mcp", "user_id", userID)
	if t.events != nil {
		t.events.Broadcast(bus.Event{
			Name:    protocol.EventBufferCancelled,
			Payload: protocol.BufferPayload{UserID: userID, Count: 1},
		})
	}
	return mcp.NewToolResultText(fmt.Sprintf("Cancelled buffer for %s", userID)), nil
}

func (t *Tools) handleTurns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f := store.TurnFilter{UserID: stringArg(req, "user_id")}
	args, _ := req.Params.Arguments.(map[string]any)
	if n, ok := args["limit"].(float64); ok {
		f.Limit = int(n)
	}
	turns, err := t.turns.ListTurns(ctx, f)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to list turns: %v", err)), nil
	}
	if turns == nil {
		turns = []store.TurnRecord{}
	}
	return jsonResult(turns)
}

func stringArg(req mcp.CallToolRequest, key string) string {
	args, _ := req.Params.Arguments.(map[string]any)
	v, _ := args[key].(string)
	return v
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
