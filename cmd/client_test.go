package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/turnbuf/pkg/protocol"
)

func TestAPIClient_Do(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}
		switch r.URL.Path {
		case "/v1/fragments":
			var body map[string]string
			json.NewDecoder(r.Body).Decode(&body)
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{"user_key": "http:" + body["user_id"]})
		case "/v1/buffers/http:u1":
			w.WriteHeader(http.StatusNoContent)
		default:
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(map[string]string{"error": "buffer not found"})
		}
	}))
	defer srv.Close()

	c := &apiClient{base: srv.URL, token: "secret", http: srv.Client()}
	ctx := context.Background()

	var out map[string]string
	if err := c.do(ctx, http.MethodPost, "/v1/fragments", map[string]string{"user_id": "u1"}, &out); err != nil {
		t.Fatalf("post: %v", err)
	}
	if out["user_key"] != "http:u1" {
		t.Errorf("user_key = %q", out["user_key"])
	}

	if err := c.do(ctx, http.MethodDelete, "/v1/buffers/http:u1", nil, &out); err != nil {
		t.Errorf("delete: %v", err)
	}

	err := c.do(ctx, http.MethodGet, "/v1/buffers/nope", nil, nil)
	if err == nil || !strings.Contains(err.Error(), "buffer not found") {
		t.Errorf("expected server message in error, got %v", err)
	}

	c.token = "wrong"
	if err := c.do(ctx, http.MethodGet, "/v1/buffers", nil, nil); err == nil {
		t.Error("expected auth error")
	}
}

func TestAPIClient_WSURL(t *testing.T) {
	c := &apiClient{base: "http://127.0.0.1:18790", token: "a b"}
	if got := c.wsURL(); got != "ws://127.0.0.1:18790/ws?token=a+b" {
		t.Errorf("wsURL = %q", got)
	}
	c.token = ""
	if got := c.wsURL(); got != "ws://127.0.0.1:18790/ws" {
		t.Errorf("wsURL = %q", got)
	}
}

func TestTable_AlignsWideRunes(t *testing.T) {
	tb := newTable("USER", "NAME")
	tb.add("小明", "x")
	tb.add("Bob", "y\nz")

	var buf bytes.Buffer
	tb.render(&buf)
	want := "USER  NAME\n小明  x\nBob   y z\n"
	if buf.String() != want {
		t.Errorf("render =\n%q\nwant\n%q", buf.String(), want)
	}
}

func TestDescribeEvent(t *testing.T) {
	raw := func(v interface{}) json.RawMessage {
		b, _ := json.Marshal(v)
		return b
	}
	tests := []struct {
		name    string
		event   string
		payload json.RawMessage
		want    string
	}{
		{"own turn", protocol.EventTurnCompleted,
			raw(protocol.TurnPayload{TurnID: "0190-abcdefgh", UserID: "http:u1", Fragments: 3, Reason: "timer"}),
			"[turn abcdefgh: 3 fragment(s), timer]"},
		{"other user", protocol.EventTurnCompleted,
			raw(protocol.TurnPayload{UserID: "http:u2"}), ""},
		{"failed", protocol.EventTurnFailed,
			raw(protocol.TurnPayload{TurnID: "t1", UserID: "http:u1", Error: "boom"}),
			"[turn t1 failed: boom]"},
		{"reply", protocol.EventTurnReply,
			raw(protocol.ReplyPayload{ChatID: "u1", Content: "hello"}), "< hello"},
		{"reply for other chat", protocol.EventTurnReply,
			raw(protocol.ReplyPayload{ChatID: "u9", Content: "x"}), ""},
		{"health ignored", protocol.EventHealth, nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeEvent(tt.event, tt.payload, "u1", "http:u1"); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
