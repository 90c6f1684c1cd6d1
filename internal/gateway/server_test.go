package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nextlevelbuilder/turnbuf/internal/bus"
	"github.com/nextlevelbuilder/turnbuf/internal/config"
	"github.com/nextlevelbuilder/turnbuf/internal/debounce"
	httpapi "github.com/nextlevelbuilder/turnbuf/internal/http"
	"github.com/nextlevelbuilder/turnbuf/pkg/protocol"
)

type stubBuffers struct{}

func (stubBuffers) Buffers() []debounce.Snapshot             { return nil }
func (stubBuffers) Inspect(string) (debounce.Snapshot, bool) { return debounce.Snapshot{}, false }
func (stubBuffers) Cancel(string) bool                       { return false }
func (stubBuffers) Stats() debounce.Stats                    { return debounce.Stats{ActiveBuffers: 3, InFlight: 1} }

func newTestServer(t *testing.T, cfg config.GatewayConfig) (*Server, *bus.MessageBus, *httptest.Server) {
	t.Helper()
	mb := bus.New()
	s := NewServer(cfg, mb, stubBuffers{})
	s.SetBuffersHandler(httpapi.NewBuffersHandler(stubBuffers{}, mb, mb, cfg.Token, 0))
	s.SetMCPHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ts := httptest.NewServer(s.BuildMux())
	t.Cleanup(ts.Close)
	return s, mb, ts
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.EventFrame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev protocol.EventFrame
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read frame: %v", err)
	}
	return ev
}

func TestHealth(t *testing.T) {
	_, _, ts := newTestServer(t, config.GatewayConfig{})

	resp, err := http.Get(ts.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var body struct {
		Status   string         `json:"status"`
		Protocol int            `json:"protocol"`
		Stats    debounce.Stats `json:"stats"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Status != "ok" || body.Protocol != protocol.ProtocolVersion || body.Stats.ActiveBuffers != 3 {
		t.Errorf("unexpected health: %+v", body)
	}
}

func TestWebSocket_RequiresToken(t *testing.T) {
	_, _, ts := newTestServer(t, config.GatewayConfig{Token: "secret"})
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected dial without token to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("expected 401, got %+v", resp)
	}

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token=secret", nil)
	if err != nil {
		t.Fatalf("dial with token: %v", err)
	}
	conn.Close()
}

func TestWebSocket_StreamsBusEvents(t *testing.T) {
	s, mb, ts := newTestServer(t, config.GatewayConfig{})
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := readFrame(t, conn)
	if hello.Event != protocol.EventHealth || hello.Seq != 1 || hello.Type != "event" {
		t.Fatalf("unexpected first frame: %+v", hello)
	}
	if s.ClientCount() != 1 {
		t.Fatalf("client count = %d", s.ClientCount())
	}

	mb.Broadcast(bus.Event{
		Name:    protocol.EventTurnCompleted,
		Payload: protocol.TurnPayload{TurnID: "t1", UserID: "telegram:42", Fragments: 2},
	})

	ev := readFrame(t, conn)
	if ev.Event != protocol.EventTurnCompleted || ev.Seq != 2 {
		t.Fatalf("unexpected frame: %+v", ev)
	}
	payload, _ := json.Marshal(ev.Payload)
	if !strings.Contains(string(payload), `"turn_id":"t1"`) {
		t.Errorf("payload = %s", payload)
	}
}

func TestAPI_RateLimitedPerIP(t *testing.T) {
	_, _, ts := newTestServer(t, config.GatewayConfig{RateLimitRPM: 1})

	var limited bool
	for i := 0; i < 15; i++ {
		resp, err := http.Get(ts.URL + "/v1/buffers")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Fatal("expected a 429 after exhausting the burst")
	}
}

func TestMCP_RequiresToken(t *testing.T) {
	_, _, ts := newTestServer(t, config.GatewayConfig{Token: "secret"})

	resp, err := http.Post(ts.URL+"/mcp", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodPost, ts.URL+"/mcp", strings.NewReader(`{}`))
	req.Header.Set("Authorization", "Bearer secret")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("authorized status = %d", resp.StatusCode)
	}
}

func TestReplyChannel_BroadcastsReply(t *testing.T) {
	mb := bus.New()
	var got []bus.Event
	mb.Subscribe("t", func(e bus.Event) { got = append(got, e) })

	ch := NewReplyChannel(mb, mb)
	if ch.Name() != httpapi.ChannelHTTP {
		t.Fatalf("name = %q", ch.Name())
	}
	err := ch.Send(context.Background(), bus.OutboundMessage{Channel: "http", ChatID: "alice", Content: "hi", Metadata: map[string]string{"turn_id": "t1"}})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].Name != protocol.EventTurnReply {
		t.Fatalf("events = %+v", got)
	}
	if p := got[0].Payload.(protocol.ReplyPayload); p.ChatID != "alice" || p.Content != "hi" || p.TurnID != "t1" {
		t.Errorf("payload = %+v", p)
	}
}
