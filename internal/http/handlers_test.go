package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/turnbuf/internal/bus"
	"github.com/nextlevelbuilder/turnbuf/internal/debounce"
	"github.com/nextlevelbuilder/turnbuf/internal/store"
	"github.com/nextlevelbuilder/turnbuf/internal/store/file"
	"github.com/nextlevelbuilder/turnbuf/pkg/protocol"
)

type fakeBuffers struct {
	snaps     map[string]debounce.Snapshot
	cancelled []string
}

func (f *fakeBuffers) Buffers() []debounce.Snapshot {
	var out []debounce.Snapshot
	for _, s := range f.snaps {
		out = append(out, s)
	}
	return out
}

func (f *fakeBuffers) Inspect(userID string) (debounce.Snapshot, bool) {
	s, ok := f.snaps[userID]
	return s, ok
}

func (f *fakeBuffers) Cancel(userID string) bool {
	if _, ok := f.snaps[userID]; !ok {
		return false
	}
	delete(f.snaps, userID)
	f.cancelled = append(f.cancelled, userID)
	return true
}

func (f *fakeBuffers) Stats() debounce.Stats {
	return debounce.Stats{ActiveBuffers: len(f.snaps)}
}

func newBuffersMux(t *testing.T, token string) (*http.ServeMux, *fakeBuffers, *bus.MessageBus) {
	t.Helper()
	fb := &fakeBuffers{snaps: map[string]debounce.Snapshot{
		"telegram:42": {UserID: "telegram:42", FragmentCount: 2, Destination: "telegram:42"},
	}}
	mb := bus.New()
	mux := http.NewServeMux()
	NewBuffersHandler(fb, mb, mb, token, 10).RegisterRoutes(mux)
	return mux, fb, mb
}

func do(mux http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	return w
}

func TestBuffers_Auth(t *testing.T) {
	mux, _, _ := newBuffersMux(t, "secret")

	if w := do(mux, "GET", "/v1/buffers", "", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", w.Code)
	}
	if w := do(mux, "GET", "/v1/buffers", "", "wrong"); w.Code != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d", w.Code)
	}
	if w := do(mux, "GET", "/v1/buffers", "", "secret"); w.Code != http.StatusOK {
		t.Errorf("good token: status = %d", w.Code)
	}
}

func TestBuffers_ListAndInspect(t *testing.T) {
	mux, _, _ := newBuffersMux(t, "")

	w := do(mux, "GET", "/v1/buffers", "", "")
	var list struct {
		Buffers []debounce.Snapshot `json:"buffers"`
		Stats   debounce.Stats      `json:"stats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &list); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(list.Buffers) != 1 || list.Stats.ActiveBuffers != 1 {
		t.Errorf("unexpected list: %+v", list)
	}

	w = do(mux, "GET", "/v1/buffers/telegram:42", "", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), `"fragment_count":2`) {
		t.Errorf("inspect: %d %s", w.Code, w.Body.String())
	}
	if w := do(mux, "GET", "/v1/buffers/nobody", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("missing buffer: status = %d", w.Code)
	}
}

func TestBuffers_CancelBroadcasts(t *testing.T) {
	mux, fb, mb := newBuffersMux(t, "")

	got := make(chan bus.Event, 1)
	mb.Subscribe("test", func(e bus.Event) { got <- e })

	if w := do(mux, "DELETE", "/v1/buffers/telegram:42", "", ""); w.Code != http.StatusNoContent {
		t.Fatalf("cancel: status = %d", w.Code)
	}
	if len(fb.cancelled) != 1 || fb.cancelled[0] != "telegram:42" {
		t.Errorf("cancelled = %v", fb.cancelled)
	}
	select {
	case e := <-got:
		if e.Name != protocol.EventBufferCancelled {
			t.Errorf("event = %q", e.Name)
		}
	case <-time.After(time.Second):
		t.Fatal("no cancel event broadcast")
	}

	if w := do(mux, "DELETE", "/v1/buffers/telegram:42", "", ""); w.Code != http.StatusNotFound {
		t.Errorf("second cancel: status = %d", w.Code)
	}
}

func TestFragments_Publish(t *testing.T) {
	mux, _, mb := newBuffersMux(t, "")

	w := do(mux, "POST", "/v1/fragments", `{"user_id":"alice","content":"hello","display_name":"Alice","message_id":"m1"}`, "")
	if w.Code != http.StatusAccepted {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), `"user_key":"http:alice"`) {
		t.Errorf("body = %s", w.Body.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	msg, ok := mb.ConsumeInbound(ctx)
	if !ok {
		t.Fatal("no inbound message")
	}
	if msg.Channel != ChannelHTTP || msg.UserID != "alice" || msg.ChatID != "alice" || msg.Content != "hello" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.Metadata["message_id"] != "m1" {
		t.Errorf("metadata = %v", msg.Metadata)
	}
}

func TestFragments_Validation(t *testing.T) {
	mux, _, _ := newBuffersMux(t, "")

	tests := []struct {
		name string
		body string
		want int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"no user", `{"content":"x"}`, http.StatusBadRequest},
		{"blank content", `{"user_id":"a","content":"  "}`, http.StatusBadRequest},
		{"too long", `{"user_id":"a","content":"01234567890"}`, http.StatusRequestEntityTooLarge},
		{"platform channel", `{"channel":"telegram","user_id":"a","chat_id":"-100123","content":"hi"}`, http.StatusBadRequest},
		{"explicit http channel", `{"channel":"http","user_id":"a","content":"hi"}`, http.StatusAccepted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if w := do(mux, "POST", "/v1/fragments", tt.body, ""); w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestActivity_Publish(t *testing.T) {
	mux, _, mb := newBuffersMux(t, "")

	if w := do(mux, "POST", "/v1/activity", `{"user_id":"alice","state":"dancing"}`, ""); w.Code != http.StatusBadRequest {
		t.Errorf("invalid state: status = %d", w.Code)
	}
	if w := do(mux, "POST", "/v1/activity", `{"channel":"discord","user_id":"alice","state":"typing"}`, ""); w.Code != http.StatusBadRequest {
		t.Errorf("platform channel: status = %d", w.Code)
	}
	if w := do(mux, "POST", "/v1/activity", `{"user_id":"alice","state":"typing"}`, ""); w.Code != http.StatusAccepted {
		t.Fatalf("status = %d", w.Code)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	ev, ok := mb.ConsumePresence(ctx)
	if !ok || ev.State != bus.PresenceTyping || ev.UserID != "alice" || ev.Channel != ChannelHTTP {
		t.Fatalf("unexpected presence: %+v ok=%v", ev, ok)
	}
}

func TestTurns_List(t *testing.T) {
	ts, err := file.NewFileTurnStore("")
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	for _, id := range []string{"t1", "t2"} {
		if err := ts.SaveTurn(ctx, &store.TurnRecord{ID: id, UserID: "http:alice", Text: "hi", Status: store.TurnDelivered}); err != nil {
			t.Fatal(err)
		}
	}
	ts.SaveTurn(ctx, &store.TurnRecord{ID: "t3", UserID: "http:bob", Status: store.TurnDelivered})

	mux := http.NewServeMux()
	NewTurnsHandler(ts, "").RegisterRoutes(mux)

	w := do(mux, "GET", "/v1/turns?user_id=http:alice", "", "")
	var resp struct {
		Turns []store.TurnRecord `json:"turns"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Turns) != 2 {
		t.Fatalf("expected 2 turns for alice, got %d", len(resp.Turns))
	}

	if w := do(mux, "GET", "/v1/turns?limit=abc", "", ""); w.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d", w.Code)
	}
}
