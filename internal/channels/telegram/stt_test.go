package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nextlevelbuilder/turnbuf/internal/config"
)

func writeVoiceNote(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voice.ogg")
	if err := os.WriteFile(path, []byte("OggS-fake"), 0o600); err != nil {
		t.Fatalf("write voice note: %v", err)
	}
	return path
}

func TestTranscribeAudio_Disabled(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.TelegramConfig
		path string
	}{
		{"no proxy", config.TelegramConfig{}, "/any/file.ogg"},
		{"no file", config.TelegramConfig{STTProxyURL: "https://stt.example.com"}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Channel{config: tt.cfg}
			got, err := c.transcribeAudio(context.Background(), tt.path)
			if err != nil || got != "" {
				t.Fatalf("got (%q, %v), want empty no-op", got, err)
			}
		})
	}
}

func TestTranscribeAudio_MissingFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("proxy must not be called for a missing file")
	}))
	defer srv.Close()

	c := &Channel{config: config.TelegramConfig{STTProxyURL: srv.URL}}
	if _, err := c.transcribeAudio(context.Background(), "/nonexistent/voice.ogg"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

// sttRequest captures what the fake proxy saw.
type sttRequest struct {
	path, auth, tenant string
	hasFile            bool
}

func TestTranscribeAudio_Proxy(t *testing.T) {
	tests := []struct {
		name       string
		cfg        config.TelegramConfig
		status     int
		body       string
		want       string
		wantErr    string
		wantAuth   string
		wantTenant string
	}{
		{
			name:   "transcript",
			status: http.StatusOK,
			body:   `{"transcript":"can you also check tomorrow"}`,
			want:   "can you also check tomorrow",
		},
		{
			name:     "bearer and tenant",
			cfg:      config.TelegramConfig{STTAPIKey: "k-123", STTTenantID: "acme"},
			status:   http.StatusOK,
			body:     `{"transcript":"ok"}`,
			want:     "ok",
			wantAuth: "Bearer k-123", wantTenant: "acme",
		},
		{
			name:   "empty transcript is not an error",
			status: http.StatusOK,
			body:   `{"other":"x"}`,
			want:   "",
		},
		{
			name:    "upstream error",
			status:  http.StatusBadGateway,
			body:    "model offline",
			wantErr: "502",
		},
		{
			name:    "bad json",
			status:  http.StatusOK,
			body:    "not json",
			wantErr: "parse response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var seen sttRequest
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen.path = r.URL.Path
				seen.auth = r.Header.Get("Authorization")
				if err := r.ParseMultipartForm(1 << 20); err == nil {
					_, _, ferr := r.FormFile("file")
					seen.hasFile = ferr == nil
					seen.tenant = r.FormValue("tenant_id")
				}
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			cfg := tt.cfg
			cfg.STTProxyURL = srv.URL
			c := &Channel{config: cfg}

			got, err := c.transcribeAudio(context.Background(), writeVoiceNote(t))
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("err = %v, want containing %q", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("transcript = %q, want %q", got, tt.want)
			}
			if seen.path != sttTranscribeEndpoint || !seen.hasFile {
				t.Errorf("proxy saw path=%q file=%v", seen.path, seen.hasFile)
			}
			if seen.auth != tt.wantAuth {
				t.Errorf("Authorization = %q, want %q", seen.auth, tt.wantAuth)
			}
			if seen.tenant != tt.wantTenant {
				t.Errorf("tenant_id = %q, want %q", seen.tenant, tt.wantTenant)
			}
		})
	}
}

func TestTranscribeAudio_ContextCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := &Channel{config: config.TelegramConfig{STTProxyURL: srv.URL}}
	if _, err := c.transcribeAudio(ctx, writeVoiceNote(t)); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}
