package telegram

import (
	"os"
	"strings"
	"testing"

	"github.com/mymmrac/telego"
)

func TestDisplayName(t *testing.T) {
	tests := []struct {
		name string
		user telego.User
		want string
	}{
		{"full name", telego.User{FirstName: "Annie", LastName: "Hall"}, "Annie Hall"},
		{"first only", telego.User{FirstName: "Annie"}, "Annie"},
		{"username fallback", telego.User{Username: "annie"}, "@annie"},
		{"nothing", telego.User{}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := displayName(&tt.user); got != tt.want {
				t.Errorf("displayName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestVoiceFileID(t *testing.T) {
	if got := voiceFileID(&telego.Message{Voice: &telego.Voice{FileID: "v1"}}); got != "v1" {
		t.Errorf("voice: got %q", got)
	}
	if got := voiceFileID(&telego.Message{Audio: &telego.Audio{FileID: "a1"}}); got != "a1" {
		t.Errorf("audio: got %q", got)
	}
	if got := voiceFileID(&telego.Message{Text: "hi"}); got != "" {
		t.Errorf("text: got %q", got)
	}
}

func TestSplitMessage(t *testing.T) {
	if got := splitMessage("short", 10); len(got) != 1 || got[0] != "short" {
		t.Fatalf("short message split: %v", got)
	}
	long := strings.Repeat("é", 25)
	got := splitMessage(long, 10)
	if len(got) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(got))
	}
	if strings.Join(got, "") != long {
		t.Errorf("chunks do not reassemble the input")
	}
}

func TestParseChatID(t *testing.T) {
	id, err := parseChatID("-100123")
	if err != nil || id != -100123 {
		t.Fatalf("parseChatID = %d, %v", id, err)
	}
	if _, err := parseChatID("abc"); err == nil {
		t.Error("expected error for non-numeric id")
	}
}

func TestSaveLimited(t *testing.T) {
	path, err := saveLimited(strings.NewReader("OggS"), "", 10)
	if err != nil {
		t.Fatalf("saveLimited: %v", err)
	}
	defer os.Remove(path)
	if !strings.HasSuffix(path, ".ogg") {
		t.Errorf("path = %q, want .ogg suffix", path)
	}
	if data, _ := os.ReadFile(path); string(data) != "OggS" {
		t.Errorf("content = %q", data)
	}

	if _, err := saveLimited(strings.NewReader("0123456789abc"), ".oga", 10); err == nil {
		t.Error("expected size error")
	}
}
