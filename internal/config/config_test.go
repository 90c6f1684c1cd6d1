package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	opts := cfg.Debounce.ToOptions()
	if opts.ShortDelay != 2*time.Second || opts.LongDelay != 5*time.Second || opts.MaxFragments != 50 {
		t.Errorf("unexpected defaults: %+v", opts)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoad_JSON5AndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
  // comments and trailing commas are fine
  debounce: { short_delay_ms: 1500, max_fragments: 20, },
  responder: { mode: "webhook", url: "http://localhost:9000/turn" },
  channels: { telegram: { allow_from: [12345, "@ann"] } },
}`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("TURNBUF_LONG_DELAY_MS", "7000")
	t.Setenv("TURNBUF_GATEWAY_TOKEN", "secret")
	t.Setenv("TURNBUF_TELEGRAM_TOKEN", "bot-token")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Debounce.ShortDelayMs != 1500 || cfg.Debounce.MaxFragments != 20 {
		t.Errorf("file values not applied: %+v", cfg.Debounce)
	}
	if cfg.Debounce.LongDelayMs != 7000 {
		t.Errorf("env override not applied: %d", cfg.Debounce.LongDelayMs)
	}
	if cfg.Gateway.Token != "secret" {
		t.Errorf("gateway token = %q", cfg.Gateway.Token)
	}
	if !cfg.Channels.Telegram.Enabled {
		t.Error("telegram should auto-enable when token comes from env")
	}
	if got := cfg.Channels.Telegram.AllowFrom; len(got) != 2 || got[0] != "12345" {
		t.Errorf("AllowFrom = %v", got)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad delay", func(c *Config) { c.Debounce.ShortDelayMs = 10 }},
		{"webhook without url", func(c *Config) { c.Responder.Mode = "webhook" }},
		{"unknown responder", func(c *Config) { c.Responder.Mode = "carrier-pigeon" }},
		{"postgres without dsn", func(c *Config) { c.Database.Mode = "postgres" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestSaveOmitsSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "config.json")
	cfg := Default()
	cfg.Gateway.Token = "do-not-write"
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(data), "do-not-write") {
		t.Error("secret written to disk")
	}
}

func TestWatch_ReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(`{debounce: {short_delay_ms: 2000}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	got := make(chan *Config, 1)
	go Watch(ctx, path, func(c *Config) {
		select {
		case got <- c:
		default:
		}
	})

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	if err := os.WriteFile(path, []byte(`{debounce: {short_delay_ms: 1000}}`), 0o600); err != nil {
		t.Fatal(err)
	}

	select {
	case c := <-got:
		if c.Debounce.ShortDelayMs != 1000 {
			t.Errorf("reloaded short delay = %d, want 1000", c.Debounce.ShortDelayMs)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("watcher did not report the change")
	}
}
