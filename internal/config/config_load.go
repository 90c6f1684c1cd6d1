package config

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/titanous/json5"

	"github.com/nextlevelbuilder/turnbuf/internal/debounce"
)

// Default returns a Config with sensible defaults.
func Default() *Config {
	d := debounce.DefaultOptions()
	return &Config{
		Debounce: DebounceConfig{
			ShortDelayMs:       int(d.ShortDelay.Milliseconds()),
			LongDelayMs:        int(d.LongDelay.Milliseconds()),
			MaxFragments:       d.MaxFragments,
			MaxIdleAgeMs:       int(d.MaxIdleAge.Milliseconds()),
			ReapSchedule:       debounce.DefaultReapSchedule,
			DefaultDisplayName: d.DefaultDisplayName,
			DedupeTTLMinutes:   20,
			DedupeMaxEntries:   5000,
		},
		Presence: PresenceConfig{
			TTLSeconds: 10,
			MaxEntries: 5000,
		},
		Gateway: GatewayConfig{
			Host:           "0.0.0.0",
			Port:           18790,
			RateLimitRPM:   120,
			MaxFragmentLen: 4000,
		},
		Responder: ResponderConfig{
			Mode:           "none",
			TimeoutSeconds: 60,
		},
		Database: DatabaseConfig{
			Mode: "file",
			Path: "~/.turnbuf/turns.jsonl",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars.
// A missing file yields the defaults plus env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.Database.Path = ExpandHome(cfg.Database.Path)
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}
	envBool := func(key string, dst *bool) {
		if v := os.Getenv(key); v != "" {
			*dst = v == "true" || v == "1"
		}
	}

	// Secrets
	envStr("TURNBUF_GATEWAY_TOKEN", &c.Gateway.Token)
	envStr("TURNBUF_RESPONDER_TOKEN", &c.Responder.Token)
	envStr("TURNBUF_TELEGRAM_TOKEN", &c.Channels.Telegram.Token)
	envStr("TURNBUF_DISCORD_TOKEN", &c.Channels.Discord.Token)
	envStr("TURNBUF_STT_API_KEY", &c.Channels.Telegram.STTAPIKey)
	envStr("TURNBUF_POSTGRES_DSN", &c.Database.PostgresDSN)

	// Auto-enable channels if credentials are provided via env
	if os.Getenv("TURNBUF_TELEGRAM_TOKEN") != "" {
		c.Channels.Telegram.Enabled = true
	}
	if os.Getenv("TURNBUF_DISCORD_TOKEN") != "" {
		c.Channels.Discord.Enabled = true
	}
	if v := os.Getenv("TURNBUF_WHATSAPP_BRIDGE_URL"); v != "" {
		c.Channels.WhatsApp.BridgeURL = v
		c.Channels.WhatsApp.Enabled = true
	}

	// Debounce tuning
	envInt("TURNBUF_SHORT_DELAY_MS", &c.Debounce.ShortDelayMs)
	envInt("TURNBUF_LONG_DELAY_MS", &c.Debounce.LongDelayMs)
	envInt("TURNBUF_MAX_FRAGMENTS", &c.Debounce.MaxFragments)
	envInt("TURNBUF_MAX_IDLE_AGE_MS", &c.Debounce.MaxIdleAgeMs)
	envStr("TURNBUF_REAP_SCHEDULE", &c.Debounce.ReapSchedule)

	// Responder
	envStr("TURNBUF_RESPONDER_MODE", &c.Responder.Mode)
	envStr("TURNBUF_RESPONDER_URL", &c.Responder.URL)

	// Gateway host/port
	envStr("TURNBUF_HOST", &c.Gateway.Host)
	envInt("TURNBUF_PORT", &c.Gateway.Port)

	// Database
	envStr("TURNBUF_DB_MODE", &c.Database.Mode)
	envStr("TURNBUF_DB_PATH", &c.Database.Path)

	// Telemetry
	envStr("TURNBUF_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("TURNBUF_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("TURNBUF_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	envBool("TURNBUF_TELEMETRY_ENABLED", &c.Telemetry.Enabled)
	envBool("TURNBUF_TELEMETRY_INSECURE", &c.Telemetry.Insecure)

	if v := os.Getenv("TURNBUF_ALLOWED_ORIGINS"); v != "" {
		c.Gateway.AllowedOrigins = strings.Split(v, ",")
	}
}

// Validate checks cross-field constraints that Load cannot express.
func (c *Config) Validate() error {
	if err := c.Debounce.ToOptions().Validate(); err != nil {
		return err
	}
	switch c.Responder.Mode {
	case "", "none", "echo":
	case "webhook":
		if c.Responder.URL == "" {
			return fmt.Errorf("responder.url is required in webhook mode")
		}
	default:
		return fmt.Errorf("unknown responder.mode %q", c.Responder.Mode)
	}
	switch c.Database.Mode {
	case "", "file", "sqlite":
	case "postgres":
		if c.Database.PostgresDSN == "" {
			return fmt.Errorf("TURNBUF_POSTGRES_DSN environment variable is not set")
		}
	default:
		return fmt.Errorf("unknown database.mode %q", c.Database.Mode)
	}
	return nil
}

// Save writes the config to a JSON file. Secrets tagged json:"-" are never written.
func Save(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}

// Hash returns a short SHA-256 of the serialized config, used to skip
// no-op reloads.
func (c *Config) Hash() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	data, _ := json.Marshal(c)
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum[:8])
}

// ExpandHome replaces a leading ~ with the user's home directory.
func ExpandHome(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[1:])
		}
	}
	return path
}
