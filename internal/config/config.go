package config

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nextlevelbuilder/turnbuf/internal/debounce"
)

// FlexibleStringSlice accepts both ["str"] and [123] in JSON.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

// Config is the root configuration for the turnbuf gateway.
type Config struct {
	Debounce  DebounceConfig  `json:"debounce"`
	Presence  PresenceConfig  `json:"presence"`
	Channels  ChannelsConfig  `json:"channels"`
	Gateway   GatewayConfig   `json:"gateway"`
	Responder ResponderConfig `json:"responder"`
	Database  DatabaseConfig  `json:"database,omitempty"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
	mu        sync.RWMutex
}

// DebounceConfig tunes the turn scheduler. Zero values take the scheduler defaults.
type DebounceConfig struct {
	ShortDelayMs       int    `json:"short_delay_ms,omitempty"`       // idle-user window (default 2000)
	LongDelayMs        int    `json:"long_delay_ms,omitempty"`        // window while typing/recording (default 5000)
	MaxFragments       int    `json:"max_fragments,omitempty"`        // forced flush threshold (default 50)
	MaxIdleAgeMs       int    `json:"max_idle_age_ms,omitempty"`      // reaper cutoff (default 900000)
	ReapSchedule       string `json:"reap_schedule,omitempty"`        // cron expression (default "*/5 * * * *")
	DefaultDisplayName string `json:"default_display_name,omitempty"` // placeholder name (default "User")
	DedupeTTLMinutes   int    `json:"dedupe_ttl_minutes,omitempty"`   // inbound message-id dedupe window (default 20)
	DedupeMaxEntries   int    `json:"dedupe_max_entries,omitempty"`   // default 5000
}

// ToOptions converts the file representation into scheduler options.
func (d DebounceConfig) ToOptions() debounce.Options {
	return debounce.Options{
		ShortDelay:         time.Duration(d.ShortDelayMs) * time.Millisecond,
		LongDelay:          time.Duration(d.LongDelayMs) * time.Millisecond,
		MaxFragments:       d.MaxFragments,
		MaxIdleAge:         time.Duration(d.MaxIdleAgeMs) * time.Millisecond,
		DefaultDisplayName: d.DefaultDisplayName,
	}
}

// PresenceConfig bounds the typing/recording tracker.
type PresenceConfig struct {
	TTLSeconds int `json:"ttl_seconds,omitempty"` // how long an indicator stays current (default 10)
	MaxEntries int `json:"max_entries,omitempty"` // default 5000
}

// GatewayConfig configures the HTTP/WebSocket API.
type GatewayConfig struct {
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	Token          string   `json:"-"`                         // from env TURNBUF_GATEWAY_TOKEN only
	AllowedOrigins []string `json:"allowed_origins,omitempty"` // WebSocket origin whitelist (empty = allow all)
	RateLimitRPM   int      `json:"rate_limit_rpm,omitempty"`  // per-client request limit (0 = disabled)
	MaxFragmentLen int      `json:"max_fragment_len,omitempty"` // longest accepted fragment in runes (default 4000)
	EnableMCP      bool     `json:"enable_mcp,omitempty"`      // mount the MCP diagnostics server at /mcp
}

// ResponderConfig selects where completed turns go.
type ResponderConfig struct {
	Mode           string `json:"mode,omitempty"`            // "webhook", "echo" or "none" (default "none")
	URL            string `json:"url,omitempty"`             // webhook endpoint
	Token          string `json:"-"`                         // from env TURNBUF_RESPONDER_TOKEN only
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"` // default 60
}

// DatabaseConfig selects the turn log backend.
// PostgresDSN is NEVER read from config.json (secret), only from env TURNBUF_POSTGRES_DSN.
type DatabaseConfig struct {
	Mode        string `json:"mode,omitempty"`        // "file" (default), "sqlite" or "postgres"
	Path        string `json:"path,omitempty"`        // JSONL or SQLite file
	PostgresDSN string `json:"-"`
}

// TelemetryConfig configures OpenTelemetry export for handoff spans.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // OTLP endpoint (e.g. "localhost:4317")
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext transport for local collectors
	ServiceName string            `json:"service_name,omitempty"` // default "turnbuf-gateway"
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (e.g. auth tokens for cloud backends)
}

// ReplaceFrom copies all data fields from src into c, preserving c's mutex.
func (c *Config) ReplaceFrom(src *Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Debounce = src.Debounce
	c.Presence = src.Presence
	c.Channels = src.Channels
	c.Gateway = src.Gateway
	c.Responder = src.Responder
	c.Database = src.Database
	c.Telemetry = src.Telemetry
}

// DebounceSnapshot returns the debounce section under the read lock.
func (c *Config) DebounceSnapshot() DebounceConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Debounce
}
