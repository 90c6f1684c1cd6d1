package config

// ChannelsConfig contains per-platform channel configs.
type ChannelsConfig struct {
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
	WhatsApp WhatsAppConfig `json:"whatsapp"`

	// Per-sender fragment rate limit shared by every channel (0 = disabled).
	SenderRateLimitPerMinute int `json:"sender_rate_limit_per_minute,omitempty"`
}

type TelegramConfig struct {
	Enabled       bool                `json:"enabled"`
	Token         string              `json:"token"`
	Proxy         string              `json:"proxy,omitempty"`
	AllowFrom     FlexibleStringSlice `json:"allow_from"`
	DMPolicy      string              `json:"dm_policy,omitempty"`       // "open" (default), "allowlist", "disabled"
	GroupPolicy   string              `json:"group_policy,omitempty"`    // "open" (default), "allowlist", "disabled"
	MediaMaxBytes int64               `json:"media_max_bytes,omitempty"` // max voice download size in bytes (default 20MB)

	// Speech-to-text proxy used for voice notes. Empty URL disables transcription.
	STTProxyURL       string `json:"stt_proxy_url,omitempty"`
	STTAPIKey         string `json:"-"` // from env TURNBUF_STT_API_KEY only
	STTTenantID       string `json:"stt_tenant_id,omitempty"`
	STTTimeoutSeconds int    `json:"stt_timeout_seconds,omitempty"` // default 30
}

type DiscordConfig struct {
	Enabled     bool                `json:"enabled"`
	Token       string              `json:"token"`
	AllowFrom   FlexibleStringSlice `json:"allow_from"`
	DMPolicy    string              `json:"dm_policy,omitempty"`    // "open" (default), "allowlist", "disabled"
	GroupPolicy string              `json:"group_policy,omitempty"` // "open" (default), "allowlist", "disabled"
}

type WhatsAppConfig struct {
	Enabled     bool                `json:"enabled"`
	BridgeURL   string              `json:"bridge_url"`
	AllowFrom   FlexibleStringSlice `json:"allow_from"`
	DMPolicy    string              `json:"dm_policy,omitempty"`    // "open" (default), "allowlist", "disabled"
	GroupPolicy string              `json:"group_policy,omitempty"` // "open" (default), "allowlist", "disabled"
}
