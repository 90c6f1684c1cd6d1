package cmd

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/turnbuf/internal/bus"
	"github.com/nextlevelbuilder/turnbuf/internal/channels"
	"github.com/nextlevelbuilder/turnbuf/internal/channels/discord"
	"github.com/nextlevelbuilder/turnbuf/internal/channels/telegram"
	"github.com/nextlevelbuilder/turnbuf/internal/channels/whatsapp"
	"github.com/nextlevelbuilder/turnbuf/internal/config"
	"github.com/nextlevelbuilder/turnbuf/internal/debounce"
	"github.com/nextlevelbuilder/turnbuf/internal/gateway"
	"github.com/nextlevelbuilder/turnbuf/internal/handoff"
	"github.com/nextlevelbuilder/turnbuf/internal/store"
	"github.com/nextlevelbuilder/turnbuf/internal/store/file"
	"github.com/nextlevelbuilder/turnbuf/internal/store/pg"
	"github.com/nextlevelbuilder/turnbuf/internal/store/sqlite"
)

// openStores opens the turn log selected by database.mode.
func openStores(cfg config.DatabaseConfig) (*store.Stores, error) {
	switch cfg.Mode {
	case "", store.BackendFile:
		ts, err := file.NewFileTurnStore(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &store.Stores{Turns: ts}, nil
	case store.BackendSQLite:
		ts, err := sqlite.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return &store.Stores{Turns: ts}, nil
	case store.BackendPostgres:
		return pg.NewPGStores(store.StoreConfig{
			Mode:        cfg.Mode,
			PostgresDSN: cfg.PostgresDSN,
		})
	default:
		return nil, fmt.Errorf("unknown database.mode %q", cfg.Mode)
	}
}

// buildResponder returns the handoff target selected by responder.mode.
func buildResponder(cfg config.ResponderConfig, out handoff.OutboundPublisher) debounce.Handoff {
	switch cfg.Mode {
	case "webhook":
		slog.Info("responder: webhook", "url", cfg.URL)
		return handoff.NewWebhook(cfg.URL, cfg.Token, time.Duration(cfg.TimeoutSeconds)*time.Second, out)
	case "echo":
		slog.Info("responder: echo")
		return handoff.NewEcho(out)
	default:
		slog.Info("responder: none, turns are only logged")
		return handoff.Discard
	}
}

// registerChannels wires every enabled platform channel plus the REST reply
// channel into mgr.
func registerChannels(mgr *channels.Manager, cfg config.ChannelsConfig, msgBus *bus.MessageBus) {
	limiter := channels.NewRateLimiter(cfg.SenderRateLimitPerMinute, 5)
	if limiter.Enabled() {
		slog.Info("sender rate limiting enabled", "per_minute", cfg.SenderRateLimitPerMinute)
	}

	register := func(name string, ch channels.Channel, base *channels.BaseChannel) {
		base.SetRateLimiter(limiter)
		mgr.RegisterChannel(name, ch)
		slog.Info("channel enabled", "channel", name)
	}

	if cfg.Telegram.Enabled && cfg.Telegram.Token != "" {
		if tg, err := telegram.New(cfg.Telegram, msgBus); err != nil {
			slog.Error("failed to initialize telegram channel", "error", err)
		} else {
			register("telegram", tg, tg.BaseChannel)
		}
	}

	if cfg.Discord.Enabled && cfg.Discord.Token != "" {
		if dc, err := discord.New(cfg.Discord, msgBus); err != nil {
			slog.Error("failed to initialize discord channel", "error", err)
		} else {
			register("discord", dc, dc.BaseChannel)
		}
	}

	if cfg.WhatsApp.Enabled && cfg.WhatsApp.BridgeURL != "" {
		if wa, err := whatsapp.New(cfg.WhatsApp, msgBus); err != nil {
			slog.Error("failed to initialize whatsapp channel", "error", err)
		} else {
			register("whatsapp", wa, wa.BaseChannel)
		}
	}

	reply := gateway.NewReplyChannel(msgBus, msgBus)
	mgr.RegisterChannel(reply.Name(), reply)
}
