package cmd

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/turnbuf/internal/bus"
	"github.com/nextlevelbuilder/turnbuf/internal/channels"
	"github.com/nextlevelbuilder/turnbuf/internal/config"
	"github.com/nextlevelbuilder/turnbuf/internal/debounce"
	"github.com/nextlevelbuilder/turnbuf/internal/gateway"
	"github.com/nextlevelbuilder/turnbuf/internal/handoff"
	httpapi "github.com/nextlevelbuilder/turnbuf/internal/http"
	"github.com/nextlevelbuilder/turnbuf/internal/mcp"
	"github.com/nextlevelbuilder/turnbuf/internal/presence"
	"github.com/nextlevelbuilder/turnbuf/pkg/protocol"
)

// shutdownGrace bounds how long in-flight handoffs may run after a signal.
const shutdownGrace = 15 * time.Second

func runGateway() {
	setupLogging()

	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "path", cfgPath, "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := initTracing(ctx, cfg.Telemetry)
	if err != nil {
		slog.Warn("telemetry disabled", "error", err)
	}
	defer func() {
		tctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		shutdownTracing(tctx)
	}()

	stores, err := openStores(cfg.Database)
	if err != nil {
		slog.Error("failed to open turn store", "mode", cfg.Database.Mode, "error", err)
		os.Exit(1)
	}
	defer stores.Close()

	msgBus := bus.New()

	dcfg := cfg.DebounceSnapshot()
	tracker := presence.NewTracker(time.Duration(cfg.Presence.TTLSeconds)*time.Second, cfg.Presence.MaxEntries)
	recorder := handoff.NewRecorder(buildResponder(cfg.Responder, msgBus), stores.Turns, msgBus)

	sched, err := debounce.New(dcfg.ToOptions(), recorder, debounce.WithActivitySource(tracker))
	if err != nil {
		slog.Error("failed to create scheduler", "error", err)
		os.Exit(1)
	}

	reaper, err := debounce.NewReaper(sched, dcfg.ReapSchedule)
	if err != nil {
		slog.Error("failed to create reaper", "error", err)
		os.Exit(1)
	}
	reaper.OnReap(func(removed int) {
		msgBus.Broadcast(bus.Event{
			Name:    protocol.EventBufferReaped,
			Payload: protocol.BufferPayload{Count: removed},
		})
	})

	channelMgr := channels.NewManager(msgBus)
	registerChannels(channelMgr, cfg.Channels, msgBus)

	server := gateway.NewServer(cfg.Gateway, msgBus, sched)
	server.SetBuffersHandler(httpapi.NewBuffersHandler(sched, msgBus, msgBus, cfg.Gateway.Token, cfg.Gateway.MaxFragmentLen))
	server.SetTurnsHandler(httpapi.NewTurnsHandler(stores.Turns, cfg.Gateway.Token))
	if cfg.Gateway.EnableMCP {
		srv := mcp.NewServer(mcp.NewTools(sched, stores.Turns, msgBus), Version)
		server.SetMCPHandler(mcp.NewHTTPHandler(srv))
		slog.Info("MCP diagnostics enabled", "path", "/mcp")
	}

	consumer := &inboundConsumer{
		sched:    sched,
		presence: tracker,
		dedupe:   bus.NewDedupeCache(time.Duration(dcfg.DedupeTTLMinutes)*time.Minute, dcfg.DedupeMaxEntries),
		events:   msgBus,
	}

	if err := channelMgr.StartAll(ctx); err != nil {
		slog.Error("failed to start channels", "error", err)
	}

	slog.Info("turnbuf gateway starting",
		"version", Version,
		"protocol", protocol.ProtocolVersion,
		"db", cfg.Database.Mode,
		"responder", cfg.Responder.Mode,
		"short_delay", sched.Options().ShortDelay,
		"long_delay", sched.Options().LongDelay,
		"max_fragments", sched.Options().MaxFragments,
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return consumer.consumeInbound(gctx, msgBus) })
	g.Go(func() error { return consumer.consumePresence(gctx, msgBus) })
	g.Go(func() error { return reaper.Run(gctx) })
	g.Go(func() error { return server.Start(gctx) })
	g.Go(func() error {
		err := config.Watch(gctx, cfgPath, func(next *config.Config) {
			cfg.ReplaceFrom(next)
			if err := sched.UpdateOptions(cfg.DebounceSnapshot().ToOptions()); err != nil {
				slog.Warn("debounce options rejected", "error", err)
			}
		})
		if err != nil {
			// Hot reload is optional; the gateway keeps running without it.
			slog.Warn("config hot reload unavailable", "error", err)
		}
		return nil
	})

	err = g.Wait()
	slog.Info("graceful shutdown initiated")

	server.BroadcastEvent(*protocol.NewEvent(protocol.EventShutdown, nil))
	channelMgr.StopAll(context.Background())

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if serr := sched.Stop(stopCtx); serr != nil {
		slog.Warn("scheduler stop", "error", serr)
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("gateway error", "error", err)
		os.Exit(1)
	}
}
