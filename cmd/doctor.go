package cmd

import (
	"database/sql"
	"fmt"
	"os"
	"runtime"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/turnbuf/internal/config"
	"github.com/nextlevelbuilder/turnbuf/internal/store"
	"github.com/nextlevelbuilder/turnbuf/internal/upgrade"
	"github.com/nextlevelbuilder/turnbuf/pkg/protocol"
)

func doctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check configuration, storage and channel health",
		Run: func(cmd *cobra.Command, args []string) {
			runDoctor()
		},
	}
}

func runDoctor() {
	fmt.Println("turnbuf doctor")
	fmt.Printf("  Version:  %s (protocol %d)\n", Version, protocol.ProtocolVersion)
	fmt.Printf("  OS:       %s/%s\n", runtime.GOOS, runtime.GOARCH)
	fmt.Printf("  Go:       %s\n", runtime.Version())
	fmt.Println()

	cfgPath := resolveConfigPath()
	fmt.Printf("  Config:   %s", cfgPath)
	if _, err := os.Stat(cfgPath); err != nil {
		fmt.Println(" (NOT FOUND, using defaults)")
	} else {
		fmt.Println(" (OK)")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Printf("  Config load error: %s\n", err)
		return
	}
	if err := cfg.Validate(); err != nil {
		fmt.Printf("  Config invalid: %s\n", err)
	}

	d := cfg.DebounceSnapshot()
	fmt.Println()
	fmt.Println("  Debounce:")
	fmt.Printf("    %-12s %dms\n", "Short:", d.ShortDelayMs)
	fmt.Printf("    %-12s %dms\n", "Long:", d.LongDelayMs)
	fmt.Printf("    %-12s %d\n", "Max frags:", d.MaxFragments)
	fmt.Printf("    %-12s %s\n", "Reaper:", d.ReapSchedule)

	fmt.Println()
	fmt.Println("  Database:")
	fmt.Printf("    %-12s %s\n", "Mode:", orNone(cfg.Database.Mode))
	switch cfg.Database.Mode {
	case store.BackendPostgres:
		checkPostgres(cfg.Database.PostgresDSN)
	default:
		checkPath(cfg.Database.Path)
	}

	fmt.Println()
	fmt.Println("  Responder:")
	fmt.Printf("    %-12s %s\n", "Mode:", orNone(cfg.Responder.Mode))
	if cfg.Responder.Mode == "webhook" {
		fmt.Printf("    %-12s %s\n", "URL:", cfg.Responder.URL)
		checkSecret("Token", cfg.Responder.Token)
	}

	fmt.Println()
	fmt.Println("  Gateway:")
	fmt.Printf("    %-12s %s:%d\n", "Listen:", cfg.Gateway.Host, cfg.Gateway.Port)
	checkSecret("Token", cfg.Gateway.Token)
	fmt.Printf("    %-12s %v\n", "MCP:", cfg.Gateway.EnableMCP)

	fmt.Println()
	fmt.Println("  Channels:")
	checkChannel("Telegram", cfg.Channels.Telegram.Enabled, cfg.Channels.Telegram.Token != "")
	checkChannel("Discord", cfg.Channels.Discord.Enabled, cfg.Channels.Discord.Token != "")
	checkChannel("WhatsApp", cfg.Channels.WhatsApp.Enabled, cfg.Channels.WhatsApp.BridgeURL != "")
	if cfg.Channels.Telegram.Enabled {
		stt := "disabled"
		if cfg.Channels.Telegram.STTProxyURL != "" {
			stt = cfg.Channels.Telegram.STTProxyURL
		}
		fmt.Printf("    %-12s %s\n", "Voice STT:", stt)
	}

	fmt.Println()
	fmt.Println("Doctor check complete.")
}

func checkPostgres(dsn string) {
	if dsn == "" {
		fmt.Printf("    %-12s TURNBUF_POSTGRES_DSN not set\n", "Status:")
		return
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}
	defer db.Close()
	if err := db.Ping(); err != nil {
		fmt.Printf("    %-12s CONNECT FAILED (%s)\n", "Status:", err)
		return
	}

	s, err := upgrade.CheckSchema(db)
	switch {
	case err != nil:
		fmt.Printf("    %-12s CHECK FAILED (%s)\n", "Schema:", err)
	case s.Compatible:
		fmt.Printf("    %-12s v%d (up to date)\n", "Schema:", s.CurrentVersion)
	default:
		fmt.Printf("    %-12s v%d (%s)\n", "Schema:", s.CurrentVersion, upgrade.FormatError(s))
	}
}

func checkPath(path string) {
	if path == "" {
		fmt.Printf("    %-12s (memory only)\n", "Path:")
		return
	}
	fmt.Printf("    %-12s %s", "Path:", path)
	if _, err := os.Stat(path); err != nil {
		fmt.Println(" (will be created)")
	} else {
		fmt.Println(" (OK)")
	}
}

func checkSecret(name, value string) {
	if value == "" {
		fmt.Printf("    %-12s (not set)\n", name+":")
		return
	}
	fmt.Printf("    %-12s %s\n", name+":", maskSecret(value))
}

func maskSecret(v string) string {
	if len(v) <= 8 {
		return strings.Repeat("*", len(v))
	}
	return v[:4] + strings.Repeat("*", len(v)-8) + v[len(v)-4:]
}

func checkChannel(name string, enabled, hasCredentials bool) {
	status := "disabled"
	if enabled && hasCredentials {
		status = "enabled"
	} else if enabled {
		status = "enabled (missing credentials)"
	}
	fmt.Printf("    %-12s %s\n", name+":", status)
}

func orNone(s string) string {
	if s == "" {
		return "(default)"
	}
	return s
}
