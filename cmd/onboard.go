package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/turnbuf/internal/config"
	"github.com/nextlevelbuilder/turnbuf/internal/store"
)

func onboardCmd() *cobra.Command {
	var nonInteractive bool
	cmd := &cobra.Command{
		Use:   "onboard",
		Short: "Write a starter config.json",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return err
			}
			if !nonInteractive {
				if err := runOnboardForm(cfg); err != nil {
					return err
				}
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("config not saved: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			fmt.Printf("Config written to %s\n", cfgPath)
			printSecretHints(cfg)
			return nil
		},
	}
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "save defaults plus TURNBUF_* env overrides without prompting")
	return cmd
}

// onboardAnswers holds form values that need conversion before they land
// in the config.
type onboardAnswers struct {
	port       string
	shortDelay string
	longDelay  string
}

func runOnboardForm(cfg *config.Config) error {
	a := onboardAnswers{
		port:       strconv.Itoa(cfg.Gateway.Port),
		shortDelay: strconv.Itoa(cfg.Debounce.ShortDelayMs),
		longDelay:  strconv.Itoa(cfg.Debounce.LongDelayMs),
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Gateway host").Value(&cfg.Gateway.Host),
			huh.NewInput().Title("Gateway port").Value(&a.port).Validate(positiveInt),
		),
		huh.NewGroup(
			huh.NewInput().Title("Short delay (ms)").
				Description("Quiet period before flushing when the user is idle").
				Value(&a.shortDelay).Validate(positiveInt),
			huh.NewInput().Title("Long delay (ms)").
				Description("Quiet period while the user is typing or recording").
				Value(&a.longDelay).Validate(positiveInt),
		),
		huh.NewGroup(
			huh.NewSelect[string]().Title("Responder").
				Options(
					huh.NewOption("none (log turns only)", "none"),
					huh.NewOption("echo (reply with the combined text)", "echo"),
					huh.NewOption("webhook (POST turns to a URL)", "webhook"),
				).
				Value(&cfg.Responder.Mode),
			huh.NewInput().Title("Webhook URL (webhook mode)").Value(&cfg.Responder.URL),
		),
		huh.NewGroup(
			huh.NewSelect[string]().Title("Turn log").
				Options(
					huh.NewOption("JSONL file", store.BackendFile),
					huh.NewOption("SQLite", store.BackendSQLite),
					huh.NewOption("PostgreSQL (DSN from TURNBUF_POSTGRES_DSN)", store.BackendPostgres),
				).
				Value(&cfg.Database.Mode),
			huh.NewInput().Title("Log path (file/sqlite)").Value(&cfg.Database.Path),
		),
		huh.NewGroup(
			huh.NewConfirm().Title("Enable Telegram?").Value(&cfg.Channels.Telegram.Enabled),
			huh.NewConfirm().Title("Enable Discord?").Value(&cfg.Channels.Discord.Enabled),
			huh.NewConfirm().Title("Enable WhatsApp bridge?").Value(&cfg.Channels.WhatsApp.Enabled),
			huh.NewInput().Title("WhatsApp bridge URL").Value(&cfg.Channels.WhatsApp.BridgeURL),
		),
	)
	if err := form.Run(); err != nil {
		return err
	}

	cfg.Gateway.Port, _ = strconv.Atoi(a.port)
	cfg.Debounce.ShortDelayMs, _ = strconv.Atoi(a.shortDelay)
	cfg.Debounce.LongDelayMs, _ = strconv.Atoi(a.longDelay)
	return nil
}

func positiveInt(s string) error {
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return fmt.Errorf("must be a positive integer")
	}
	return nil
}

// printSecretHints lists env vars the user still has to export. Secrets
// are never written to config.json.
func printSecretHints(cfg *config.Config) {
	var hints []string
	if cfg.Gateway.Token == "" {
		hints = append(hints, "TURNBUF_GATEWAY_TOKEN   (protects the REST, /ws and /mcp endpoints)")
	}
	if cfg.Channels.Telegram.Enabled && os.Getenv("TURNBUF_TELEGRAM_TOKEN") == "" {
		hints = append(hints, "TURNBUF_TELEGRAM_TOKEN")
	}
	if cfg.Channels.Discord.Enabled && os.Getenv("TURNBUF_DISCORD_TOKEN") == "" {
		hints = append(hints, "TURNBUF_DISCORD_TOKEN")
	}
	if cfg.Database.Mode == store.BackendPostgres && cfg.Database.PostgresDSN == "" {
		hints = append(hints, "TURNBUF_POSTGRES_DSN    (then run: turnbuf migrate up)")
	}
	if cfg.Responder.Mode == "webhook" && cfg.Responder.Token == "" {
		hints = append(hints, "TURNBUF_RESPONDER_TOKEN (optional bearer token for the webhook)")
	}
	if len(hints) == 0 {
		return
	}
	fmt.Println("\nSet these environment variables before starting the gateway:")
	for _, h := range hints {
		fmt.Println("  " + h)
	}
}
