package telegram

import (
	"context"
	"log/slog"
	"strings"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/turnbuf/internal/bus"
)

// handleBotCommand answers /help and forwards /cancel to the pipeline.
// It reports whether text was a command it consumed.
func (c *Channel) handleBotCommand(ctx context.Context, message *telego.Message, senderID, chatIDStr, text string) bool {
	if len(text) == 0 || text[0] != '/' {
		return false
	}

	// Strip @botname suffix if present
	cmd := strings.SplitN(text, " ", 2)[0]
	cmd = strings.SplitN(cmd, "@", 2)[0]
	cmd = strings.ToLower(cmd)

	chatIDObj := tu.ID(message.Chat.ID)

	switch cmd {
	case "/start":
		// Let /start pass through as a normal fragment.
		return false

	case "/help":
		helpText := "Send messages as you normally would. Messages sent in quick succession " +
			"are answered together.\n\n" +
			"/cancel - Discard what you have typed so far\n" +
			"/help - Show this help message"
		if _, err := c.bot.SendMessage(ctx, tu.Message(chatIDObj, helpText)); err != nil {
			slog.Debug("telegram help reply failed", "error", err)
		}
		return true

	case "/cancel":
		c.Bus().PublishInbound(bus.InboundMessage{
			Channel:  c.Name(),
			SenderID: senderID,
			ChatID:   chatIDStr,
			Content:  "/cancel",
			UserID:   strings.SplitN(senderID, "|", 2)[0],
			Metadata: map[string]string{"command": "cancel"},
		})
		return true
	}

	return false
}

// SyncMenuCommands registers bot commands with Telegram via setMyCommands.
func (c *Channel) SyncMenuCommands(ctx context.Context, commands []telego.BotCommand) error {
	if err := c.bot.DeleteMyCommands(ctx, nil); err != nil {
		slog.Debug("deleteMyCommands failed (may not exist)", "error", err)
	}
	if len(commands) == 0 {
		return nil
	}
	return c.bot.SetMyCommands(ctx, &telego.SetMyCommandsParams{
		Commands: commands,
	})
}

// DefaultMenuCommands returns the default bot menu commands.
func DefaultMenuCommands() []telego.BotCommand {
	return []telego.BotCommand{
		{Command: "help", Description: "Show available commands"},
		{Command: "cancel", Description: "Discard the message you are composing"},
	}
}
