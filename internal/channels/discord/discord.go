package discord

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bwmarrin/discordgo"

	"github.com/nextlevelbuilder/turnbuf/internal/bus"
	"github.com/nextlevelbuilder/turnbuf/internal/channels"
	"github.com/nextlevelbuilder/turnbuf/internal/config"
)

// maxMessageLen is Discord's per-message character limit.
const maxMessageLen = 2000

// Channel connects to Discord via the Bot API using gateway events.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	config    config.DiscordConfig
	botUserID string // populated on start
}

// New creates a new Discord channel from config.
func New(cfg config.DiscordConfig, msgBus bus.MessageRouter) (*Channel, error) {
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	// Typing intents feed the presence pipeline.
	session.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent |
		discordgo.IntentsGuildMessageTyping |
		discordgo.IntentsDirectMessageTyping

	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord", msgBus, cfg.AllowFrom),
		session:     session,
		config:      cfg,
	}, nil
}

// Start opens the Discord gateway connection and begins receiving events.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord bot")

	c.session.AddHandler(c.handleMessage)
	c.session.AddHandler(c.handleTyping)

	if err := c.session.Open(); err != nil {
		return fmt.Errorf("open discord session: %w", err)
	}

	user, err := c.session.User("@me")
	if err != nil {
		c.session.Close()
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}
	c.botUserID = user.ID

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	c.SetRunning(false)
	return c.session.Close()
}

// Send delivers an outbound message to a Discord channel.
func (c *Channel) Send(_ context.Context, msg bus.OutboundMessage) error {
	if !c.IsRunning() {
		return fmt.Errorf("discord bot not running")
	}
	if msg.ChatID == "" {
		return fmt.Errorf("empty chat ID for discord send")
	}
	if msg.Content == "" {
		return nil
	}
	for _, chunk := range chunkContent(msg.Content, maxMessageLen) {
		if _, err := c.session.ChannelMessageSend(msg.ChatID, chunk); err != nil {
			return fmt.Errorf("send discord message: %w", err)
		}
	}
	return nil
}

// handleMessage turns a Discord message into a fragment.
func (c *Channel) handleMessage(_ *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == c.botUserID || m.Author.Bot {
		return
	}

	senderID := m.Author.ID
	peerKind := peerKindOf(m.GuildID)
	if !c.CheckPolicy(peerKind, c.config.DMPolicy, c.config.GroupPolicy, senderID) {
		slog.Debug("discord message rejected by policy",
			"user_id", senderID,
			"peer_kind", peerKind,
		)
		return
	}

	content := m.Content
	for _, att := range m.Attachments {
		if content != "" {
			content += "\n"
		}
		content += fmt.Sprintf("[attachment: %s]", att.URL)
	}
	if content == "" {
		return
	}

	slog.Debug("discord message received",
		"sender_id", senderID,
		"channel_id", m.ChannelID,
		"preview", channels.Truncate(content, 50),
	)

	c.HandleMessage(senderID, m.ChannelID, content, resolveDisplayName(m), map[string]string{
		"message_id": m.ID,
	}, peerKind)
}

// handleTyping forwards Discord's typing indicator as presence. Discord has
// no "stopped typing" event; the presence TTL expires it.
func (c *Channel) handleTyping(_ *discordgo.Session, t *discordgo.TypingStart) {
	if t.UserID == "" || t.UserID == c.botUserID {
		return
	}
	if !c.CheckPolicy(peerKindOf(t.GuildID), c.config.DMPolicy, c.config.GroupPolicy, t.UserID) {
		return
	}
	c.HandlePresence(t.UserID, t.ChannelID, bus.PresenceTyping)
}

func peerKindOf(guildID string) string {
	if guildID == "" {
		return channels.PeerDirect
	}
	return channels.PeerGroup
}

// resolveDisplayName returns the best available display name for a Discord message author.
// Priority: server nickname > global display name > username.
func resolveDisplayName(m *discordgo.MessageCreate) string {
	if m.Member != nil && m.Member.Nick != "" {
		return m.Member.Nick
	}
	if m.Author.GlobalName != "" {
		return m.Author.GlobalName
	}
	return m.Author.Username
}

// chunkContent splits content into pieces of at most maxLen bytes,
// preferring to break after a newline in the second half of a chunk.
func chunkContent(content string, maxLen int) []string {
	var out []string
	for len(content) > 0 {
		if len(content) <= maxLen {
			out = append(out, content)
			break
		}
		cutAt := maxLen
		if idx := lastIndexByte(content[:maxLen], '\n'); idx > maxLen/2 {
			cutAt = idx + 1
		}
		out = append(out, content[:cutAt])
		content = content[cutAt:]
	}
	return out
}

// lastIndexByte returns the last index of byte c in s, or -1.
func lastIndexByte(s string, c byte) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == c {
			return i
		}
	}
	return -1
}
