package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mymmrac/telego"

	"github.com/nextlevelbuilder/turnbuf/internal/bus"
	"github.com/nextlevelbuilder/turnbuf/internal/channels"
)

// handleMessage turns one Telegram message into a fragment (text) or a
// recording → transcript → paused sequence (voice).
func (c *Channel) handleMessage(ctx context.Context, message *telego.Message) {
	user := message.From
	if user == nil || user.IsBot {
		return
	}

	userID := fmt.Sprintf("%d", user.ID)
	senderID := userID
	if user.Username != "" {
		senderID = fmt.Sprintf("%s|%s", userID, user.Username)
	}
	chatIDStr := fmt.Sprintf("%d", message.Chat.ID)

	isGroup := message.Chat.Type == "group" || message.Chat.Type == "supergroup"
	peerKind := channels.PeerDirect
	if isGroup {
		peerKind = channels.PeerGroup
	}
	if !c.CheckPolicy(peerKind, c.config.DMPolicy, c.config.GroupPolicy, senderID) {
		slog.Debug("telegram message rejected by policy",
			"user_id", userID, "chat_id", chatIDStr, "peer_kind", peerKind)
		return
	}

	text := strings.TrimSpace(message.Text)
	if text == "" {
		text = strings.TrimSpace(message.Caption)
	}
	if handled := c.handleBotCommand(ctx, message, senderID, chatIDStr, text); handled {
		return
	}

	metadata := map[string]string{
		"message_id": fmt.Sprintf("%d", message.MessageID),
		"username":   user.Username,
	}
	name := displayName(user)

	if fileID := voiceFileID(message); fileID != "" {
		// Escalate the window before the (slow) transcription starts.
		c.HandlePresence(senderID, chatIDStr, bus.PresenceRecording)
		go c.handleVoice(ctx, fileID, senderID, chatIDStr, name, metadata, peerKind)
		return
	}

	if text == "" {
		slog.Debug("telegram message without text skipped", "chat_id", chatIDStr, "message_id", message.MessageID)
		return
	}

	slog.Debug("telegram message received",
		"sender_id", senderID,
		"chat_id", chatIDStr,
		"preview", channels.Truncate(text, 50),
	)
	c.HandleMessage(senderID, chatIDStr, text, name, metadata, peerKind)
}

// handleVoice downloads and transcribes a voice note, publishing the
// transcript as a fragment. Presence is always reset to paused afterwards.
func (c *Channel) handleVoice(ctx context.Context, fileID, senderID, chatID, name string, metadata map[string]string, peerKind string) {
	defer c.HandlePresence(senderID, chatID, bus.PresencePaused)

	if c.config.STTProxyURL == "" {
		slog.Debug("telegram voice note ignored, no STT proxy configured", "chat_id", chatID)
		return
	}
	maxBytes := c.config.MediaMaxBytes
	if maxBytes == 0 {
		maxBytes = defaultMediaMaxBytes
	}
	path, err := c.downloadVoice(ctx, fileID, maxBytes)
	if err != nil {
		slog.Warn("failed to download voice", "file_id", fileID, "error", err)
		return
	}
	defer os.Remove(path)

	transcript, err := c.transcribeAudio(ctx, path)
	if err != nil {
		slog.Warn("telegram: voice transcription failed", "chat_id", chatID, "error", err)
		return
	}
	transcript = strings.TrimSpace(transcript)
	if transcript == "" {
		return
	}

	metadata["source"] = "voice"
	c.HandleMessage(senderID, chatID, transcript, name, metadata, peerKind)
}

// voiceFileID returns the file id of a voice note or audio attachment.
func voiceFileID(msg *telego.Message) string {
	switch {
	case msg.Voice != nil:
		return msg.Voice.FileID
	case msg.Audio != nil:
		return msg.Audio.FileID
	case msg.VideoNote != nil:
		return msg.VideoNote.FileID
	}
	return ""
}

// displayName prefers the user's full name, then their @username.
func displayName(user *telego.User) string {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name == "" && user.Username != "" {
		name = "@" + user.Username
	}
	return name
}
