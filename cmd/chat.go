package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	httpapi "github.com/nextlevelbuilder/turnbuf/internal/http"
	"github.com/nextlevelbuilder/turnbuf/pkg/protocol"
)

func chatCmd() *cobra.Command {
	var userID, name string
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Send fragments to a running gateway and watch turns form",
		Long: "Each line you type is sent as one fragment. The gateway combines lines " +
			"sent in quick succession into a single turn. Commands: /typing, /recording, " +
			"/paused, /cancel, exit.",
		Run: func(cmd *cobra.Command, args []string) {
			runChat(userID, name)
		},
	}
	addAddrFlag(cmd)
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id (default: cli-<random>)")
	cmd.Flags().StringVar(&name, "name", "", "display name sent with fragments")
	return cmd
}

func runChat(userID, name string) {
	c, err := newAPIClient()
	if err != nil {
		fail(err)
	}
	if userID == "" {
		userID = "cli-" + uuid.NewString()[:8]
	}
	userKey := httpapi.ChannelHTTP + ":" + userID

	conn, _, err := websocket.DefaultDialer.Dial(c.wsURL(), nil)
	if err != nil {
		fail(fmt.Errorf("WebSocket connect failed: %w", err))
	}
	defer conn.Close()
	go watchTurns(conn, userID, userKey)

	fmt.Fprintf(os.Stderr, "\nturnbuf chat (user: %s)\n", userKey)
	fmt.Fprintf(os.Stderr, "Type lines quickly to see them merge. \"exit\" to quit.\n\n")

	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Fprint(os.Stderr, "> ")
		if !scanner.Scan() {
			return
		}
		input := strings.TrimSpace(scanner.Text())
		switch input {
		case "":
			continue
		case "exit", "quit":
			return
		case "/typing", "/recording", "/paused":
			body := map[string]string{"user_id": userID, "state": strings.TrimPrefix(input, "/")}
			if err := c.do(ctx, http.MethodPost, "/v1/activity", body, nil); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			}
			continue
		case "/cancel":
			if err := c.do(ctx, http.MethodDelete, "/v1/buffers/"+url.PathEscape(userKey), nil, nil); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			} else {
				fmt.Fprintln(os.Stderr, "(buffer cancelled)")
			}
			continue
		}

		body := map[string]string{
			"user_id":      userID,
			"content":      input,
			"display_name": name,
			"message_id":   uuid.NewString(),
		}
		if err := c.do(ctx, http.MethodPost, "/v1/fragments", body, nil); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
	}
}

// watchTurns prints turn and reply events for this user until the
// connection closes.
func watchTurns(conn *websocket.Conn, userID, userKey string) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var frame struct {
			Event   string          `json:"event"`
			Payload json.RawMessage `json:"payload"`
		}
		if json.Unmarshal(data, &frame) != nil {
			continue
		}
		if line := describeEvent(frame.Event, frame.Payload, userID, userKey); line != "" {
			fmt.Fprintf(os.Stderr, "\r%s\n> ", line)
		}
	}
}

// describeEvent renders an event for the chat REPL, or "" when it concerns
// another user.
func describeEvent(event string, payload json.RawMessage, userID, userKey string) string {
	switch event {
	case protocol.EventTurnCompleted, protocol.EventTurnFailed:
		var p protocol.TurnPayload
		if json.Unmarshal(payload, &p) != nil || p.UserID != userKey {
			return ""
		}
		if p.Error != "" {
			return fmt.Sprintf("[turn %s failed: %s]", shortID(p.TurnID), p.Error)
		}
		return fmt.Sprintf("[turn %s: %d fragment(s), %s]", shortID(p.TurnID), p.Fragments, p.Reason)
	case protocol.EventTurnReply:
		var p protocol.ReplyPayload
		if json.Unmarshal(payload, &p) != nil || p.ChatID != userID {
			return ""
		}
		return "< " + p.Content
	case protocol.EventBufferCancelled:
		var p protocol.BufferPayload
		if json.Unmarshal(payload, &p) != nil || p.UserID != userKey {
			return ""
		}
		return "[buffer cancelled]"
	case protocol.EventShutdown:
		return "[gateway shutting down]"
	}
	return ""
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}
