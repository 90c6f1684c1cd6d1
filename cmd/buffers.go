package cmd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/turnbuf/internal/debounce"
)

type buffersResponse struct {
	Buffers []debounce.Snapshot `json:"buffers"`
	Stats   debounce.Stats      `json:"stats"`
}

func buffersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "buffers",
		Short: "Inspect pending turn buffers on a running gateway",
		Run: func(cmd *cobra.Command, args []string) {
			runBuffersList()
		},
	}
	addAddrFlag(cmd)

	cmd.AddCommand(&cobra.Command{
		Use:   "inspect <user-key>",
		Short: "Show one buffer (user key is channel:user)",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runBuffersInspect(args[0])
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "cancel <user-key>",
		Short: "Drop a pending buffer without handing it off",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			runBuffersCancel(args[0])
		},
	})
	return cmd
}

func runBuffersList() {
	c, err := newAPIClient()
	if err != nil {
		fail(err)
	}
	var resp buffersResponse
	if err := c.do(context.Background(), http.MethodGet, "/v1/buffers", nil, &resp); err != nil {
		fail(err)
	}

	fmt.Printf("%d active buffer(s), %d handoff(s) in flight, %d capped turn(s) queued\n\n",
		resp.Stats.ActiveBuffers, resp.Stats.InFlight, resp.Stats.QueuedTurns)
	if len(resp.Buffers) == 0 {
		return
	}
	t := newTable("USER", "NAME", "FRAGS", "AGE", "IDLE", "DELAY", "STATE")
	for _, b := range resp.Buffers {
		state := "waiting"
		if b.HandoffRunning {
			state = "handoff"
		}
		t.add(b.UserID, b.DisplayName, strconv.Itoa(b.FragmentCount),
			shortDur(b.Age), shortDur(b.IdleFor), shortDur(b.PendingDelay), state)
	}
	t.render(os.Stdout)
}

func runBuffersInspect(userKey string) {
	c, err := newAPIClient()
	if err != nil {
		fail(err)
	}
	var snap debounce.Snapshot
	if err := c.do(context.Background(), http.MethodGet, "/v1/buffers/"+url.PathEscape(userKey), nil, &snap); err != nil {
		fail(err)
	}
	fmt.Printf("User:        %s\n", snap.UserID)
	fmt.Printf("Name:        %s\n", snap.DisplayName)
	fmt.Printf("Destination: %s\n", snap.Destination)
	fmt.Printf("Fragments:   %d\n", snap.FragmentCount)
	fmt.Printf("Age:         %s\n", shortDur(snap.Age))
	fmt.Printf("Idle:        %s\n", shortDur(snap.IdleFor))
	fmt.Printf("Delay:       %s\n", shortDur(snap.PendingDelay))
	if !snap.Deadline.IsZero() {
		fmt.Printf("Flushes at:  %s\n", snap.Deadline.Local().Format(time.TimeOnly))
	}
	fmt.Printf("Handoff:     %v\n", snap.HandoffRunning)
}

func runBuffersCancel(userKey string) {
	c, err := newAPIClient()
	if err != nil {
		fail(err)
	}
	if err := c.do(context.Background(), http.MethodDelete, "/v1/buffers/"+url.PathEscape(userKey), nil, nil); err != nil {
		fail(err)
	}
	fmt.Printf("Buffer for %s cancelled\n", userKey)
}

func shortDur(d time.Duration) string {
	if d <= 0 {
		return "-"
	}
	return d.Round(100 * time.Millisecond).String()
}
