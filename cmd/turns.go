package cmd

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/turnbuf/internal/store"
)

func turnsCmd() *cobra.Command {
	var (
		userKey string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "turns",
		Short: "List recently handed-off turns",
		Run: func(cmd *cobra.Command, args []string) {
			c, err := newAPIClient()
			if err != nil {
				fail(err)
			}
			q := url.Values{}
			if userKey != "" {
				q.Set("user_id", userKey)
			}
			if limit > 0 {
				q.Set("limit", strconv.Itoa(limit))
			}
			path := "/v1/turns"
			if len(q) > 0 {
				path += "?" + q.Encode()
			}

			var resp struct {
				Turns []store.TurnRecord `json:"turns"`
			}
			if err := c.do(context.Background(), http.MethodGet, path, nil, &resp); err != nil {
				fail(err)
			}

			t := newTable("TIME", "USER", "FRAGS", "REASON", "TOOK", "STATUS", "TEXT")
			for _, r := range resp.Turns {
				status := string(r.Status)
				if r.Error != "" {
					status += ": " + r.Error
				}
				t.add(r.FlushedAt.Local().Format("01-02 15:04:05"), r.UserID,
					strconv.Itoa(len(r.Fragments)), r.Reason, shortDur(time.Duration(r.DurationMS)*time.Millisecond), status, r.Text)
			}
			t.render(os.Stdout)
		},
	}
	addAddrFlag(cmd)
	cmd.Flags().StringVarP(&userKey, "user", "u", "", "only turns for this user key (channel:user)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "max turns to show (default 50)")
	return cmd
}
