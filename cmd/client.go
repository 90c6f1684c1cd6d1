package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/nextlevelbuilder/turnbuf/internal/config"
)

// apiClient talks to a running gateway's REST API.
type apiClient struct {
	base  string
	token string
	http  *http.Client
}

var gatewayAddr string

// addAddrFlag registers --addr on commands that call a running gateway.
func addAddrFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVar(&gatewayAddr, "addr", "", "gateway address host:port (default: from config)")
}

// newAPIClient resolves the gateway address and token from flags, env and
// config, in that order.
func newAPIClient() (*apiClient, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}
	addr := gatewayAddr
	if addr == "" {
		host := cfg.Gateway.Host
		if host == "" || host == "0.0.0.0" {
			host = "127.0.0.1"
		}
		addr = fmt.Sprintf("%s:%d", host, cfg.Gateway.Port)
	}
	return &apiClient{
		base:  "http://" + addr,
		token: cfg.Gateway.Token,
		http:  &http.Client{Timeout: 15 * time.Second},
	}, nil
}

// wsURL returns the /ws endpoint with the token as a query parameter.
func (c *apiClient) wsURL() string {
	u := "ws" + strings.TrimPrefix(c.base, "http") + "/ws"
	if c.token != "" {
		u += "?token=" + url.QueryEscape(c.token)
	}
	return u
}

// do sends a request and decodes a JSON response into out (may be nil).
// Non-2xx responses become errors carrying the server's message.
func (c *apiClient) do(ctx context.Context, method, path string, body, out interface{}) error {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rdr = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, rdr)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("gateway unreachable at %s: %w", c.base, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			return fmt.Errorf("%s %s: %s (%d)", method, path, e.Error, resp.StatusCode)
		}
		return fmt.Errorf("%s %s: status %d", method, path, resp.StatusCode)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// table renders rows with columns padded to their display width, so CJK
// text and emoji in names or previews stay aligned.
type table struct {
	header []string
	rows   [][]string
	maxCol int
}

func newTable(header ...string) *table { return &table{header: header, maxCol: 48} }

func (t *table) add(cols ...string) { t.rows = append(t.rows, cols) }

func (t *table) render(w io.Writer) {
	widths := make([]int, len(t.header))
	cells := append([][]string{t.header}, t.rows...)
	for _, row := range cells {
		for i := range row {
			if i >= len(widths) {
				break
			}
			row[i] = runewidth.Truncate(strings.ReplaceAll(row[i], "\n", " "), t.maxCol, "…")
			if n := runewidth.StringWidth(row[i]); n > widths[i] {
				widths[i] = n
			}
		}
	}
	for _, row := range cells {
		var b strings.Builder
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			if i == len(widths)-1 {
				b.WriteString(cell)
			} else {
				b.WriteString(runewidth.FillRight(cell, widths[i]+2))
			}
		}
		fmt.Fprintln(w, strings.TrimRight(b.String(), " "))
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
