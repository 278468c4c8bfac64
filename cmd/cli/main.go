package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"mtgdata/internal/logger"
)

const defaultBaseURL = "http://localhost:3000"

var opts struct {
	baseURL string
	timeout time.Duration
}

// status lines go to stderr so stdout stays pipeable JSON
var log = logger.New(logger.Config{Level: os.Getenv("MTGDATA_LOG_LEVEL"), Pretty: true, Output: os.Stderr})

var rootCmd = &cobra.Command{
	Use:          "mtgdata",
	Short:        "Query a running mtgdata API server",
	SilenceUsage: true,
}

func main() {
	rootCmd.PersistentFlags().StringVar(&opts.baseURL, "api", envOr("MTGDATA_API", defaultBaseURL), "API base URL")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 15*time.Second, "request timeout")

	rootCmd.AddCommand(metaCmd(), setsCmd(), setCmd(), cardsCmd(), uuidsCmd(), searchCmd(), symbolsCmd(), eventsCmd(), adminCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func metaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "meta",
		Short: "Show the loaded catalog version and date",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return getAndPrint(cmd.Context(), "/meta")
		},
	}
}

func setsCmd() *cobra.Command {
	var includeOnline bool
	cmd := &cobra.Command{
		Use:   "sets [code...]",
		Short: "List available sets, or fetch the named sets",
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				return postAndPrint(cmd.Context(), "/sets", map[string]any{"setCodes": args})
			}
			return getAndPrint(cmd.Context(), "/sets?includeOnlineOnly="+strconv.FormatBool(includeOnline))
		},
	}
	cmd.Flags().BoolVar(&includeOnline, "online", false, "include online-only sets")
	return cmd
}

func setCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <code>",
		Short: "Show one set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return getAndPrint(cmd.Context(), "/sets/"+url.PathEscape(args[0]))
		},
	}
}

func cardsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cards <set-code...>",
		Short: "List the cards of one or more sets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				return getAndPrint(cmd.Context(), "/sets/"+url.PathEscape(args[0])+"/cards")
			}
			return postAndPrint(cmd.Context(), "/cards", map[string]any{"setCodes": args})
		},
	}
}

func uuidsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uuids <uuid...>",
		Short: "Fetch cards by UUID with current pricing",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return postAndPrint(cmd.Context(), "/cards/uuids", map[string]any{"uuids": args})
		},
	}
}

func searchCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "search <name>",
		Short: "Search cards by name substring",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := url.Values{}
			q.Set("q", strings.Join(args, " "))
			q.Set("limit", strconv.Itoa(limit))
			return getAndPrint(cmd.Context(), "/cards/search?"+q.Encode())
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "max results (1-100)")
	return cmd
}

func symbolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "symbols",
		Short: "Print the mana symbol list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return getAndPrint(cmd.Context(), "/symbols")
		},
	}
}

func eventsCmd() *cobra.Command {
	var wsURL string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream catalog and download events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			endpoint := wsURL
			if endpoint == "" {
				var err error
				if endpoint, err = websocketURL(opts.baseURL, "/ws"); err != nil {
					return fmt.Errorf("ws url: %w", err)
				}
			}
			return runWebSocket(endpoint)
		},
	}
	cmd.Flags().StringVar(&wsURL, "ws", "", "WebSocket URL (defaults to /ws on API host)")
	return cmd
}

func adminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Operate the data files",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show data file and catalog status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return getAndPrint(cmd.Context(), "/admin/status")
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "last-modified",
		Short: "Compare the local and remote archive dates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return getAndPrint(cmd.Context(), "/admin/last-modified")
		},
	})

	var reload bool
	download := &cobra.Command{
		Use:   "download",
		Short: "Download the latest card archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// downloads outlive the default request timeout
			if opts.timeout < 15*time.Minute {
				opts.timeout = 15 * time.Minute
			}
			return postAndPrint(cmd.Context(), "/admin/download?reload="+strconv.FormatBool(reload), nil)
		},
	}
	download.Flags().BoolVar(&reload, "reload", true, "reload the catalog after downloading")
	cmd.AddCommand(download)

	cmd.AddCommand(&cobra.Command{
		Use:   "load",
		Short: "Reload the catalog from the local files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return postAndPrint(cmd.Context(), "/admin/load-data", nil)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "symbols",
		Short: "Refresh the mana symbol list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return postAndPrint(cmd.Context(), "/admin/symbols/reload", nil)
		},
	})
	return cmd
}

func getAndPrint(ctx context.Context, path string) error {
	var out any
	if err := doJSON(ctx, newClient(), http.MethodGet, opts.baseURL+path, nil, &out); err != nil {
		return err
	}
	return printJSON(os.Stdout, out)
}

func postAndPrint(ctx context.Context, path string, payload any) error {
	var out any
	if err := doJSON(ctx, newClient(), http.MethodPost, opts.baseURL+path, payload, &out); err != nil {
		return err
	}
	return printJSON(os.Stdout, out)
}

func newClient() *http.Client {
	return &http.Client{Timeout: opts.timeout}
}

func doJSON(ctx context.Context, client *http.Client, method, endpoint string, payload any, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = strings.NewReader(string(b))
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("%s %s failed: %s", method, endpoint, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(data, out)
}

func printJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("json: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func websocketURL(baseURL, path string) (string, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return "", err
	}
	scheme := "ws"
	if u.Scheme == "https" {
		scheme = "wss"
	}
	return (&url.URL{
		Scheme: scheme,
		Host:   u.Host,
		Path:   path,
	}).String(), nil
}

func runWebSocket(wsURL string) error {
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	el := logger.Component(log, "events")
	el.Info().Str("url", wsURL).Msg("connected")
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		fmt.Println(string(msg))
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
