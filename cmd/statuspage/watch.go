package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayerhssb/status-page/internal/realtime"
	"github.com/ayerhssb/status-page/internal/status"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var (
		server   string
		org      string
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow an organization's status page and print it on every change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if org == "" {
				return errors.New("--org is required")
			}
			base, err := url.Parse(strings.TrimRight(server, "/"))
			if err != nil {
				return fmt.Errorf("invalid --server: %w", err)
			}

			summaryURL := base.JoinPath("api", "v1", "status", org)
			wsURL := *summaryURL.JoinPath("ws")
			switch base.Scheme {
			case "https":
				wsURL.Scheme = "wss"
			default:
				wsURL.Scheme = "ws"
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client := &http.Client{Timeout: 10 * time.Second}
			out := cmd.OutOrStdout()

			watcher := realtime.NewWatcher(realtime.WatcherConfig{
				URL:      wsURL.String(),
				Debounce: debounce,
			}, func(ctx context.Context) {
				summary, err := fetchSummary(ctx, client, summaryURL.String())
				if err != nil {
					fmt.Fprintf(out, "%s refresh failed: %v\n", time.Now().Format(time.RFC3339), err)
					return
				}
				printSummary(out, summary)
			})

			if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&server, "server", "http://localhost:8080", "status page base URL")
	cmd.Flags().StringVar(&org, "org", "", "organization to follow")
	cmd.Flags().DurationVar(&debounce, "debounce", 250*time.Millisecond, "quiet period before refreshing")

	return cmd
}

func fetchSummary(ctx context.Context, client *http.Client, summaryURL string) (*status.Summary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, summaryURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope struct {
		Data status.Summary `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode summary: %w", err)
	}
	return &envelope.Data, nil
}

func printSummary(w io.Writer, s *status.Summary) {
	fmt.Fprintf(w, "%s %s: %s\n", s.GeneratedAt.Format(time.RFC3339), s.OrganizationID, s.Description)
	for _, svc := range s.Services {
		fmt.Fprintf(w, "  %-32s %s\n", svc.Name, svc.Status)
	}
	active := 0
	for _, inc := range s.Incidents {
		if inc.IsActive() {
			active++
		}
	}
	fmt.Fprintf(w, "  active incidents: %d, upcoming maintenance: %d\n", active, len(s.Maintenance))
}
