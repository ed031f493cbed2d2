// cmd/fzctl/watch.go
// Implements the `fzctl watch` command: adapted from
// cmd/flarego/attach.go's "start, stream until duration elapses or
// Ctrl-C" shape, pointed at a running control-plane's /debug/watch NDJSON
// stream (one JSON wire.Envelope per line) instead of starting a local
// agent and gRPC-exporting samples.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/Voskan/flarego/internal/logging"
	"github.com/Voskan/flarego/internal/wire"
)

func newWatchCmd() *cobra.Command {
	var (
		duration time.Duration
		topic    string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Tail live wire traffic from a running control plane",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			if duration > 0 {
				ctx, cancel = context.WithTimeout(ctx, duration)
			}
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt)
			go func() {
				select {
				case <-sigCh:
					cancel()
				case <-ctx.Done():
				}
			}()

			url := controlPlane + "/debug/watch"
			if topic != "" {
				url += "?topic=" + topic
			}
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return err
			}
			resp, err := http.DefaultClient.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("fzctl: /debug/watch returned %d", resp.StatusCode)
			}

			logging.Sugar().Infow("watch started", "addr", controlPlane, "topic", topic)

			scanner := bufio.NewScanner(resp.Body)
			scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
			for scanner.Scan() {
				var env wire.Envelope
				if err := json.Unmarshal(scanner.Bytes(), &env); err != nil {
					continue
				}
				fmt.Printf("%-24s %-28s ref=%s\n", env.Topic, env.Event, env.Ref)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "Optional run time (e.g., 30s); 0 = run until Ctrl-C")
	cmd.Flags().StringVar(&topic, "topic", "", "Restrict the stream to one topic (e.g. gateway:abc123)")
	return cmd
}
