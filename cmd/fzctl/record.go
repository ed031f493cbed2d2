// cmd/fzctl/record.go
// Implements the `fzctl record` command: adapted from cmd/flarego/record.go,
// which sampled an in-process flamegraph for a fixed duration and wrote a
// gzipped .fgo file. Here there is no in-process agent to sample — instead
// fzctl polls a running control-plane's /debug/replay endpoint (backed by
// internal/replaytap) for the requested duration, de-duplicating frames by
// their wire ref, and writes the accumulated wire.Envelope stream to a
// gzipped .fzr file fzctl replay can load.
package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/Voskan/flarego/internal/logging"
	"github.com/Voskan/flarego/internal/wire"
)

func newRecordCmd() *cobra.Command {
	var (
		outFile    string
		duration   time.Duration
		pollEvery  time.Duration
		noCompress bool
	)

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a window of control-plane wire traffic to a .fzr file",
		Long:  `Polls the control plane's /debug/replay endpoint for the given duration, accumulating unique envelopes by ref, and stores the result (optionally gzipped) to disk for later inspection with fzctl replay.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if duration <= 0 {
				return fmt.Errorf("--duration must be > 0")
			}
			if outFile == "" {
				ts := time.Now().Format("20060102T150405")
				outFile = fmt.Sprintf("fz-%s.fzr", ts)
			}
			if filepath.Ext(outFile) == "" {
				outFile += ".fzr"
			}

			seen := make(map[string]struct{})
			var frames []wire.Envelope

			deadline := time.Now().Add(duration)
			for {
				batch, err := fetchReplay(cmd.Context(), controlPlane)
				if err != nil {
					logging.Sugar().Warnw("record: fetch replay window failed", "err", err)
				} else {
					for _, env := range batch {
						key := env.Ref
						if key == "" {
							key = env.Topic + "|" + env.Event
						}
						if _, dup := seen[key]; dup {
							continue
						}
						seen[key] = struct{}{}
						frames = append(frames, env)
					}
				}
				if time.Now().After(deadline) {
					break
				}
				time.Sleep(pollEvery)
			}

			data, err := json.Marshal(frames)
			if err != nil {
				return err
			}

			f, err := os.Create(outFile)
			if err != nil {
				return err
			}
			defer f.Close()

			if noCompress {
				if _, err := f.Write(data); err != nil {
					return err
				}
			} else {
				gw := gzip.NewWriter(f)
				if _, err := gw.Write(data); err != nil {
					_ = gw.Close()
					return err
				}
				if err := gw.Close(); err != nil {
					return err
				}
			}

			logging.Sugar().Infow("recording saved", "file", outFile, "frames", len(frames))
			return nil
		},
	}

	cmd.Flags().DurationVarP(&duration, "duration", "d", 30*time.Second, "Recording duration (e.g., 30s, 2m)")
	cmd.Flags().StringVarP(&outFile, "output", "o", "", "Output .fzr file path (default auto-named)")
	cmd.Flags().DurationVar(&pollEvery, "poll-interval", 500*time.Millisecond, "How often to poll /debug/replay while recording")
	cmd.Flags().BoolVar(&noCompress, "no-compress", false, "Disable gzip compression of output file")
	return cmd
}

func fetchReplay(ctx context.Context, addr string) ([]wire.Envelope, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, addr+"/debug/replay", nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fzctl: /debug/replay returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	var envs []wire.Envelope
	if err := json.Unmarshal(body, &envs); err != nil {
		return nil, err
	}
	return envs, nil
}
