// cmd/fzctl/replay.go
// Implements the `fzctl replay` command: adapted from
// cmd/flarego/replay.go's load-decode-summarise shape, applied to a .fzr
// file of wire.Envelope frames (fzctl record's output) instead of a
// flamegraph.Frame tree.
package main

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/Voskan/flarego/internal/wire"
)

func newReplayCmd() *cobra.Command {
	var outputJSON bool

	cmd := &cobra.Command{
		Use:   "replay <file.fzr>",
		Short: "Inspect a recorded .fzr wire-traffic file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()

			var r io.Reader = f
			if isGzip(path) {
				gr, err := gzip.NewReader(f)
				if err != nil {
					return err
				}
				defer gr.Close()
				r = gr
			}

			var envs []wire.Envelope
			dec := json.NewDecoder(r)
			if err := dec.Decode(&envs); err != nil {
				return fmt.Errorf("decode wire frames: %w", err)
			}

			if outputJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(envs)
			}

			byEvent := make(map[string]int)
			for _, e := range envs {
				byEvent[e.Event]++
			}
			events := make([]string, 0, len(byEvent))
			for ev := range byEvent {
				events = append(events, ev)
			}
			sort.Strings(events)

			fmt.Printf("File: %s\n", path)
			fmt.Printf("Frames: %d\n", len(envs))
			fmt.Println("By event:")
			for _, ev := range events {
				fmt.Printf("  %-32s %d\n", ev, byEvent[ev])
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&outputJSON, "json", false, "Output the full frame list as JSON instead of a summary")
	return cmd
}

// isGzip infers gzip compression from magic bytes, the same fallback
// cmd/flarego/replay.go used for extension-ambiguous files.
func isGzip(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	var magic [2]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return false
	}
	return magic[0] == 0x1f && magic[1] == 0x8b
}
