// cmd/fzctl/plugin.go
// Implements the `fzctl plugin list` command, the operator-facing surface
// that actually exercises internal/plugins/example/tracepeek: it enumerates
// every registered resource_adapter Strategy — the two built into
// internal/resourceadapter plus any example/third-party one blank-imported
// into this binary — confirming at a glance which plugins are live.
package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Voskan/flarego/internal/plugins"
	_ "github.com/Voskan/flarego/internal/plugins/example/tracepeek"
)

// defaultPluginKind matches the unexported constant internal/resourceadapter
// registers its strategies under ("resource_adapter"); fzctl has no need to
// export it from that package, just to default this flag sensibly.
const defaultPluginKind = "resource_adapter"

func newPluginCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plugin",
		Short: "Inspect plugins compiled into this binary",
	}
	cmd.AddCommand(newPluginListCmd())
	return cmd
}

func newPluginListCmd() *cobra.Command {
	var kind string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List plugins registered under a kind (default resource_adapter)",
		RunE: func(cmd *cobra.Command, args []string) error {
			k := plugins.Kind(kind)
			found := plugins.ByKind(k)
			if len(found) == 0 {
				fmt.Printf("no plugins registered under kind %q\n", kind)
				return nil
			}
			fmt.Printf("%-20s %s\n", "NAME", "KIND")
			for _, p := range found {
				fmt.Printf("%-20s %s\n", p.Name(), p.Kind())
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", defaultPluginKind, "Plugin kind to list")
	return cmd
}
