// Command replica is the CLI front end for a local-first replicated entity
// store: local edits, oplog inspection, conflict resolution, overlays,
// undo/redo, and peer sync. Grounded on BeadsLog's own cmd/bd command
// layout, narrowed to a thin wrapper around the internal/engine and
// internal/sync packages it wires up.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/untoldecay/beadsreplica/internal/config"
	"github.com/untoldecay/beadsreplica/internal/debug"
)

// rootCtx is the process-lifetime context every command runs under.
var rootCtx = context.Background()

var (
	dataDirFlag string
	jsonOutput  bool
)

var rootCmd = &cobra.Command{
	Use:          "replica",
	Short:        "A local-first replicated entity store",
	Long:         `replica manages one actor's replica of a causally-ordered, signed operation log: local edits, conflict resolution, overlays, undo/redo, and peer-to-peer sync.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "data", Title: "Data Commands:"},
		&cobra.Group{ID: "history", Title: "History Commands:"},
		&cobra.Group{ID: "conflict", Title: "Conflict Commands:"},
		&cobra.Group{ID: "overlay", Title: "Overlay Commands:"},
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "setup", Title: "Setup Commands:"},
	)

	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "replica data directory (default: .replica)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit JSON instead of human-readable output")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug tracing to stderr")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if v, _ := cmd.Flags().GetBool("debug"); v {
			debug.Enable()
		}
		return config.Initialize()
	}

	rootCmd.AddCommand(
		initCmd,
		actorCmd,
		setCmd,
		clearCmd,
		getCmd,
		fieldsCmd,
		createEntityCmd,
		deleteEntityCmd,
		logCmd,
		conflictsCmd,
		overlayCmd,
		syncCmd,
		undoCmd,
		redoCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "replica: %v\n", err)
		os.Exit(1)
	}
}

// fatalf prints an error respecting --json and exits non-zero.
func fatalf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if jsonOutput {
		fmt.Fprintf(os.Stderr, `{"error":%q}`+"\n", msg)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
