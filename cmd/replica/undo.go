package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/untoldecay/beadsreplica/internal/engine"
)

var undoCmd = &cobra.Command{
	Use:     "undo",
	GroupID: "history",
	Short:   "Undo the most recent undoable bundle",
	Long: `Undo the most recent undoable bundle by executing its inverse.

If a later write from another actor touched the same state, the entry is
popped but its inverse is not executed (skip-and-advance), and the
conflicting fields are reported instead.`,
	Run: func(cmd *cobra.Command, _ []string) {
		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		result, err := eng.Undo(rootCtx)
		if err != nil {
			fatalf("undo: %v", err)
		}
		printUndoResult("Undo", result)
	},
}

var redoCmd = &cobra.Command{
	Use:     "redo",
	GroupID: "history",
	Short:   "Redo the most recently undone bundle",
	Run: func(cmd *cobra.Command, _ []string) {
		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		result, err := eng.Redo(rootCtx)
		if err != nil {
			fatalf("redo: %v", err)
		}
		printUndoResult("Redo", result)
	},
}

func printUndoResult(verb string, result engine.UndoResult) {
	switch result.Outcome {
	case engine.UndoEmpty:
		if !jsonOutput {
			fmt.Printf("Nothing to %s.\n", verb)
		}
	case engine.UndoApplied:
		if jsonOutput {
			fmt.Printf(`{"outcome":"applied","bundle_id":%q}`+"\n", result.BundleID.String())
			return
		}
		fmt.Printf("%s applied as bundle %s\n", verb, result.BundleID)
	case engine.UndoSkipped:
		if jsonOutput {
			fmt.Printf(`{"outcome":"skipped","conflicts":%d}`+"\n", len(result.Conflicts))
			return
		}
		fmt.Printf("%s skipped: concurrent edits since this entry was recorded:\n", verb)
		for _, c := range result.Conflicts {
			fmt.Printf("    %s.%s modified by %s\n", c.EntityID, c.FieldKey, c.ModifiedBy)
		}
	}
}
