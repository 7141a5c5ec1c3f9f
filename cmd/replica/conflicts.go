package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/untoldecay/beadsreplica/internal/fieldvalue"
)

var conflictsCmd = &cobra.Command{
	Use:     "conflicts",
	GroupID: "conflict",
	Short:   "List and resolve concurrent-edit conflicts",
}

var conflictsListCmd = &cobra.Command{
	Use:     "list",
	Short:   "List open conflicts",
	Run: func(cmd *cobra.Command, _ []string) {
		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		conflicts, err := eng.GetOpenConflicts(rootCtx)
		if err != nil {
			fatalf("list conflicts: %v", err)
		}

		if len(conflicts) == 0 {
			if !jsonOutput {
				fmt.Println(okStyle.Render("No open conflicts."))
			}
			return
		}

		for _, c := range conflicts {
			_, tips, err := eng.GetConflict(rootCtx, c.ConflictID)
			if err != nil {
				fatalf("load conflict %s: %v", c.ConflictID, err)
			}
			if jsonOutput {
				fmt.Printf(`{"conflict_id":%q,"entity_id":%q,"field":%q,"branches":%d}`+"\n",
					c.ConflictID.String(), c.EntityID.String(), c.FieldKey, len(tips))
				continue
			}
			fmt.Printf("%s  %s.%s  (%d branches)\n", conflictIDStyle.Render(c.ConflictID.String()), c.EntityID, c.FieldKey, len(tips))
			for _, tip := range tips {
				val, err := fieldvalue.Unmarshal(tip.Value)
				if err != nil {
					fmt.Printf("    actor=%s <unreadable value>\n", tip.ActorID)
					continue
				}
				fmt.Printf("    actor=%s value=%s\n", tip.ActorID, formatValue(val))
			}
		}
	},
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id> <value>",
	Short: "Resolve a conflict by choosing a field value",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		conflictID, err := parseConflictID(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		typeFlag, _ := cmd.Flags().GetString("type")
		value, err := parseFieldValue(args[1], typeFlag)
		if err != nil {
			fatalf("%v", err)
		}

		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		bundleID, err := eng.ResolveConflict(rootCtx, conflictID, &value)
		if err != nil {
			fatalf("resolve conflict: %v", err)
		}

		if jsonOutput {
			fmt.Printf(`{"bundle_id":%q}`+"\n", bundleID.String())
			return
		}
		fmt.Println(okStyle.Render(fmt.Sprintf("Resolved conflict %s", conflictID)))
	},
}

func init() {
	conflictsResolveCmd.Flags().String("type", "", "force the chosen value's type: text, integer, float, boolean")
	conflictsCmd.AddCommand(conflictsListCmd, conflictsResolveCmd)
}
