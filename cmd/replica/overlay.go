package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/untoldecay/beadsreplica/internal/engine"
)

var overlayCmd = &cobra.Command{
	Use:     "overlay",
	GroupID: "overlay",
	Short:   "Manage transactional scratch spaces over the canonical state",
}

var overlayCreateCmd = &cobra.Command{
	Use:   "create <display-name>",
	Short: "Create a new overlay and make it active",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		id, err := eng.CreateOverlay(rootCtx, args[0], engine.OverlaySourceUser, "")
		if err != nil {
			fatalf("create overlay: %v", err)
		}
		if jsonOutput {
			fmt.Printf(`{"overlay_id":%q}`+"\n", id.String())
			return
		}
		fmt.Printf("Created overlay %s\n", id)
	},
}

var overlayActivateCmd = &cobra.Command{
	Use:   "activate <overlay-id>",
	Short: "Activate an overlay, routing subsequent writes into its scratch space",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := parseOverlayID(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		if err := eng.ActivateOverlay(rootCtx, id); err != nil {
			fatalf("activate overlay: %v", err)
		}
		fmt.Printf("Activated overlay %s\n", id)
	},
}

var overlayStashCmd = &cobra.Command{
	Use:   "stash <overlay-id>",
	Short: "Deactivate an overlay without discarding its staged writes",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := parseOverlayID(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		if err := eng.StashOverlay(rootCtx, id); err != nil {
			fatalf("stash overlay: %v", err)
		}
		fmt.Printf("Stashed overlay %s\n", id)
	},
}

var overlayDiscardCmd = &cobra.Command{
	Use:   "discard <overlay-id>",
	Short: "Permanently discard an overlay and its staged writes",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id, err := parseOverlayID(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		if err := eng.DiscardOverlay(rootCtx, id); err != nil {
			fatalf("discard overlay: %v", err)
		}
		fmt.Printf("Discarded overlay %s\n", id)
	},
}

var overlayCommitCmd = &cobra.Command{
	Use:   "commit",
	Short: "Commit the active overlay's staged writes into the canonical oplog",
	Run: func(cmd *cobra.Command, _ []string) {
		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		bundleID, err := eng.CommitOverlay(rootCtx)
		if err != nil {
			fatalf("commit overlay: %v", err)
		}
		if jsonOutput {
			fmt.Printf(`{"bundle_id":%q}`+"\n", bundleID.String())
			return
		}
		fmt.Printf("Committed overlay as bundle %s\n", bundleID)
	},
}

var overlayDriftCmd = &cobra.Command{
	Use:   "drift",
	Short: "Show fields where the active overlay's staged value has diverged from canonical",
	Run: func(cmd *cobra.Command, _ []string) {
		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		drift, err := eng.CheckDrift(rootCtx)
		if err != nil {
			fatalf("check drift: %v", err)
		}
		if len(drift) == 0 {
			if !jsonOutput {
				fmt.Println("No drift.")
			}
			return
		}
		for _, d := range drift {
			if jsonOutput {
				fmt.Printf(`{"entity_id":%q,"field":%q}`+"\n", d.EntityID.String(), d.FieldKey)
				continue
			}
			overlayVal, canonVal := "<cleared>", "<cleared>"
			if d.OverlayValue != nil {
				overlayVal = formatValue(*d.OverlayValue)
			}
			if d.CanonicalValue != nil {
				canonVal = formatValue(*d.CanonicalValue)
			}
			fmt.Printf("%s.%s  overlay=%s canonical=%s\n", d.EntityID, d.FieldKey, overlayVal, canonVal)
		}
	},
}

var overlayAcknowledgeCmd = &cobra.Command{
	Use:   "acknowledge <entity-id> <field-key>",
	Short: "Re-baseline a drifted field against its current canonical value",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		entityID, err := parseEntityID(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		overlayID, ok := eng.ActiveOverlay()
		if !ok {
			fatalf("acknowledge drift: %v", engine.ErrNoActiveOverlay)
		}
		if err := eng.AcknowledgeDrift(rootCtx, overlayID, entityID, args[1]); err != nil {
			fatalf("acknowledge drift: %v", err)
		}
		fmt.Printf("Acknowledged drift on %s.%s\n", entityID, args[1])
	},
}

var overlayKnockoutCmd = &cobra.Command{
	Use:   "knockout <entity-id> <field-key>",
	Short: "Discard a field's staged overlay writes, falling through to canonical",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		entityID, err := parseEntityID(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		if err := eng.KnockoutField(rootCtx, entityID, args[1]); err != nil {
			fatalf("knockout field: %v", err)
		}
		fmt.Printf("Knocked out %s.%s\n", entityID, args[1])
	},
}

func init() {
	overlayCmd.AddCommand(
		overlayCreateCmd,
		overlayActivateCmd,
		overlayStashCmd,
		overlayDiscardCmd,
		overlayCommitCmd,
		overlayDriftCmd,
		overlayAcknowledgeCmd,
		overlayKnockoutCmd,
	)
}
