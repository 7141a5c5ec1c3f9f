package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/untoldecay/beadsreplica/internal/config"
)

var actorCmd = &cobra.Command{
	Use:     "actor",
	GroupID: "setup",
	Short:   "Show this replica's actor id",
	Run: func(cmd *cobra.Command, _ []string) {
		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		name := config.ActorDisplayName("")
		if jsonOutput {
			fmt.Printf(`{"actor_id":%q,"display_name":%q}`+"\n", eng.ActorID().String(), name)
			return
		}
		fmt.Printf("%s (%s)\n", eng.ActorID(), name)
	},
}
