package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var createEntityCmd = &cobra.Command{
	Use:     "create-entity",
	GroupID: "data",
	Short:   "Create a new entity",
	Long:    `Create a new entity, optionally attaching an initial facet.`,
	Run: func(cmd *cobra.Command, _ []string) {
		facet, _ := cmd.Flags().GetString("facet")

		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		entityID, bundleID, err := eng.CreateEntity(rootCtx, facet)
		if err != nil {
			fatalf("create entity: %v", err)
		}

		if jsonOutput {
			fmt.Printf(`{"entity_id":%q,"bundle_id":%q}`+"\n", entityID.String(), bundleID.String())
			return
		}
		fmt.Printf("Created entity %s\n", entityID)
	},
}

var deleteEntityCmd = &cobra.Command{
	Use:     "delete-entity <entity-id>",
	GroupID: "data",
	Short:   "Delete an entity and its outgoing/incoming edges",
	Args:    cobra.ExactArgs(1),
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

		bundleID, err := eng.DeleteEntity(rootCtx, entityID)
		if err != nil {
			fatalf("delete entity: %v", err)
		}

		if jsonOutput {
			fmt.Printf(`{"bundle_id":%q}`+"\n", bundleID.String())
			return
		}
		fmt.Printf("Deleted entity %s\n", entityID)
	},
}

func init() {
	createEntityCmd.Flags().String("facet", "", "initial facet type to attach")
}
