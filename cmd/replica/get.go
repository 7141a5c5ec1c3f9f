package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:     "get <entity-id> <key>",
	GroupID: "data",
	Short:   "Read one field on an entity",
	Long: `Read one field on an entity, preferring the active overlay's
staged value over the canonical materialized view if an overlay is active
and has touched this field.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		entityID, err := parseEntityID(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		key := args[1]

		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		value, err := eng.GetField(rootCtx, entityID, key)
		if err != nil {
			fatalf("get field: %v", err)
		}
		if value == nil {
			if jsonOutput {
				fmt.Println(`{"value":null}`)
				return
			}
			fmt.Println("<unset>")
			return
		}

		if jsonOutput {
			fmt.Printf(`{"value":%q}`+"\n", formatValue(*value))
			return
		}
		fmt.Println(formatValue(*value))
	},
}

var fieldsCmd = &cobra.Command{
	Use:     "fields <entity-id>",
	GroupID: "data",
	Short:   "List every materialized field on an entity",
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

		pairs, err := eng.GetFields(rootCtx, entityID)
		if err != nil {
			fatalf("get fields: %v", err)
		}
		if len(pairs) == 0 && !jsonOutput {
			fmt.Println("No fields set.")
			return
		}
		for _, p := range pairs {
			if jsonOutput {
				fmt.Printf(`{"key":%q,"value":%q}`+"\n", p.Key, formatValue(p.Value))
				continue
			}
			fmt.Printf("%s = %s\n", p.Key, formatValue(p.Value))
		}
	},
}
