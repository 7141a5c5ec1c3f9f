package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/untoldecay/beadsreplica/internal/fieldvalue"
)

var setCmd = &cobra.Command{
	Use:     "set <entity-id> <key> <value>",
	GroupID: "data",
	Short:   "Set a field on an entity",
	Long: `Set a field on an entity to a value.

The value's type is inferred: "true"/"false" become booleans, anything
parseable as an integer or float becomes a number, and everything else is
stored as text. Use --type to force a specific variant.`,
	Args: cobra.ExactArgs(3),
	Run: func(cmd *cobra.Command, args []string) {
		entityID, err := parseEntityID(args[0])
		if err != nil {
			fatalf("%v", err)
		}
		key := args[1]
		typeFlag, _ := cmd.Flags().GetString("type")

		value, err := parseFieldValue(args[2], typeFlag)
		if err != nil {
			fatalf("%v", err)
		}

		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		bundleID, err := eng.SetField(rootCtx, entityID, key, value)
		if err != nil {
			fatalf("set field: %v", err)
		}

		if jsonOutput {
			fmt.Printf(`{"bundle_id":%q}`+"\n", bundleID.String())
			return
		}
		fmt.Printf("Set %s.%s\n", entityID, key)
	},
}

var clearCmd = &cobra.Command{
	Use:     "clear <entity-id> <key>",
	GroupID: "data",
	Short:   "Clear a field on an entity",
	Args:    cobra.ExactArgs(2),
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

		bundleID, err := eng.ClearField(rootCtx, entityID, key)
		if err != nil {
			fatalf("clear field: %v", err)
		}

		if jsonOutput {
			fmt.Printf(`{"bundle_id":%q}`+"\n", bundleID.String())
			return
		}
		fmt.Printf("Cleared %s.%s\n", entityID, key)
	},
}

func init() {
	setCmd.Flags().String("type", "", "force the value's type: text, integer, float, boolean")
}

// parseFieldValue converts a raw CLI argument into a fieldvalue.Value,
// either by explicit --type or by inference.
func parseFieldValue(raw, forcedType string) (fieldvalue.Value, error) {
	switch forcedType {
	case "text":
		return fieldvalue.TextValue(raw), nil
	case "integer":
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return fieldvalue.Value{}, fmt.Errorf("not a valid integer: %q", raw)
		}
		return fieldvalue.IntegerValue(n), nil
	case "float":
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fieldvalue.Value{}, fmt.Errorf("not a valid float: %q", raw)
		}
		return fieldvalue.FloatValue(f), nil
	case "boolean":
		b, err := strconv.ParseBool(raw)
		if err != nil {
			return fieldvalue.Value{}, fmt.Errorf("not a valid boolean: %q", raw)
		}
		return fieldvalue.BooleanValue(b), nil
	case "":
		// Inference order: boolean, integer, float, text.
		if b, err := strconv.ParseBool(raw); err == nil && (raw == "true" || raw == "false") {
			return fieldvalue.BooleanValue(b), nil
		}
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return fieldvalue.IntegerValue(n), nil
		}
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return fieldvalue.FloatValue(f), nil
		}
		return fieldvalue.TextValue(raw), nil
	default:
		return fieldvalue.Value{}, fmt.Errorf("unknown --type %q: want text, integer, float, or boolean", forcedType)
	}
}
