package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:     "init",
	GroupID: "setup",
	Short:   "Initialize a replica in the current directory",
	Long: `Initialize a replica by creating the data directory, a fresh actor
identity, and an empty oplog database.

Running init again on an already-initialized directory is a no-op: the
existing identity and database are left untouched.`,
	Run: func(cmd *cobra.Command, _ []string) {
		dataDir := replicaDataDir()
		if _, err := os.Stat(dataDir); err == nil {
			fmt.Printf("replica already initialized at %s\n", dataDir)
			return
		}

		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("initialize: %v", err)
		}
		defer store.Close()

		fmt.Printf("Initialized replica at %s\n", dataDir)
		fmt.Printf("Actor ID: %s\n", eng.ActorID())
	},
}
