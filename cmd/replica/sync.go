package main

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/untoldecay/beadsreplica/internal/config"
	"github.com/untoldecay/beadsreplica/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Exchange bundles with other replicas",
}

var syncPeerCmd = &cobra.Command{
	Use:   "peer <socket-path>",
	Short: "Sync with one peer over its Unix socket, in both directions",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dataDir := replicaDataDir()
		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		adapter := &sync.EngineAdapter{Engine: eng}
		result, err := sync.SyncWithPeer(rootCtx, dataDir, args[0], adapter)
		if err != nil {
			fatalf("sync: %v", err)
		}

		// The wire protocol has no identity handshake, so an ad-hoc peer is
		// registered under its own socket path; "sync all" registers peers
		// under their configured actor id instead.
		if reg, regErr := sync.NewRegistry(dataDir); regErr == nil {
			_ = reg.Upsert(args[0], args[0], true, time.Now())
		}

		if jsonOutput {
			fmt.Printf(`{"pulled":%d,"pushed":%d,"version_skew":%q}`+"\n", result.Pulled, result.Pushed, result.VersionSkew)
			return
		}
		if result.VersionSkew != "" {
			fmt.Printf("Warning: %s\n", result.VersionSkew)
		}
		fmt.Printf("Synced with %s: pulled %d, pushed %d\n", args[0], result.Pulled, result.Pushed)
	},
}

var syncAllCmd = &cobra.Command{
	Use:   "all",
	Short: "Sync with every peer in peers.toml and the peer registry",
	Run: func(cmd *cobra.Command, _ []string) {
		dataDir := replicaDataDir()
		peers, err := config.LoadPeers(dataDir)
		if err != nil {
			fatalf("load peers: %v", err)
		}
		if len(peers) == 0 {
			fmt.Println("No peers configured in peers.toml.")
			return
		}

		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		adapter := &sync.EngineAdapter{Engine: eng}
		reg, regErr := sync.NewRegistry(dataDir)

		for _, peer := range peers {
			result, err := sync.SyncWithPeer(rootCtx, dataDir, peer.SocketPath, adapter)
			if err != nil {
				fmt.Printf("%s (%s): %v\n", peer.Label, peer.SocketPath, err)
				continue
			}
			if regErr == nil {
				_ = reg.Upsert(peer.ActorID, peer.SocketPath, true, time.Now())
			}
			fmt.Printf("%s (%s): pulled %d, pushed %d\n", peer.Label, peer.SocketPath, result.Pulled, result.Pushed)
		}
	},
}

var syncServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Listen on this replica's Unix socket and answer peer sync requests",
	Long: `Listen on this replica's Unix socket, answering vector-clock, pull,
and push requests from peers until interrupted.`,
	Run: func(cmd *cobra.Command, _ []string) {
		dataDir := replicaDataDir()
		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		eventLog, err := sync.NewEventLog(dataDir)
		if err != nil {
			fatalf("open event log: %v", err)
		}
		defer eventLog.Close()

		socketPath := sync.SocketPath(dataDir)
		adapter := &sync.EngineAdapter{Engine: eng}
		server := sync.NewServer(socketPath, adapter, eventLog)
		if err := server.Start(); err != nil {
			fatalf("start server: %v", err)
		}
		defer server.Stop()

		fmt.Printf("Listening on %s (actor %s). Press Ctrl-C to stop.\n", socketPath, eng.ActorID())
		ctx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		<-ctx.Done()
	},
}

var syncSocketCmd = &cobra.Command{
	Use:   "socket",
	Short: "Print this replica's sync socket path",
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Println(sync.SocketPath(replicaDataDir()))
	},
}

var syncDropCmd = &cobra.Command{
	Use:   "drop <drop-dir>",
	Short: "Write this replica's unsent bundles into a shared drop directory",
	Long: `Write every bundle this replica has authored into dir as individual
JSON files, for a peer that only shares a filesystem (a synced folder, a
removable drive) to pick up with "sync watch".`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		var zero [12]byte
		bundles, err := eng.GetOpsByActorAfter(rootCtx, eng.ActorID(), zero)
		if err != nil {
			fatalf("list bundles: %v", err)
		}

		dropped := 0
		for _, b := range bundles {
			wb, err := sync.EncodeBundle(b)
			if err != nil {
				fatalf("encode bundle %s: %v", b.BundleID, err)
			}
			if err := sync.DropBundle(args[0], wb); err != nil {
				fatalf("drop bundle %s: %v", b.BundleID, err)
			}
			dropped++
		}
		fmt.Printf("Dropped %d bundles into %s\n", dropped, args[0])
	},
}

var syncWatchCmd = &cobra.Command{
	Use:   "watch <drop-dir>",
	Short: "Watch a drop directory and ingest bundles other replicas write into it",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dataDir := replicaDataDir()
		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		eventLog, err := sync.NewEventLog(dataDir)
		if err != nil {
			fatalf("open event log: %v", err)
		}
		defer eventLog.Close()

		adapter := &sync.EngineAdapter{Engine: eng}
		watcher, err := sync.NewWatcher(args[0], adapter, eventLog)
		if err != nil {
			fatalf("watch %s: %v", args[0], err)
		}

		fmt.Printf("Watching %s. Press Ctrl-C to stop.\n", args[0])
		ctx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			fatalf("watch: %v", err)
		}
	},
}

var syncIngestCmd = &cobra.Command{
	Use:   "ingest <drop-dir>",
	Short: "Ingest every bundle currently sitting in a drop directory, then exit",
	Long: `Like "sync watch" but one-shot: picks up whatever has already been
dropped into dir and returns instead of waiting for further filesystem
events. Useful for scripted or cron-driven sync over a shared folder.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		dataDir := replicaDataDir()
		eng, store, err := openEngine(rootCtx)
		if err != nil {
			fatalf("open replica: %v", err)
		}
		defer store.Close()

		eventLog, err := sync.NewEventLog(dataDir)
		if err != nil {
			fatalf("open event log: %v", err)
		}
		defer eventLog.Close()

		adapter := &sync.EngineAdapter{Engine: eng}
		watcher, err := sync.NewWatcher(args[0], adapter, eventLog)
		if err != nil {
			fatalf("watch %s: %v", args[0], err)
		}
		defer watcher.Close()

		n, err := watcher.ScanOnce(rootCtx)
		if err != nil {
			fatalf("ingest %s: %v", args[0], err)
		}
		if jsonOutput {
			fmt.Printf(`{"ingested":%d}`+"\n", n)
			return
		}
		fmt.Printf("Ingested %d bundles from %s\n", n, args[0])
	},
}

func init() {
	syncCmd.AddCommand(syncPeerCmd, syncAllCmd, syncServeCmd, syncSocketCmd, syncDropCmd, syncWatchCmd, syncIngestCmd)
}
