// Package config resolves replica configuration from, in order of
// precedence: environment variables, a project-local config.yaml, a
// user config.yaml, then built-in defaults. Grounded on BeadsLog's own
// internal/config viper setup, narrowed to this replica's settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/viper"
	"github.com/untoldecay/beadsreplica/internal/debug"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton. Should be called
// once at application startup, before any Get* function.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	configFileSet := false

	// 1. Walk up from CWD to find a project .replica/config.yaml, so
	// commands work from any subdirectory of a replica's working tree.
	if cwd, err := os.Getwd(); err == nil {
		for dir := cwd; dir != filepath.Dir(dir); dir = filepath.Dir(dir) {
			configPath := filepath.Join(dir, ".replica", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
				break
			}
		}
	}

	// 2. User config directory (~/.config/beadsreplica/config.yaml).
	if !configFileSet {
		if configDir, err := os.UserConfigDir(); err == nil {
			configPath := filepath.Join(configDir, "beadsreplica", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	// 3. Home directory fallback (~/.beadsreplica/config.yaml).
	if !configFileSet {
		if homeDir, err := os.UserHomeDir(); err == nil {
			configPath := filepath.Join(homeDir, ".beadsreplica", "config.yaml")
			if _, err := os.Stat(configPath); err == nil {
				v.SetConfigFile(configPath)
				configFileSet = true
			}
		}
	}

	v.SetEnvPrefix("REPLICA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("data-dir", "")
	v.SetDefault("actor-display-name", "")
	v.SetDefault("undo-depth", 100)
	v.SetDefault("hlc-max-drift-ms", 300_000)
	v.SetDefault("log.max-size-mb", 10)
	v.SetDefault("log.max-backups", 5)
	v.SetDefault("log.max-age-days", 28)
	v.SetDefault("sync.timeout", "10s")

	if configFileSet {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		debug.Logf("Debug: loaded config from %s\n", v.ConfigFileUsed())
	} else {
		debug.Logf("Debug: no config.yaml found; using defaults and environment variables\n")
	}

	return nil
}

// DataDir resolves the directory holding this replica's database, event
// log, and socket. Priority: --data-dir flag (flagValue, if non-empty),
// config/env "data-dir", then ".replica" under the current directory.
func DataDir(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if dir := GetString("data-dir"); dir != "" {
		return dir
	}
	return ".replica"
}

// ActorDisplayName resolves a human-readable label for this replica's
// actor id (shown in CLI output, never signed or used for identity).
// Priority: flagValue, config/env "actor-display-name", hostname.
func ActorDisplayName(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if name := GetString("actor-display-name"); name != "" {
		return name
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		return hostname
	}
	return "unknown"
}

// UndoDepth is how many bundles the undo stack retains.
func UndoDepth() int {
	if v == nil {
		return 100
	}
	return v.GetInt("undo-depth")
}

// HLCMaxDriftMS is the configured largest remote clock drift, in
// milliseconds. engine.IngestBundle does not read it; ingest applies the
// hlc package's own drift limit.
func HLCMaxDriftMS() int64 {
	if v == nil {
		return 300_000
	}
	return v.GetInt64("hlc-max-drift-ms")
}

// LogRotation holds the sync event log's rotation settings.
type LogRotation struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

// LogRotationConfig returns the configured (or default) log rotation
// settings for the sync daemon's event log.
func LogRotationConfig() LogRotation {
	if v == nil {
		return LogRotation{MaxSizeMB: 10, MaxBackups: 5, MaxAgeDays: 28}
	}
	return LogRotation{
		MaxSizeMB:  v.GetInt("log.max-size-mb"),
		MaxBackups: v.GetInt("log.max-backups"),
		MaxAgeDays: v.GetInt("log.max-age-days"),
	}
}

// SyncTimeout is how long a sync client waits for one peer round trip.
func SyncTimeout() time.Duration {
	if v == nil {
		return 10 * time.Second
	}
	return v.GetDuration("sync.timeout")
}

// GetString retrieves a string configuration value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetInt retrieves an integer configuration value.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// Peer is one statically configured sync peer.
type Peer struct {
	ActorID    string `toml:"actor_id"`
	SocketPath string `toml:"socket_path"`
	Label      string `toml:"label,omitempty"`
}

// peerFile is the on-disk shape of peers.toml.
type peerFile struct {
	Peer []Peer `toml:"peer"`
}

// LoadPeers reads the static peer list from dataDir/peers.toml, if
// present. Peers discovered at sync time (via internal/sync.Registry) are
// tracked separately; this file is only the operator-curated starting
// list, the way a hosts file seeds a discovery system.
func LoadPeers(dataDir string) ([]Peer, error) {
	path := filepath.Join(dataDir, "peers.toml")
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: stat peers.toml: %w", err)
	}
	var pf peerFile
	if _, err := toml.DecodeFile(path, &pf); err != nil {
		return nil, fmt.Errorf("config: decode peers.toml: %w", err)
	}
	return pf.Peer, nil
}
