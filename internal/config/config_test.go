package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDataDirPrecedence(t *testing.T) {
	if got := DataDir("/flag/dir"); got != "/flag/dir" {
		t.Fatalf("expected flag value to win, got %q", got)
	}
	if got := DataDir(""); got != ".replica" {
		t.Fatalf("expected default %q, got %q", ".replica", got)
	}
}

func TestActorDisplayNameFlagWins(t *testing.T) {
	if got := ActorDisplayName("custom-name"); got != "custom-name" {
		t.Fatalf("expected flag value to win, got %q", got)
	}
}

func TestLoadPeersMissingFileReturnsNil(t *testing.T) {
	peers, err := LoadPeers(t.TempDir())
	if err != nil {
		t.Fatalf("load peers: %v", err)
	}
	if peers != nil {
		t.Fatalf("expected nil peers for a missing file, got %v", peers)
	}
}

func TestLoadPeersParsesTOML(t *testing.T) {
	dir := t.TempDir()
	content := `
[[peer]]
actor_id = "aaaaaaaa"
socket_path = "/tmp/a.sock"
label = "laptop"

[[peer]]
actor_id = "bbbbbbbb"
socket_path = "/tmp/b.sock"
`
	if err := os.WriteFile(filepath.Join(dir, "peers.toml"), []byte(content), 0o644); err != nil {
		t.Fatalf("write peers.toml: %v", err)
	}

	peers, err := LoadPeers(dir)
	if err != nil {
		t.Fatalf("load peers: %v", err)
	}
	if len(peers) != 2 {
		t.Fatalf("expected 2 peers, got %d", len(peers))
	}
	if peers[0].ActorID != "aaaaaaaa" || peers[0].Label != "laptop" {
		t.Fatalf("unexpected first peer: %+v", peers[0])
	}
	if peers[1].SocketPath != "/tmp/b.sock" {
		t.Fatalf("unexpected second peer: %+v", peers[1])
	}
}
