package sync

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"golang.org/x/mod/semver"

	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/vclock"
)

// Client talks to one peer's Server over a Unix socket. Each call dials
// fresh, matching internal/rpc/client.go's short-lived-connection style
// rather than holding a persistent connection open.
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient returns a Client that dials socketPath, with a default
// per-request timeout.
func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath, timeout: 10 * time.Second}
}

// SetTimeout overrides the per-request dial+round-trip timeout.
func (c *Client) SetTimeout(d time.Duration) { c.timeout = d }

func (c *Client) call(req Request) (Response, error) {
	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return Response{}, fmt.Errorf("sync: dial %s: %w", c.socketPath, err)
	}
	defer func() { _ = conn.Close() }()

	if c.timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
			return Response{}, fmt.Errorf("sync: set deadline: %w", err)
		}
	}

	if err := writeMessage(conn, req); err != nil {
		return Response{}, err
	}

	var resp Response
	if err := readMessage(bufio.NewReader(conn), &resp); err != nil {
		return Response{}, err
	}
	if !resp.Success {
		return resp, fmt.Errorf("sync: peer returned error: %s", resp.Error)
	}
	return resp, nil
}

// Ping verifies the peer is reachable.
func (c *Client) Ping() error {
	_, err := c.call(Request{Operation: OpPing})
	return err
}

// PingVersion verifies the peer is reachable and returns its protocol
// version, for callers that want to detect skew before syncing.
func (c *Client) PingVersion() (string, error) {
	resp, err := c.call(Request{Operation: OpPing})
	if err != nil {
		return "", err
	}
	var result PingResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return "", fmt.Errorf("sync: unmarshal ping response: %w", err)
	}
	return result.ProtocolVersion, nil
}

// versionSkew reports a human-readable warning when peerVersion is not the
// same major.minor as ProtocolVersion, or "" when they match closely
// enough to proceed without comment.
func versionSkew(peerVersion string) string {
	if !semver.IsValid(peerVersion) {
		return fmt.Sprintf("peer reported an unparseable protocol version %q", peerVersion)
	}
	if semver.MajorMinor(peerVersion) == semver.MajorMinor(ProtocolVersion) {
		return ""
	}
	switch semver.Compare(peerVersion, ProtocolVersion) {
	case -1:
		return fmt.Sprintf("peer is on an older protocol version (%s < %s)", peerVersion, ProtocolVersion)
	case 1:
		return fmt.Sprintf("peer is on a newer protocol version (%s > %s)", peerVersion, ProtocolVersion)
	default:
		return ""
	}
}

// VectorClock fetches and decodes the peer's current vector clock.
func (c *Client) VectorClock() (*vclock.Clock, error) {
	resp, err := c.call(Request{Operation: OpVectorClock})
	if err != nil {
		return nil, err
	}
	var result VectorClockResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return nil, fmt.Errorf("sync: unmarshal vector clock response: %w", err)
	}
	return vclock.UnmarshalMsgpack(result.VectorClock)
}

// Pull requests every bundle the peer holds for actor authored after
// afterHLC.
func (c *Client) Pull(actor ids.ActorID, afterHLC [12]byte) ([]WireBundle, error) {
	args, err := json.Marshal(PullArgs{Actor: actor.Bytes(), AfterHLC: afterHLC[:]})
	if err != nil {
		return nil, fmt.Errorf("sync: marshal pull args: %w", err)
	}
	resp, err := c.call(Request{Operation: OpPull, Args: args})
	if err != nil {
		return nil, err
	}
	var result PullResult
	if err := json.Unmarshal(resp.Data, &result); err != nil {
		return nil, fmt.Errorf("sync: unmarshal pull response: %w", err)
	}
	return result.Bundles, nil
}

// Push ships one bundle to the peer for ingestion.
func (c *Client) Push(bundle WireBundle) error {
	args, err := json.Marshal(PushArgs{Bundle: bundle})
	if err != nil {
		return fmt.Errorf("sync: marshal push args: %w", err)
	}
	_, err = c.call(Request{Operation: OpPush, Args: args})
	return err
}

// Result summarizes one Sync call: how many bundles were pulled from the
// peer and pushed to it, and any protocol version skew observed.
type Result struct {
	Pulled      int
	Pushed      int
	VersionSkew string
}

// Sync performs a full two-way exchange with the peer: pull every bundle
// the peer has that local hasn't seen, then push every bundle local has
// that the peer hasn't seen. Both directions are driven by vector-clock
// Diff, so a replica never re-ships or re-ingests a bundle the other side
// already has.
func (c *Client) Sync(ctx context.Context, local ReplicaEngine) (Result, error) {
	var result Result

	if peerVersion, err := c.PingVersion(); err == nil {
		result.VersionSkew = versionSkew(peerVersion)
	}

	peerVC, err := c.VectorClock()
	if err != nil {
		return result, fmt.Errorf("sync: fetch peer vector clock: %w", err)
	}

	localVCBytes, err := local.GetVectorClockBytes(ctx)
	if err != nil {
		return result, fmt.Errorf("sync: fetch local vector clock: %w", err)
	}
	localVC, err := vclock.UnmarshalMsgpack(localVCBytes)
	if err != nil {
		return result, fmt.Errorf("sync: decode local vector clock: %w", err)
	}

	// Pull: actors where local is behind what the peer has seen.
	for _, entry := range localVC.Diff(peerVC) {
		var after [12]byte
		if entry.Known {
			after = entry.HLC.Bytes()
		}
		bundles, err := c.Pull(entry.Actor, after)
		if err != nil {
			return result, fmt.Errorf("sync: pull actor %s: %w", entry.Actor, err)
		}
		for _, wb := range bundles {
			if err := local.IngestWireBundle(ctx, wb); err != nil {
				return result, fmt.Errorf("sync: ingest pulled bundle: %w", err)
			}
			result.Pulled++
		}
	}

	// Push: actors where the peer is behind what local has seen.
	for _, entry := range peerVC.Diff(localVC) {
		var after [12]byte
		if entry.Known {
			after = entry.HLC.Bytes()
		}
		bundles, err := local.GetOpsByActorAfter(ctx, entry.Actor, after)
		if err != nil {
			return result, fmt.Errorf("sync: load local bundles for actor %s: %w", entry.Actor, err)
		}
		for _, wb := range bundles {
			if err := c.Push(wb); err != nil {
				return result, fmt.Errorf("sync: push bundle: %w", err)
			}
			result.Pushed++
		}
	}

	return result, nil
}
