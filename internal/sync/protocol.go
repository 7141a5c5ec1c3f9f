package sync

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// Operation names carried in Request.Operation, mirroring the small,
// fixed vocabulary a sync peer needs, nowhere near internal/rpc's full
// command surface, since this transport only ever moves vector clocks and
// bundles.
const (
	OpPing        = "ping"
	OpVectorClock = "vector_clock"
	OpPull        = "pull"
	OpPush        = "push"
)

// Request is one newline-delimited JSON request sent over the peer socket.
type Request struct {
	Operation string          `json:"operation"`
	Args      json.RawMessage `json:"args,omitempty"`
}

// Response is the matching newline-delimited JSON reply.
type Response struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// PullArgs requests every bundle actor authored after afterHLC.
type PullArgs struct {
	Actor     []byte `json:"actor"`
	AfterHLC  []byte `json:"after_hlc"`
}

// PullResult carries the bundles a Pull request returned.
type PullResult struct {
	Bundles []WireBundle `json:"bundles"`
}

// PushArgs ships one bundle to a peer for ingestion.
type PushArgs struct {
	Bundle WireBundle `json:"bundle"`
}

// VectorClockResult carries a peer's current vector clock, encoded the same
// way a bundle's CreatorVC travels (msgpack bytes, since vclock.Clock has no
// JSON marshaler of its own).
type VectorClockResult struct {
	VectorClock []byte `json:"vector_clock"`
}

// ProtocolVersion is this build's wire protocol version, semver-formatted
// so peers on different releases can detect a mismatch with
// golang.org/x/mod/semver rather than a brittle string equality check.
const ProtocolVersion = "v1.0.0"

// PingResult carries the responding peer's protocol version, so a client
// can warn (not fail) on a version skew before the causal diff that
// follows papers over anything the skew might have changed.
type PingResult struct {
	ProtocolVersion string `json:"protocol_version"`
}

// writeMessage JSON-encodes v and writes it as one newline-terminated line,
// matching internal/rpc/client.go's Execute framing.
func writeMessage(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sync: marshal message: %w", err)
	}
	bw := bufio.NewWriter(w)
	if _, err := bw.Write(data); err != nil {
		return fmt.Errorf("sync: write message: %w", err)
	}
	if err := bw.WriteByte('\n'); err != nil {
		return fmt.Errorf("sync: write newline: %w", err)
	}
	return bw.Flush()
}

// readMessage reads one newline-terminated JSON line and decodes it into v.
func readMessage(r *bufio.Reader, v any) error {
	line, err := r.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return fmt.Errorf("sync: read message: %w", err)
	}
	if err := json.Unmarshal(line, v); err != nil {
		return fmt.Errorf("sync: unmarshal message: %w", err)
	}
	return nil
}

// unmarshalArgs decodes a Request's raw Args into v.
func unmarshalArgs(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return fmt.Errorf("sync: missing request args")
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("sync: unmarshal args: %w", err)
	}
	return nil
}

// errResponse builds a failed Response from err.
func errResponse(err error) Response {
	return Response{Success: false, Error: err.Error()}
}

// okResponse builds a successful Response carrying data, marshaled to JSON.
func okResponse(data any) (Response, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Response{}, fmt.Errorf("sync: marshal response data: %w", err)
	}
	return Response{Success: true, Data: raw}, nil
}
