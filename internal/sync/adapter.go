package sync

import (
	"context"
	"fmt"

	"github.com/untoldecay/beadsreplica/internal/engine"
	"github.com/untoldecay/beadsreplica/internal/ids"
)

// EngineAdapter wraps a live *engine.Engine to satisfy ReplicaEngine,
// translating between the engine's native ops.Bundle values and this
// package's wire DTOs. This is the only file in internal/sync that imports
// internal/engine; everything else in the package only knows about
// ReplicaEngine, so a fake engine is trivial to test against.
type EngineAdapter struct {
	Engine *engine.Engine
}

// GetVectorClockBytes returns the engine's current vector clock, msgpack
// encoded for wire transport.
func (a *EngineAdapter) GetVectorClockBytes(ctx context.Context) ([]byte, error) {
	vc, err := a.Engine.GetVectorClock(ctx)
	if err != nil {
		return nil, err
	}
	return vc.MarshalMsgpack()
}

// GetOpsByActorAfter returns actor's bundles authored after afterHLC,
// wire-encoded and ready to ship.
func (a *EngineAdapter) GetOpsByActorAfter(ctx context.Context, actor ids.ActorID, afterHLC [12]byte) ([]WireBundle, error) {
	bundles, err := a.Engine.GetOpsByActorAfter(ctx, actor, afterHLC)
	if err != nil {
		return nil, err
	}
	out := make([]WireBundle, 0, len(bundles))
	for _, b := range bundles {
		wb, err := EncodeBundle(b)
		if err != nil {
			return nil, fmt.Errorf("sync: encode bundle %s: %w", b.BundleID, err)
		}
		out = append(out, wb)
	}
	return out, nil
}

// IngestWireBundle decodes a wire bundle and ingests it through the
// engine's normal conflict-detecting path.
func (a *EngineAdapter) IngestWireBundle(ctx context.Context, w WireBundle) error {
	bundle, err := DecodeBundle(w)
	if err != nil {
		return err
	}
	_, err = a.Engine.IngestBundle(ctx, bundle)
	return err
}
