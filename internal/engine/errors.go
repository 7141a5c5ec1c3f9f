package engine

import "errors"

// Sentinel errors the engine returns, grounded on
// original_source/crates/engine/src/error.rs's EngineError variants. Wrap
// with fmt.Errorf("...: %w", ErrX) and unwrap with errors.Is.
var (
	ErrEntityNotFound          = errors.New("engine: entity not found")
	ErrEntityAlreadyDeleted    = errors.New("engine: entity already deleted")
	ErrEdgeNotFound            = errors.New("engine: edge not found")
	ErrConflictNotFound        = errors.New("engine: conflict not found")
	ErrConflictAlreadyResolved = errors.New("engine: conflict already resolved")
	ErrOverlayNotFound         = errors.New("engine: overlay not found")
	ErrNoActiveOverlay         = errors.New("engine: no active overlay")
	ErrEmptyOverlay            = errors.New("engine: overlay has no staged operations to commit")
	ErrUnresolvedDrift         = errors.New("engine: overlay has fields with unresolved canonical drift")
	ErrEntityCollision         = errors.New("engine: entity id already in use by a different entity")
	ErrHLCDriftTooLarge        = errors.New("engine: remote clock drift exceeds the maximum allowed")
	ErrInvalidSignature        = errors.New("engine: bundle or operation signature verification failed")
)
