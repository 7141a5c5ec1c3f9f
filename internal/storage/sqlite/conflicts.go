package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/storage"
)

// OpenConflict records a freshly detected concurrent-edit conflict and its
// initial set of branch tips (one per actor whose write survives as a
// candidate value).
func (s *Store) OpenConflict(ctx context.Context, c *storage.ConflictRecord, tips []storage.ConflictBranchTip) error {
	_, err := s.exec(ctx, `
		INSERT INTO conflicts (conflict_id, entity_id, field_key, status, detected_at, detected_in_bundle)
		VALUES (?, ?, ?, 'open', ?, ?)`,
		c.ConflictID.Bytes(), c.EntityID.Bytes(), c.FieldKey, c.DetectedHLC[:], c.DetectedInBundle.Bytes())
	if err != nil {
		return wrapDBError("open conflict", err)
	}
	for _, tip := range tips {
		tip.ConflictID = c.ConflictID
		if err := s.upsertBranchTip(ctx, tip); err != nil {
			return err
		}
	}
	return nil
}

// ExtendConflict adds or replaces one actor's branch tip in an already-open
// conflict, used when a third (or later) concurrent write lands on the same
// field while the conflict is still open.
func (s *Store) ExtendConflict(ctx context.Context, conflictID ids.ConflictID, tip storage.ConflictBranchTip) error {
	tip.ConflictID = conflictID
	return s.upsertBranchTip(ctx, tip)
}

func (s *Store) upsertBranchTip(ctx context.Context, tip storage.ConflictBranchTip) error {
	_, err := s.exec(ctx, `
		INSERT INTO conflict_values (conflict_id, actor_id, hlc, op_id, value)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(conflict_id, actor_id) DO UPDATE SET
			hlc = excluded.hlc, op_id = excluded.op_id, value = excluded.value
		WHERE excluded.hlc > conflict_values.hlc`,
		tip.ConflictID.Bytes(), tip.ActorID.Bytes(), tip.HLC[:], tip.OpID.Bytes(), nullable(tip.Value))
	return wrapDBError("upsert conflict branch tip", err)
}

// ResolveConflict marks conflictID resolved, recording who resolved it, with
// which operation, and the chosen value (nil if the resolution cleared the
// field rather than picking a value).
func (s *Store) ResolveConflict(ctx context.Context, conflictID ids.ConflictID, resolvedHLC [12]byte, resolvedBy ids.ActorID, resolvedOp ids.OpID, value []byte) error {
	_, err := s.exec(ctx, `
		UPDATE conflicts SET status = 'resolved', resolved_at = ?, resolved_by = ?, resolved_op_id = ?, resolved_value = ?
		WHERE conflict_id = ?`,
		resolvedHLC[:], resolvedBy.Bytes(), resolvedOp.Bytes(), nullable(value), conflictID.Bytes())
	return wrapDBError("resolve conflict", err)
}

// ReopenConflict flips a resolved conflict back to open when a late-arriving
// concurrent bundle touches the same field after resolution, per the
// reopen-on-late-arrival rule in SPEC_FULL.md's conflict lifecycle. The
// conflict's prior branch tips (the ones that lost to the resolution) are
// dropped here: the caller replaces them with exactly two fresh tips, the
// resolution tip and the incoming tip, so a reopened conflict never carries
// forward tips from before it was resolved.
func (s *Store) ReopenConflict(ctx context.Context, conflictID ids.ConflictID, reopenedHLC [12]byte, reopenedByOp ids.OpID) error {
	_, err := s.exec(ctx, `
		UPDATE conflicts SET status = 'open', reopened_at = ?, reopened_by_op = ?,
			resolved_at = NULL, resolved_by = NULL, resolved_op_id = NULL, resolved_value = NULL
		WHERE conflict_id = ?`,
		reopenedHLC[:], reopenedByOp.Bytes(), conflictID.Bytes())
	if err != nil {
		return wrapDBError("reopen conflict", err)
	}
	if _, err := s.exec(ctx, `DELETE FROM conflict_values WHERE conflict_id = ?`, conflictID.Bytes()); err != nil {
		return wrapDBError("clear stale conflict branch tips", err)
	}
	return nil
}

// GetConflict returns a conflict record together with its current branch
// tips.
func (s *Store) GetConflict(ctx context.Context, conflictID ids.ConflictID) (*storage.ConflictRecord, []storage.ConflictBranchTip, error) {
	c, err := s.scanConflictRow(s.queryRow(ctx, `
		SELECT conflict_id, entity_id, field_key, status, detected_at, detected_in_bundle,
			resolved_at, resolved_by, resolved_op_id, resolved_value, reopened_at, reopened_by_op
		FROM conflicts WHERE conflict_id = ?`, conflictID.Bytes()))
	if err != nil || c == nil {
		return nil, nil, err
	}
	tips, err := s.branchTips(ctx, conflictID)
	if err != nil {
		return nil, nil, err
	}
	return c, tips, nil
}

// OpenConflictFor returns the currently open conflict on (entity, fieldKey),
// if any.
func (s *Store) OpenConflictFor(ctx context.Context, entity ids.EntityID, fieldKey string) (*storage.ConflictRecord, []storage.ConflictBranchTip, error) {
	c, err := s.scanConflictRow(s.queryRow(ctx, `
		SELECT conflict_id, entity_id, field_key, status, detected_at, detected_in_bundle,
			resolved_at, resolved_by, resolved_op_id, resolved_value, reopened_at, reopened_by_op
		FROM conflicts WHERE entity_id = ? AND field_key = ? AND status = 'open'`, entity.Bytes(), fieldKey))
	if err != nil || c == nil {
		return nil, nil, err
	}
	tips, err := s.branchTips(ctx, c.ConflictID)
	if err != nil {
		return nil, nil, err
	}
	return c, tips, nil
}

// LatestConflictFor returns the most recently detected conflict on (entity,
// fieldKey) regardless of status.
func (s *Store) LatestConflictFor(ctx context.Context, entity ids.EntityID, fieldKey string) (*storage.ConflictRecord, []storage.ConflictBranchTip, error) {
	c, err := s.scanConflictRow(s.queryRow(ctx, `
		SELECT conflict_id, entity_id, field_key, status, detected_at, detected_in_bundle,
			resolved_at, resolved_by, resolved_op_id, resolved_value, reopened_at, reopened_by_op
		FROM conflicts WHERE entity_id = ? AND field_key = ? ORDER BY detected_at DESC LIMIT 1`, entity.Bytes(), fieldKey))
	if err != nil || c == nil {
		return nil, nil, err
	}
	tips, err := s.branchTips(ctx, c.ConflictID)
	if err != nil {
		return nil, nil, err
	}
	return c, tips, nil
}

// ListOpenConflicts returns every currently open conflict.
func (s *Store) ListOpenConflicts(ctx context.Context) ([]*storage.ConflictRecord, error) {
	rows, err := s.query(ctx, `
		SELECT conflict_id, entity_id, field_key, status, detected_at, detected_in_bundle,
			resolved_at, resolved_by, resolved_op_id, resolved_value, reopened_at, reopened_by_op
		FROM conflicts WHERE status = 'open'`)
	if err != nil {
		return nil, wrapDBError("list open conflicts", err)
	}
	defer rows.Close()

	var out []*storage.ConflictRecord
	for rows.Next() {
		c, err := s.scanConflict(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) scanConflictRow(row *sql.Row) (*storage.ConflictRecord, error) {
	c, err := s.scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return c, err
}

func (s *Store) scanConflict(r rowScanner) (*storage.ConflictRecord, error) {
	var conflictIDBytes, entityIDBytes []byte
	var fieldKey, status string
	var detectedAt, detectedInBundle []byte
	var resolvedAt, resolvedBy, resolvedOpID, resolvedValue, reopenedAt, reopenedByOp []byte

	if err := r.Scan(&conflictIDBytes, &entityIDBytes, &fieldKey, &status, &detectedAt, &detectedInBundle,
		&resolvedAt, &resolvedBy, &resolvedOpID, &resolvedValue, &reopenedAt, &reopenedByOp); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, wrapDBError("scan conflict", err)
	}

	c := &storage.ConflictRecord{FieldKey: fieldKey, Status: storage.ConflictStatus(status), ResolvedValue: resolvedValue}
	var err error
	if c.ConflictID, err = ids.ConflictIDFromBytes(conflictIDBytes); err != nil {
		return nil, err
	}
	if c.EntityID, err = ids.EntityIDFromBytes(entityIDBytes); err != nil {
		return nil, err
	}
	if c.DetectedHLC, err = blobTo16(detectedAt); err != nil {
		return nil, err
	}
	if c.DetectedInBundle, err = ids.BundleIDFromBytes(detectedInBundle); err != nil {
		return nil, err
	}
	if c.ResolvedHLC, err = optionalHLC(resolvedAt); err != nil {
		return nil, err
	}
	if c.ResolvedBy, err = optionalActorID(resolvedBy); err != nil {
		return nil, err
	}
	if resolvedOpID != nil {
		id, err := ids.OpIDFromBytes(resolvedOpID)
		if err != nil {
			return nil, err
		}
		c.ResolvedOpID = &id
	}
	if c.ReopenedHLC, err = optionalHLC(reopenedAt); err != nil {
		return nil, err
	}
	if reopenedByOp != nil {
		id, err := ids.OpIDFromBytes(reopenedByOp)
		if err != nil {
			return nil, err
		}
		c.ReopenedByOp = &id
	}
	return c, nil
}

func (s *Store) branchTips(ctx context.Context, conflictID ids.ConflictID) ([]storage.ConflictBranchTip, error) {
	rows, err := s.query(ctx, `SELECT actor_id, hlc, op_id, value FROM conflict_values WHERE conflict_id = ?`, conflictID.Bytes())
	if err != nil {
		return nil, wrapDBError("read branch tips", err)
	}
	defer rows.Close()

	var out []storage.ConflictBranchTip
	for rows.Next() {
		var actorBytes, hlcBytes, opIDBytes, value []byte
		if err := rows.Scan(&actorBytes, &hlcBytes, &opIDBytes, &value); err != nil {
			return nil, wrapDBError("scan branch tip", err)
		}
		tip := storage.ConflictBranchTip{ConflictID: conflictID, Value: value}
		if tip.ActorID, err = ids.ActorIDFromBytes(actorBytes); err != nil {
			return nil, err
		}
		if tip.HLC, err = blobTo16(hlcBytes); err != nil {
			return nil, err
		}
		if tip.OpID, err = ids.OpIDFromBytes(opIDBytes); err != nil {
			return nil, err
		}
		out = append(out, tip)
	}
	return out, rows.Err()
}
