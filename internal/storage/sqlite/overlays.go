package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/storage"
)

// CreateOverlay inserts a fresh overlay scratch space.
func (s *Store) CreateOverlay(ctx context.Context, o *storage.OverlayRecord) error {
	_, err := s.exec(ctx, `
		INSERT INTO overlays (overlay_id, display_name, source, source_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		o.OverlayID.Bytes(), o.DisplayName, overlaySourceOf(o), nullableString(o.SourceID),
		string(o.Status), o.CreatedHLC[:], o.UpdatedHLC[:])
	return wrapDBError("create overlay", err)
}

// overlaySourceOf defaults an empty source to "user", matching the schema's
// column default.
func overlaySourceOf(o *storage.OverlayRecord) string {
	if o.Source == "" {
		return "user"
	}
	return o.Source
}

// GetOverlay returns one overlay by id.
func (s *Store) GetOverlay(ctx context.Context, id ids.OverlayID) (*storage.OverlayRecord, error) {
	row := s.queryRow(ctx, `
		SELECT overlay_id, display_name, source, source_id, status, created_at, updated_at
		FROM overlays WHERE overlay_id = ?`, id.Bytes())
	rec, err := scanOverlay(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return rec, err
}

// ListOverlays returns every overlay with the given status.
func (s *Store) ListOverlays(ctx context.Context, status storage.OverlayStatus) ([]*storage.OverlayRecord, error) {
	rows, err := s.query(ctx, `
		SELECT overlay_id, display_name, source, source_id, status, created_at, updated_at
		FROM overlays WHERE status = ?`, string(status))
	if err != nil {
		return nil, wrapDBError("list overlays", err)
	}
	defer rows.Close()

	var out []*storage.OverlayRecord
	for rows.Next() {
		rec, err := scanOverlay(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanOverlay(r rowScanner) (*storage.OverlayRecord, error) {
	var overlayIDBytes []byte
	var displayName, source string
	var sourceID sql.NullString
	var status string
	var createdAt, updatedAt []byte

	if err := r.Scan(&overlayIDBytes, &displayName, &source, &sourceID, &status, &createdAt, &updatedAt); err != nil {
		return nil, wrapDBError("scan overlay", err)
	}

	rec := &storage.OverlayRecord{DisplayName: displayName, Source: source, Status: storage.OverlayStatus(status)}
	if sourceID.Valid {
		rec.SourceID = sourceID.String
	}
	var err error
	if rec.OverlayID, err = ids.OverlayIDFromBytes(overlayIDBytes); err != nil {
		return nil, err
	}
	if rec.CreatedHLC, err = blobTo16(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedHLC, err = blobTo16(updatedAt); err != nil {
		return nil, err
	}
	return rec, nil
}

// SetOverlayStatus transitions an overlay's lifecycle status.
func (s *Store) SetOverlayStatus(ctx context.Context, id ids.OverlayID, status storage.OverlayStatus, updatedHLC [12]byte) error {
	_, err := s.exec(ctx, `UPDATE overlays SET status = ?, updated_at = ? WHERE overlay_id = ?`,
		string(status), updatedHLC[:], id.Bytes())
	return wrapDBError("set overlay status", err)
}

// DeleteOverlay removes an overlay and every op staged against it.
func (s *Store) DeleteOverlay(ctx context.Context, id ids.OverlayID) error {
	if _, err := s.exec(ctx, `DELETE FROM overlay_ops WHERE overlay_id = ?`, id.Bytes()); err != nil {
		return wrapDBError("delete overlay ops", err)
	}
	_, err := s.exec(ctx, `DELETE FROM overlays WHERE overlay_id = ?`, id.Bytes())
	return wrapDBError("delete overlay", err)
}

// AppendOverlayOp records a write against an overlay's scratch space; this
// never touches the canonical oplog or materialized projection.
func (s *Store) AppendOverlayOp(ctx context.Context, op *storage.OverlayOpRecord) error {
	var entityIDCol any
	if op.EntityID != nil {
		entityIDCol = op.EntityID.Bytes()
	}
	_, err := s.exec(ctx, `
		INSERT INTO overlay_ops (overlay_id, op_id, hlc, payload, entity_id, field_key, op_type, canonical_value_at_creation, canonical_drifted)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		op.OverlayID.Bytes(), op.OpID.Bytes(), op.HLC[:], op.Payload, entityIDCol,
		nullableString(op.FieldKey), op.OpType, nullable(op.CanonicalValueAtCreation), boolToInt(op.CanonicalDrifted))
	return wrapDBError("append overlay op", err)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// ListOverlayOps returns every recorded write against overlayID, in insertion
// order.
func (s *Store) ListOverlayOps(ctx context.Context, overlayID ids.OverlayID) ([]*storage.OverlayOpRecord, error) {
	rows, err := s.query(ctx, `
		SELECT rowid, overlay_id, op_id, hlc, payload, entity_id, field_key, op_type, canonical_value_at_creation, canonical_drifted
		FROM overlay_ops WHERE overlay_id = ? ORDER BY rowid`, overlayID.Bytes())
	if err != nil {
		return nil, wrapDBError("list overlay ops", err)
	}
	defer rows.Close()
	return scanOverlayOps(rows)
}

// OverlayOpsFor returns the recorded writes against (overlayID, entity,
// fieldKey), used by drift detection to find what an overlay has staged for
// one field.
func (s *Store) OverlayOpsFor(ctx context.Context, overlayID ids.OverlayID, entity ids.EntityID, fieldKey string) ([]*storage.OverlayOpRecord, error) {
	rows, err := s.query(ctx, `
		SELECT rowid, overlay_id, op_id, hlc, payload, entity_id, field_key, op_type, canonical_value_at_creation, canonical_drifted
		FROM overlay_ops WHERE overlay_id = ? AND entity_id = ? AND field_key = ? ORDER BY rowid`,
		overlayID.Bytes(), entity.Bytes(), fieldKey)
	if err != nil {
		return nil, wrapDBError("overlay ops for field", err)
	}
	defer rows.Close()
	return scanOverlayOps(rows)
}

func scanOverlayOps(rows *sql.Rows) ([]*storage.OverlayOpRecord, error) {
	var out []*storage.OverlayOpRecord
	for rows.Next() {
		var rowID int64
		var overlayIDBytes, opIDBytes, hlcBytes, payload, entityIDBytes []byte
		var fieldKey sql.NullString
		var opType string
		var canonicalValue []byte
		var drifted int

		if err := rows.Scan(&rowID, &overlayIDBytes, &opIDBytes, &hlcBytes, &payload, &entityIDBytes, &fieldKey, &opType, &canonicalValue, &drifted); err != nil {
			return nil, wrapDBError("scan overlay op", err)
		}
		rec := &storage.OverlayOpRecord{
			RowID:                    rowID,
			Payload:                  payload,
			OpType:                   opType,
			CanonicalValueAtCreation: canonicalValue,
			CanonicalDrifted:         drifted != 0,
		}
		if fieldKey.Valid {
			rec.FieldKey = fieldKey.String
		}
		var err error
		if rec.OverlayID, err = ids.OverlayIDFromBytes(overlayIDBytes); err != nil {
			return nil, err
		}
		if rec.OpID, err = ids.OpIDFromBytes(opIDBytes); err != nil {
			return nil, err
		}
		if rec.HLC, err = blobTo16(hlcBytes); err != nil {
			return nil, err
		}
		if rec.EntityID, err = optionalEntityID(entityIDBytes); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkOverlayOpDrifted flags (or clears) canonical-drift detection on one
// overlay op row.
func (s *Store) MarkOverlayOpDrifted(ctx context.Context, rowID int64, drifted bool) error {
	_, err := s.exec(ctx, `UPDATE overlay_ops SET canonical_drifted = ? WHERE rowid = ?`, boolToInt(drifted), rowID)
	return wrapDBError("mark overlay op drifted", err)
}

// LatestOverlayFieldOp returns the most recently appended overlay op for
// (overlayID, entity, fieldKey), if any.
func (s *Store) LatestOverlayFieldOp(ctx context.Context, overlayID ids.OverlayID, entity ids.EntityID, fieldKey string) (*storage.OverlayOpRecord, error) {
	rows, err := s.query(ctx, `
		SELECT rowid, overlay_id, op_id, hlc, payload, entity_id, field_key, op_type, canonical_value_at_creation, canonical_drifted
		FROM overlay_ops WHERE overlay_id = ? AND entity_id = ? AND field_key = ? ORDER BY rowid DESC LIMIT 1`,
		overlayID.Bytes(), entity.Bytes(), fieldKey)
	if err != nil {
		return nil, wrapDBError("latest overlay field op", err)
	}
	defer rows.Close()
	recs, err := scanOverlayOps(rows)
	if err != nil || len(recs) == 0 {
		return nil, err
	}
	return recs[0], nil
}

// MarkFieldDrifted flags every overlay op (across every overlay) staged
// against (entity, fieldKey) as canonically drifted.
func (s *Store) MarkFieldDrifted(ctx context.Context, entity ids.EntityID, fieldKey string) error {
	_, err := s.exec(ctx, `
		UPDATE overlay_ops SET canonical_drifted = 1 WHERE entity_id = ? AND field_key = ?`,
		entity.Bytes(), fieldKey)
	return wrapDBError("mark field drifted", err)
}

// DriftedOverlayOps returns the overlay ops in overlayID currently flagged
// as canonically drifted.
func (s *Store) DriftedOverlayOps(ctx context.Context, overlayID ids.OverlayID) ([]*storage.OverlayOpRecord, error) {
	rows, err := s.query(ctx, `
		SELECT rowid, overlay_id, op_id, hlc, payload, entity_id, field_key, op_type, canonical_value_at_creation, canonical_drifted
		FROM overlay_ops WHERE overlay_id = ? AND canonical_drifted = 1 ORDER BY rowid`, overlayID.Bytes())
	if err != nil {
		return nil, wrapDBError("drifted overlay ops", err)
	}
	defer rows.Close()
	return scanOverlayOps(rows)
}

// CountUnresolvedDrift returns how many of overlayID's ops are currently
// flagged as drifted.
func (s *Store) CountUnresolvedDrift(ctx context.Context, overlayID ids.OverlayID) (int, error) {
	var n int
	err := s.queryRow(ctx, `SELECT COUNT(*) FROM overlay_ops WHERE overlay_id = ? AND canonical_drifted = 1`, overlayID.Bytes()).Scan(&n)
	if err != nil {
		return 0, wrapDBError("count unresolved drift", err)
	}
	return n, nil
}

// UpdateCanonicalSnapshot rewrites the canonical_value_at_creation baseline
// recorded for the given overlay op rows.
func (s *Store) UpdateCanonicalSnapshot(ctx context.Context, rowIDs []int64, canonicalValue []byte) error {
	for _, rowID := range rowIDs {
		if _, err := s.exec(ctx, `UPDATE overlay_ops SET canonical_value_at_creation = ? WHERE rowid = ?`, nullable(canonicalValue), rowID); err != nil {
			return wrapDBError("update canonical snapshot", err)
		}
	}
	return nil
}

// DeleteOverlayOps removes the given overlay op rows, used by knockout to
// drop a field's staged writes.
func (s *Store) DeleteOverlayOps(ctx context.Context, overlayID ids.OverlayID, rowIDs []int64) error {
	for _, rowID := range rowIDs {
		if _, err := s.exec(ctx, `DELETE FROM overlay_ops WHERE overlay_id = ? AND rowid = ?`, overlayID.Bytes(), rowID); err != nil {
			return wrapDBError("delete overlay op", err)
		}
	}
	return nil
}
