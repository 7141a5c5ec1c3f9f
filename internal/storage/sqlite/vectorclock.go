package sqlite

import (
	"context"

	"github.com/untoldecay/beadsreplica/internal/hlc"
	"github.com/untoldecay/beadsreplica/internal/ids"
	"github.com/untoldecay/beadsreplica/internal/vclock"
)

// VectorClock returns the store's current per-actor max-HLC map, built from
// the vector_clock table bumpVectorClock maintains incrementally on every
// AppendBundle.
func (s *Store) VectorClock(ctx context.Context) (*vclock.Clock, error) {
	rows, err := s.query(ctx, `SELECT actor_id, max_hlc FROM vector_clock`)
	if err != nil {
		return nil, wrapDBError("read vector clock", err)
	}
	defer rows.Close()

	c := vclock.New()
	for rows.Next() {
		var actorBytes, hlcBytes []byte
		if err := rows.Scan(&actorBytes, &hlcBytes); err != nil {
			return nil, wrapDBError("scan vector clock row", err)
		}
		actor, err := ids.ActorIDFromBytes(actorBytes)
		if err != nil {
			return nil, err
		}
		h, err := hlc.FromBytes(hlcBytes)
		if err != nil {
			return nil, err
		}
		c.Update(actor, h)
	}
	return c, rows.Err()
}
