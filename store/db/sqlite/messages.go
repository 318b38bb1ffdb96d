package sqlite

import (
	"context"

	"github.com/pkg/errors"

	"github.com/caihaoran-00/memchr/store"
)

func (d *DB) PersistMessage(ctx context.Context, msg *store.Message) error {
	return persistMessage(ctx, d.db, msg)
}

func (t *txDB) PersistMessage(ctx context.Context, msg *store.Message) error {
	return persistMessage(ctx, t.tx, msg)
}

// persistMessage writes one raw turn, ignoring a repeat of (session_id, seq).
// The Manager's working-memory path never calls it.
func persistMessage(ctx context.Context, q querier, msg *store.Message) error {
	ts := msg.Timestamp.Unix()
	if ts == 0 {
		ts = nowUnix()
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO messages (session_id, seq, role, text, ts)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(session_id, seq) DO NOTHING
	`, msg.SessionID, msg.Seq, msg.Role, msg.Text, ts)
	if err != nil {
		return errors.Wrap(err, "failed to persist message")
	}
	return nil
}
