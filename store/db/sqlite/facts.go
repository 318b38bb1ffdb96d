package sqlite

import (
	"context"
	"math"

	"github.com/pkg/errors"

	"github.com/caihaoran-00/memchr/store"
)

func (d *DB) UpsertFact(ctx context.Context, fact *store.Fact) error {
	return upsertFact(ctx, d.db, fact)
}

func (d *DB) ListFacts(ctx context.Context, userID string, subject *string) ([]store.Fact, error) {
	return listFacts(ctx, d.db, userID, subject)
}

func (d *DB) DeleteFact(ctx context.Context, factID string) error {
	return deleteFact(ctx, d.db, factID)
}

func (d *DB) DeleteFactsBelow(ctx context.Context, userID string, confidence float64) (int, error) {
	return deleteFactsBelow(ctx, d.db, userID, confidence)
}

func (d *DB) CountFacts(ctx context.Context, userID string) (int, error) {
	return countFacts(ctx, d.db, userID)
}

func (t *txDB) UpsertFact(ctx context.Context, fact *store.Fact) error {
	return upsertFact(ctx, t.tx, fact)
}

func (t *txDB) ListFacts(ctx context.Context, userID string, subject *string) ([]store.Fact, error) {
	return listFacts(ctx, t.tx, userID, subject)
}

func (t *txDB) DeleteFact(ctx context.Context, factID string) error {
	return deleteFact(ctx, t.tx, factID)
}

func (t *txDB) DeleteFactsBelow(ctx context.Context, userID string, confidence float64) (int, error) {
	return deleteFactsBelow(ctx, t.tx, userID, confidence)
}

func (t *txDB) CountFacts(ctx context.Context, userID string) (int, error) {
	return countFacts(ctx, t.tx, userID)
}

// upsertFact coalesces on (user_id, subject, predicate, object): confidence
// becomes max(old, new) and last_seen_ts refreshes, rather than overwriting
// a previously higher-confidence observation with a fresh but weaker one.
func upsertFact(ctx context.Context, q querier, fact *store.Fact) error {
	now := nowUnix()
	created := fact.CreatedAt.Unix()
	if created == 0 {
		created = now
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO facts (fact_id, user_id, subject, predicate, object, confidence, created_ts, last_seen_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, subject, predicate, object) DO UPDATE SET
			confidence = MAX(facts.confidence, excluded.confidence),
			last_seen_ts = excluded.last_seen_ts
	`, fact.FactID, fact.UserID, fact.Subject, fact.Predicate, fact.Object, fact.Confidence, created, now)
	if err != nil {
		return errors.Wrap(err, "failed to upsert fact")
	}
	return nil
}

func listFacts(ctx context.Context, q querier, userID string, subject *string) ([]store.Fact, error) {
	query := `
		SELECT fact_id, user_id, subject, predicate, object, confidence, created_ts, last_seen_ts
		FROM facts WHERE user_id = ?
	`
	args := []any{userID}
	if subject != nil {
		query += " AND subject = ?"
		args = append(args, *subject)
	}
	query += " ORDER BY confidence DESC"

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list facts")
	}
	defer rows.Close()

	var out []store.Fact
	for rows.Next() {
		var f store.Fact
		var createdTs, lastSeenTs int64
		if err := rows.Scan(&f.FactID, &f.UserID, &f.Subject, &f.Predicate, &f.Object, &f.Confidence, &createdTs, &lastSeenTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan fact")
		}
		f.CreatedAt = unixToTime(createdTs)
		f.LastSeenAt = unixToTime(lastSeenTs)
		out = append(out, f)
	}
	return out, rows.Err()
}

func deleteFact(ctx context.Context, q querier, factID string) error {
	_, err := q.ExecContext(ctx, "DELETE FROM facts WHERE fact_id = ?", factID)
	if err != nil {
		return errors.Wrap(err, "failed to delete fact")
	}
	return nil
}

func deleteFactsBelow(ctx context.Context, q querier, userID string, confidence float64) (int, error) {
	if math.IsNaN(confidence) {
		return 0, errors.New("confidence threshold is NaN")
	}
	res, err := q.ExecContext(ctx, "DELETE FROM facts WHERE user_id = ? AND confidence < ?", userID, confidence)
	if err != nil {
		return 0, errors.Wrap(err, "failed to delete facts")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read rows affected")
	}
	return int(n), nil
}

func countFacts(ctx context.Context, q querier, userID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM facts WHERE user_id = ?", userID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count facts")
	}
	return n, nil
}
