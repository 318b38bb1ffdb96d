package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/caihaoran-00/memchr/store"
)

func (d *DB) UpsertProfile(ctx context.Context, profile *store.UserProfile, maxTags int) error {
	return upsertProfile(ctx, d.db, profile, maxTags)
}

func (d *DB) GetProfile(ctx context.Context, userID string) (*store.UserProfile, error) {
	return getProfile(ctx, d.db, userID)
}

func (d *DB) ListUserIDs(ctx context.Context) ([]string, error) {
	return listUserIDs(ctx, d.db)
}

func (t *txDB) UpsertProfile(ctx context.Context, profile *store.UserProfile, maxTags int) error {
	return upsertProfile(ctx, t.tx, profile, maxTags)
}

func (t *txDB) GetProfile(ctx context.Context, userID string) (*store.UserProfile, error) {
	return getProfile(ctx, t.tx, userID)
}

func upsertProfile(ctx context.Context, q querier, profile *store.UserProfile, maxTags int) error {
	existing, err := getProfile(ctx, q, profile.UserID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	var base []string
	if existing != nil {
		base = existing.Tags
	}
	tags := mergeTags(base, profile.Tags, maxTags)

	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return errors.Wrap(err, "failed to marshal tags")
	}

	now := nowUnix()
	createdTs := now
	if existing != nil {
		createdTs = existing.CreatedAt.Unix()
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO profiles (user_id, name, age, gender, tags, created_ts, updated_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			age = excluded.age,
			gender = excluded.gender,
			tags = excluded.tags,
			updated_ts = excluded.updated_ts
	`, profile.UserID, profile.Name, profile.Age, profile.Gender, string(tagsJSON), createdTs, now)
	if err != nil {
		return errors.Wrap(err, "failed to upsert profile")
	}
	return nil
}

// mergeTags appends newTags onto base, moving duplicates to the most-recent
// position, then truncates to the oldest-first overflow so at most maxTags
// survive.
func mergeTags(base, newTags []string, maxTags int) []string {
	seen := make(map[string]bool, len(base)+len(newTags))
	merged := make([]string, 0, len(base)+len(newTags))
	for _, t := range base {
		if !seen[t] {
			merged = append(merged, t)
			seen[t] = true
		}
	}
	for _, t := range newTags {
		if seen[t] {
			for i, existing := range merged {
				if existing == t {
					merged = append(merged[:i], merged[i+1:]...)
					break
				}
			}
		}
		merged = append(merged, t)
		seen[t] = true
	}
	if maxTags > 0 && len(merged) > maxTags {
		merged = merged[len(merged)-maxTags:]
	}
	return merged
}

func getProfile(ctx context.Context, q querier, userID string) (*store.UserProfile, error) {
	row := q.QueryRowContext(ctx, `
		SELECT user_id, name, age, gender, tags, created_ts, updated_ts
		FROM profiles WHERE user_id = ?
	`, userID)

	var p store.UserProfile
	var tagsJSON string
	var createdTs, updatedTs int64
	if err := row.Scan(&p.UserID, &p.Name, &p.Age, &p.Gender, &tagsJSON, &createdTs, &updatedTs); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, errors.Wrap(err, "failed to scan profile")
	}
	if err := json.Unmarshal([]byte(tagsJSON), &p.Tags); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal tags")
	}
	p.CreatedAt = unixToTime(createdTs)
	p.UpdatedAt = unixToTime(updatedTs)
	return &p, nil
}

func listUserIDs(ctx context.Context, q querier) ([]string, error) {
	seen := make(map[string]bool)
	var ids []string

	for _, table := range []string{"profiles", "episodes", "facts"} {
		rows, err := q.QueryContext(ctx, "SELECT DISTINCT user_id FROM "+table)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to list user ids from %s", table)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, errors.Wrap(err, "failed to scan user id")
			}
			if !seen[id] {
				seen[id] = true
				ids = append(ids, id)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return ids, nil
}
