package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/caihaoran-00/memchr/store"
)

func (d *DB) InsertEpisode(ctx context.Context, ep *store.Episode) error {
	return insertEpisode(ctx, d.db, ep)
}

func (d *DB) UpdateEpisodeAccess(ctx context.Context, episodeID string, now time.Time) error {
	return updateEpisodeAccess(ctx, d.db, episodeID, now)
}

func (d *DB) DeleteEpisode(ctx context.Context, episodeID string) error {
	return deleteEpisode(ctx, d.db, episodeID)
}

func (d *DB) ListEpisodes(ctx context.Context, userID string, filter store.EpisodeFilter) ([]store.Episode, error) {
	return listEpisodes(ctx, d.db, userID, filter)
}

func (d *DB) CountEpisodes(ctx context.Context, userID string) (int, error) {
	return countEpisodes(ctx, d.db, userID)
}

func (t *txDB) InsertEpisode(ctx context.Context, ep *store.Episode) error {
	return insertEpisode(ctx, t.tx, ep)
}

func (t *txDB) UpdateEpisodeAccess(ctx context.Context, episodeID string, now time.Time) error {
	return updateEpisodeAccess(ctx, t.tx, episodeID, now)
}

func (t *txDB) DeleteEpisode(ctx context.Context, episodeID string) error {
	return deleteEpisode(ctx, t.tx, episodeID)
}

func (t *txDB) ListEpisodes(ctx context.Context, userID string, filter store.EpisodeFilter) ([]store.Episode, error) {
	return listEpisodes(ctx, t.tx, userID, filter)
}

func (t *txDB) CountEpisodes(ctx context.Context, userID string) (int, error) {
	return countEpisodes(ctx, t.tx, userID)
}

func insertEpisode(ctx context.Context, q querier, ep *store.Episode) error {
	keywordsJSON, err := json.Marshal(ep.Keywords)
	if err != nil {
		return errors.Wrap(err, "failed to marshal keywords")
	}

	created := ep.CreatedAt.Unix()
	lastAccessed := ep.LastAccessedAt.Unix()
	if created == 0 {
		created = nowUnix()
	}
	if lastAccessed == 0 {
		lastAccessed = created
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO episodes (episode_id, user_id, summary, keywords, emotion, importance, access_count, created_ts, last_accessed_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ep.EpisodeID, ep.UserID, ep.Summary, string(keywordsJSON), ep.Emotion, ep.Importance, ep.AccessCount, created, lastAccessed)
	if err != nil {
		return errors.Wrap(err, "failed to insert episode")
	}
	return nil
}

func updateEpisodeAccess(ctx context.Context, q querier, episodeID string, now time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE episodes SET access_count = access_count + 1, last_accessed_ts = ?
		WHERE episode_id = ?
	`, now.Unix(), episodeID)
	if err != nil {
		return errors.Wrap(err, "failed to update episode access")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "failed to read rows affected")
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func deleteEpisode(ctx context.Context, q querier, episodeID string) error {
	_, err := q.ExecContext(ctx, "DELETE FROM episodes WHERE episode_id = ?", episodeID)
	if err != nil {
		return errors.Wrap(err, "failed to delete episode")
	}
	return nil
}

func listEpisodes(ctx context.Context, q querier, userID string, filter store.EpisodeFilter) ([]store.Episode, error) {
	var sb strings.Builder
	sb.WriteString(`
		SELECT episode_id, user_id, summary, keywords, emotion, importance, access_count, created_ts, last_accessed_ts
		FROM episodes WHERE user_id = ?
	`)
	args := []any{userID}

	if filter.Since != nil {
		sb.WriteString(" AND last_accessed_ts >= ?")
		args = append(args, filter.Since.Unix())
	}
	if filter.Until != nil {
		sb.WriteString(" AND last_accessed_ts <= ?")
		args = append(args, filter.Until.Unix())
	}
	if len(filter.Keywords) > 0 {
		sb.WriteString(" AND (")
		for i, kw := range filter.Keywords {
			if i > 0 {
				sb.WriteString(" OR ")
			}
			sb.WriteString("keywords LIKE ?")
			args = append(args, "%\""+kw+"\"%")
		}
		sb.WriteString(")")
	}

	switch filter.OrderBy {
	case store.OrderByRecentDesc:
		sb.WriteString(" ORDER BY last_accessed_ts DESC")
	default:
		sb.WriteString(" ORDER BY importance DESC")
	}

	if filter.Limit > 0 {
		sb.WriteString(fmt.Sprintf(" LIMIT %d", filter.Limit))
	}

	rows, err := q.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list episodes")
	}
	defer rows.Close()

	var out []store.Episode
	for rows.Next() {
		var ep store.Episode
		var keywordsJSON string
		var createdTs, lastAccessedTs int64
		if err := rows.Scan(&ep.EpisodeID, &ep.UserID, &ep.Summary, &keywordsJSON, &ep.Emotion, &ep.Importance, &ep.AccessCount, &createdTs, &lastAccessedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan episode")
		}
		if err := json.Unmarshal([]byte(keywordsJSON), &ep.Keywords); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal keywords")
		}
		ep.CreatedAt = unixToTime(createdTs)
		ep.LastAccessedAt = unixToTime(lastAccessedTs)
		out = append(out, ep)
	}
	return out, rows.Err()
}

func countEpisodes(ctx context.Context, q querier, userID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM episodes WHERE user_id = ?", userID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, "failed to count episodes")
	}
	return n, nil
}
