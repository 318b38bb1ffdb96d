package sqlite

import (
	"context"

	"github.com/pkg/errors"
)

// schemaVersion is the current forward-only migration target.
const schemaVersion = 1

const schemaDDL = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS profiles (
	user_id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	age INTEGER NOT NULL DEFAULT 0,
	gender TEXT NOT NULL DEFAULT '',
	tags TEXT NOT NULL DEFAULT '[]',
	created_ts INTEGER NOT NULL,
	updated_ts INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	session_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	started_ts INTEGER NOT NULL,
	ended_ts INTEGER
);
CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id);

CREATE TABLE IF NOT EXISTS messages (
	session_id TEXT NOT NULL,
	seq INTEGER NOT NULL,
	role TEXT NOT NULL,
	text TEXT NOT NULL,
	ts INTEGER NOT NULL,
	PRIMARY KEY (session_id, seq)
);

CREATE TABLE IF NOT EXISTS episodes (
	episode_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	summary TEXT NOT NULL,
	keywords TEXT NOT NULL DEFAULT '[]',
	emotion TEXT NOT NULL DEFAULT 'neutral',
	importance REAL NOT NULL DEFAULT 0,
	access_count INTEGER NOT NULL DEFAULT 0,
	created_ts INTEGER NOT NULL,
	last_accessed_ts INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_episodes_user ON episodes(user_id);
CREATE INDEX IF NOT EXISTS idx_episodes_user_importance ON episodes(user_id, importance DESC);
CREATE INDEX IF NOT EXISTS idx_episodes_user_recent ON episodes(user_id, last_accessed_ts DESC);

CREATE TABLE IF NOT EXISTS facts (
	fact_id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL,
	subject TEXT NOT NULL,
	predicate TEXT NOT NULL,
	object TEXT NOT NULL,
	confidence REAL NOT NULL DEFAULT 0,
	created_ts INTEGER NOT NULL,
	last_seen_ts INTEGER NOT NULL,
	UNIQUE (user_id, subject, predicate, object)
);
CREATE INDEX IF NOT EXISTS idx_facts_user ON facts(user_id);
CREATE INDEX IF NOT EXISTS idx_facts_user_subject ON facts(user_id, subject);
`

// Migrate creates the schema if absent and records the schema version.
// Forward-only: there is currently one version, so this is idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx, schemaDDL); err != nil {
		return errors.Wrap(err, "failed to apply schema")
	}

	var count int
	if err := d.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_version").Scan(&count); err != nil {
		return errors.Wrap(err, "failed to read schema_version")
	}
	if count == 0 {
		if _, err := d.db.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
			return errors.Wrap(err, "failed to seed schema_version")
		}
	}
	return nil
}
