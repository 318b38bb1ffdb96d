package store

import (
	"context"
	"time"
)

// Driver is the storage backend contract. Every method is synchronous to
// the caller and internally atomic; Transaction groups several driver
// calls into one commit, used by the Manager for the EndSession commit
// (upsert profile + insert episode + upsert facts).
type Driver interface {
	Close() error

	// Migrate brings the schema up to the latest version. Forward-only.
	Migrate(ctx context.Context) error

	// Transaction runs fn against a Driver bound to one transaction. All
	// calls made through the tx argument commit together, or none do.
	Transaction(ctx context.Context, fn func(ctx context.Context, tx Driver) error) error

	UpsertProfile(ctx context.Context, profile *UserProfile, maxTags int) error
	GetProfile(ctx context.Context, userID string) (*UserProfile, error)

	InsertEpisode(ctx context.Context, ep *Episode) error
	UpdateEpisodeAccess(ctx context.Context, episodeID string, now time.Time) error
	DeleteEpisode(ctx context.Context, episodeID string) error
	ListEpisodes(ctx context.Context, userID string, filter EpisodeFilter) ([]Episode, error)
	CountEpisodes(ctx context.Context, userID string) (int, error)

	// UpsertFact coalesces on (user_id, subject, predicate, object): if the
	// triple already exists, confidence becomes max(old, new) and
	// last_seen_at is refreshed.
	UpsertFact(ctx context.Context, fact *Fact) error
	ListFacts(ctx context.Context, userID string, subject *string) ([]Fact, error)
	DeleteFact(ctx context.Context, factID string) error
	DeleteFactsBelow(ctx context.Context, userID string, confidence float64) (int, error)
	CountFacts(ctx context.Context, userID string) (int, error)

	// PersistMessage stores one raw message row; a repeat of the same
	// (session_id, seq) is ignored.
	PersistMessage(ctx context.Context, msg *Message) error

	// ListUserIDs returns every user with at least one persisted entity.
	// Used by the cleanup-all-users maintenance endpoint.
	ListUserIDs(ctx context.Context) ([]string, error)
}
