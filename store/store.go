package store

import (
	"context"
	"time"
)

// Store is the thin facade the memory package depends on. It owns no
// business logic of its own; every method delegates straight to the
// configured Driver. The indirection exists so callers depend on an
// interface-free concrete type instead of reaching into a specific
// backend package, matching how the Driver is swapped in tests.
type Store struct {
	driver Driver
}

// New wraps a Driver in a Store.
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

func (s *Store) Driver() Driver { return s.driver }

func (s *Store) Close() error { return s.driver.Close() }

func (s *Store) Migrate(ctx context.Context) error { return s.driver.Migrate(ctx) }

func (s *Store) Transaction(ctx context.Context, fn func(ctx context.Context, tx Driver) error) error {
	return s.driver.Transaction(ctx, fn)
}

func (s *Store) UpsertProfile(ctx context.Context, profile *UserProfile, maxTags int) error {
	return s.driver.UpsertProfile(ctx, profile, maxTags)
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*UserProfile, error) {
	return s.driver.GetProfile(ctx, userID)
}

func (s *Store) InsertEpisode(ctx context.Context, ep *Episode) error {
	return s.driver.InsertEpisode(ctx, ep)
}

func (s *Store) UpdateEpisodeAccess(ctx context.Context, episodeID string, now time.Time) error {
	return s.driver.UpdateEpisodeAccess(ctx, episodeID, now)
}

func (s *Store) DeleteEpisode(ctx context.Context, episodeID string) error {
	return s.driver.DeleteEpisode(ctx, episodeID)
}

func (s *Store) ListEpisodes(ctx context.Context, userID string, filter EpisodeFilter) ([]Episode, error) {
	return s.driver.ListEpisodes(ctx, userID, filter)
}

func (s *Store) CountEpisodes(ctx context.Context, userID string) (int, error) {
	return s.driver.CountEpisodes(ctx, userID)
}

func (s *Store) UpsertFact(ctx context.Context, fact *Fact) error {
	return s.driver.UpsertFact(ctx, fact)
}

func (s *Store) ListFacts(ctx context.Context, userID string, subject *string) ([]Fact, error) {
	return s.driver.ListFacts(ctx, userID, subject)
}

func (s *Store) DeleteFact(ctx context.Context, factID string) error {
	return s.driver.DeleteFact(ctx, factID)
}

func (s *Store) DeleteFactsBelow(ctx context.Context, userID string, confidence float64) (int, error) {
	return s.driver.DeleteFactsBelow(ctx, userID, confidence)
}

func (s *Store) CountFacts(ctx context.Context, userID string) (int, error) {
	return s.driver.CountFacts(ctx, userID)
}

func (s *Store) PersistMessage(ctx context.Context, msg *Message) error {
	return s.driver.PersistMessage(ctx, msg)
}

func (s *Store) ListUserIDs(ctx context.Context) ([]string, error) {
	return s.driver.ListUserIDs(ctx)
}
