package sqlite

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caihaoran-00/memchr/store"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	// A single-connection pool (Open always sets MaxOpenConns=1) makes plain
	// ":memory:" safe here: every query in the test runs against the same
	// connection, so there is no multi-connection fan-out to worry about.
	db, err := Open(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Migrate(context.Background()))
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpenRejectsEmptyDSN(t *testing.T) {
	_, err := Open("")
	assert.Error(t, err)
}

func TestProfileUpsertAndGetRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	profile := &store.UserProfile{UserID: "alice", Name: "Alice", Age: 7, Gender: "female", Tags: []string{"dinosaurs"}}
	require.NoError(t, db.UpsertProfile(ctx, profile, 20))

	got, err := db.GetProfile(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, 7, got.Age)
	assert.Equal(t, []string{"dinosaurs"}, got.Tags)
}

func TestGetProfileMissingReturnsNoRows(t *testing.T) {
	db := openTestDB(t)
	_, err := db.GetProfile(context.Background(), "nobody")
	require.Error(t, err)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestProfileUpsertMergesTagsAndCapsAtMaxTags(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertProfile(ctx, &store.UserProfile{UserID: "bob", Tags: []string{"a", "b"}}, 3))
	require.NoError(t, db.UpsertProfile(ctx, &store.UserProfile{UserID: "bob", Tags: []string{"c", "d"}}, 3))

	got, err := db.GetProfile(ctx, "bob")
	require.NoError(t, err)
	assert.Len(t, got.Tags, 3)
	assert.Equal(t, []string{"b", "c", "d"}, got.Tags)
}

func TestEpisodeInsertListAndAccessBump(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	ep := store.Episode{
		EpisodeID:      "ep1",
		UserID:         "carol",
		Summary:        "talked about dinosaurs",
		Keywords:       []string{"恐龙"},
		Emotion:        "happy",
		Importance:     0.6,
		CreatedAt:      time.Now(),
		LastAccessedAt: time.Now(),
	}
	require.NoError(t, db.InsertEpisode(ctx, &ep))

	episodes, err := db.ListEpisodes(ctx, "carol", store.EpisodeFilter{})
	require.NoError(t, err)
	require.Len(t, episodes, 1)
	assert.Equal(t, []string{"恐龙"}, episodes[0].Keywords)

	require.NoError(t, db.UpdateEpisodeAccess(ctx, "ep1", time.Now()))
	episodes, err = db.ListEpisodes(ctx, "carol", store.EpisodeFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, episodes[0].AccessCount)
}

func TestUpdateEpisodeAccessOnMissingIDReturnsNoRows(t *testing.T) {
	db := openTestDB(t)
	err := db.UpdateEpisodeAccess(context.Background(), "does-not-exist", time.Now())
	assert.ErrorIs(t, err, sql.ErrNoRows)
}

func TestListEpisodesOrdersByRecentDescWhenRequested(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	now := time.Now()

	older := store.Episode{EpisodeID: "old", UserID: "dave", CreatedAt: now.Add(-time.Hour), LastAccessedAt: now.Add(-time.Hour)}
	newer := store.Episode{EpisodeID: "new", UserID: "dave", CreatedAt: now, LastAccessedAt: now}
	require.NoError(t, db.InsertEpisode(ctx, &older))
	require.NoError(t, db.InsertEpisode(ctx, &newer))

	episodes, err := db.ListEpisodes(ctx, "dave", store.EpisodeFilter{OrderBy: store.OrderByRecentDesc})
	require.NoError(t, err)
	require.Len(t, episodes, 2)
	assert.Equal(t, "new", episodes[0].EpisodeID)
}

func TestFactUpsertCoalescesOnTripleAndKeepsMaxConfidence(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	low := store.Fact{FactID: "f1", UserID: "erin", Subject: "user", Predicate: "likes", Object: "tea", Confidence: 0.7}
	high := store.Fact{FactID: "f2", UserID: "erin", Subject: "user", Predicate: "likes", Object: "tea", Confidence: 0.9}
	require.NoError(t, db.UpsertFact(ctx, &low))
	require.NoError(t, db.UpsertFact(ctx, &high))

	facts, err := db.ListFacts(ctx, "erin", nil)
	require.NoError(t, err)
	require.Len(t, facts, 1, "coalescing must leave exactly one row for the triple")
	assert.Equal(t, 0.9, facts[0].Confidence)
}

func TestDeleteFactsBelowThreshold(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertFact(ctx, &store.Fact{FactID: "f1", UserID: "frank", Subject: "user", Predicate: "likes", Object: "tea", Confidence: 0.1}))
	require.NoError(t, db.UpsertFact(ctx, &store.Fact{FactID: "f2", UserID: "frank", Subject: "user", Predicate: "likes", Object: "coffee", Confidence: 0.8}))

	n, err := db.DeleteFactsBelow(ctx, "frank", 0.2)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	remaining, err := db.ListFacts(ctx, "frank", nil)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "coffee", remaining[0].Object)
}

func TestTransactionRollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.Transaction(ctx, func(ctx context.Context, tx store.Driver) error {
		if err := tx.InsertEpisode(ctx, &store.Episode{EpisodeID: "doomed", UserID: "gina", CreatedAt: time.Now(), LastAccessedAt: time.Now()}); err != nil {
			return err
		}
		return assert.AnError
	})
	require.Error(t, err)

	episodes, err := db.ListEpisodes(ctx, "gina", store.EpisodeFilter{})
	require.NoError(t, err)
	assert.Empty(t, episodes, "failed transaction must not leave a partial insert visible")
}

func TestTransactionCommitsOnSuccess(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.Transaction(ctx, func(ctx context.Context, tx store.Driver) error {
		return tx.InsertEpisode(ctx, &store.Episode{EpisodeID: "committed", UserID: "hank", CreatedAt: time.Now(), LastAccessedAt: time.Now()})
	})
	require.NoError(t, err)

	count, err := db.CountEpisodes(ctx, "hank")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestPersistMessageIsIdempotentOnSameSessionAndSeq(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	msg := &store.Message{SessionID: "s1", Seq: 1, Role: "user", Text: "hi", Timestamp: time.Now()}
	require.NoError(t, db.PersistMessage(ctx, msg))
	require.NoError(t, db.PersistMessage(ctx, msg), "re-persisting the same session_id+seq must not error")

	var count int
	require.NoError(t, db.db.QueryRowContext(ctx, `SELECT count(*) FROM messages WHERE session_id = ?`, "s1").Scan(&count))
	assert.Equal(t, 1, count, "the ON CONFLICT DO NOTHING clause must prevent a duplicate row")
}

func TestPersistMessageWithinTransactionUsesSameConnection(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.Transaction(ctx, func(ctx context.Context, tx store.Driver) error {
		return tx.PersistMessage(ctx, &store.Message{SessionID: "s2", Seq: 1, Role: "user", Text: "hi", Timestamp: time.Now()})
	})
	require.NoError(t, err)

	var count int
	require.NoError(t, db.db.QueryRowContext(ctx, `SELECT count(*) FROM messages WHERE session_id = ?`, "s2").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestListUserIDsCoversAllTables(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.UpsertProfile(ctx, &store.UserProfile{UserID: "profile-only"}, 10))
	require.NoError(t, db.InsertEpisode(ctx, &store.Episode{EpisodeID: "e1", UserID: "episode-only", CreatedAt: time.Now(), LastAccessedAt: time.Now()}))
	require.NoError(t, db.UpsertFact(ctx, &store.Fact{FactID: "f1", UserID: "fact-only", Subject: "user", Predicate: "likes", Object: "tea"}))

	ids, err := db.ListUserIDs(ctx)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"profile-only", "episode-only", "fact-only"}, ids)
}
