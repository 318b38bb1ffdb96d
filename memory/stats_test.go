package memory

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caihaoran-00/memchr/store"
)

func TestStatsCountsEpisodesFactsAndTags(t *testing.T) {
	mgr, driver := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, driver.UpsertProfile(ctx, &store.UserProfile{UserID: "alice", Tags: []string{"a", "b"}}, 10))
	require.NoError(t, driver.InsertEpisode(ctx, &store.Episode{
		EpisodeID: uuid.NewString(), UserID: "alice", Importance: 0.5,
		CreatedAt: time.Now(), LastAccessedAt: time.Now(),
	}))
	require.NoError(t, driver.UpsertFact(ctx, &store.Fact{
		FactID: uuid.NewString(), UserID: "alice", Subject: "user", Predicate: "likes", Object: "tea",
	}))

	stats, err := mgr.Stats(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.EpisodeCount)
	assert.Equal(t, 1, stats.FactCount)
	assert.Equal(t, 2, stats.ProfileTagCount)
}

func TestStatsHistogramBucketsFreshEpisodeNearTop(t *testing.T) {
	mgr, driver := newTestManager(t)
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, driver.InsertEpisode(ctx, &store.Episode{
		EpisodeID: uuid.NewString(), UserID: "bob", Importance: 1.0, AccessCount: 10,
		CreatedAt: now, LastAccessedAt: now,
	}))

	stats, err := mgr.Stats(ctx, "bob")
	require.NoError(t, err)

	total := 0
	for _, n := range stats.StrengthHistogram {
		total += n
	}
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, stats.StrengthHistogram[9], "a fresh, maximally-important, fully-accessed episode should land in the top bucket")
}

func TestStatsOnUnknownUserReturnsZeroedStats(t *testing.T) {
	mgr, _ := newTestManager(t)
	stats, err := mgr.Stats(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Equal(t, 0, stats.EpisodeCount)
	assert.Equal(t, 0, stats.FactCount)
	assert.Equal(t, 0, stats.ProfileTagCount)
}
