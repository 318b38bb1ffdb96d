// Package forget implements the decay-and-eviction policy: a scalar
// "strength" derived from importance, recency, and access frequency
// decides what survives RunForget, and hard per-user caps are enforced by
// EnforceCaps regardless of strength.
package forget

import (
	"context"
	"sort"

	"github.com/caihaoran-00/memchr/store"
)

// Forgetter applies the strength formula and the per-user caps. It is
// invoked by the Manager at the end of EndSession (after commit) and via
// the maintenance endpoint on demand.
type Forgetter struct {
	store              *store.Store
	memoryDecayDays    int
	minImportanceThresh float64
	timeDecayWeight    float64
	accessCountWeight  float64
	maxEpisodesPerUser int
	maxFactsPerUser    int
}

func New(st *store.Store, memoryDecayDays int, minImportanceThresh, timeDecayWeight, accessCountWeight float64, maxEpisodesPerUser, maxFactsPerUser int) *Forgetter {
	return &Forgetter{
		store:               st,
		memoryDecayDays:     memoryDecayDays,
		minImportanceThresh: minImportanceThresh,
		timeDecayWeight:     timeDecayWeight,
		accessCountWeight:   accessCountWeight,
		maxEpisodesPerUser:  maxEpisodesPerUser,
		maxFactsPerUser:     maxFactsPerUser,
	}
}

// Strength is the authoritative formula: importance weighted by a blend of
// time decay and access frequency. With the default weights (0.7/0.3),
// strength is bounded in [0, importance].
func Strength(ep store.Episode, memoryDecayDays int, timeDecayWeight, accessCountWeight float64) float64 {
	timeFactor := timeFactorOf(ep, memoryDecayDays)
	accessFactor := accessFactorOf(ep)
	return ep.Importance * (timeDecayWeight*timeFactor + accessCountWeight*accessFactor)
}

func timeFactorOf(ep store.Episode, memoryDecayDays int) float64 {
	if memoryDecayDays <= 0 {
		memoryDecayDays = 30
	}
	days := daysSince(ep.LastAccessedAt)
	f := 1 - days/float64(memoryDecayDays)
	if f < 0 {
		return 0
	}
	return f
}

func accessFactorOf(ep store.Episode) float64 {
	f := float64(ep.AccessCount) / 10
	if f > 1 {
		return 1
	}
	return f
}

// RunForget deletes every episode whose strength is below
// minImportanceThresh, and every fact whose confidence is below half that
// threshold. Returns the number of episodes and facts deleted.
func (f *Forgetter) RunForget(ctx context.Context, userID string) (episodesDeleted, factsDeleted int, err error) {
	episodes, err := f.store.ListEpisodes(ctx, userID, store.EpisodeFilter{})
	if err != nil {
		return 0, 0, err
	}
	for _, ep := range episodes {
		strength := Strength(ep, f.memoryDecayDays, f.timeDecayWeight, f.accessCountWeight)
		if strength < f.minImportanceThresh {
			if err := f.store.DeleteEpisode(ctx, ep.EpisodeID); err != nil {
				return episodesDeleted, factsDeleted, err
			}
			episodesDeleted++
		}
	}

	n, err := f.store.DeleteFactsBelow(ctx, userID, f.minImportanceThresh/2)
	if err != nil {
		return episodesDeleted, factsDeleted, err
	}
	factsDeleted = n
	return episodesDeleted, factsDeleted, nil
}

// EnforceCaps trims per-user episode/fact counts back within configured
// bounds regardless of strength, lowest-strength/lowest-confidence first.
// Ties on facts break on oldest last_seen_at.
func (f *Forgetter) EnforceCaps(ctx context.Context, userID string) (episodesDeleted, factsDeleted int, err error) {
	episodeCount, err := f.store.CountEpisodes(ctx, userID)
	if err != nil {
		return 0, 0, err
	}
	if episodeCount > f.maxEpisodesPerUser {
		episodes, err := f.store.ListEpisodes(ctx, userID, store.EpisodeFilter{})
		if err != nil {
			return 0, 0, err
		}
		sort.Slice(episodes, func(i, j int) bool {
			return Strength(episodes[i], f.memoryDecayDays, f.timeDecayWeight, f.accessCountWeight) <
				Strength(episodes[j], f.memoryDecayDays, f.timeDecayWeight, f.accessCountWeight)
		})
		toDelete := episodeCount - f.maxEpisodesPerUser
		for i := 0; i < toDelete && i < len(episodes); i++ {
			if err := f.store.DeleteEpisode(ctx, episodes[i].EpisodeID); err != nil {
				return episodesDeleted, factsDeleted, err
			}
			episodesDeleted++
		}
	}

	factCount, err := f.store.CountFacts(ctx, userID)
	if err != nil {
		return episodesDeleted, 0, err
	}
	if factCount > f.maxFactsPerUser {
		facts, err := f.store.ListFacts(ctx, userID, nil)
		if err != nil {
			return episodesDeleted, 0, err
		}
		sort.Slice(facts, func(i, j int) bool {
			if facts[i].Confidence != facts[j].Confidence {
				return facts[i].Confidence < facts[j].Confidence
			}
			return facts[i].LastSeenAt.Before(facts[j].LastSeenAt)
		})
		toDelete := factCount - f.maxFactsPerUser
		for i := 0; i < toDelete && i < len(facts); i++ {
			if err := f.store.DeleteFact(ctx, facts[i].FactID); err != nil {
				return episodesDeleted, factsDeleted, err
			}
			factsDeleted++
		}
	}

	return episodesDeleted, factsDeleted, nil
}
