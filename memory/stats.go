package memory

import (
	"context"

	"github.com/caihaoran-00/memchr/internal/apperr"
	"github.com/caihaoran-00/memchr/memory/forget"
	"github.com/caihaoran-00/memchr/store"
)

// Stats is the /stats/{user_id} response body: raw counts plus a strength
// histogram bucketed in tenths.
type Stats struct {
	EpisodeCount      int
	FactCount         int
	ProfileTagCount   int
	StrengthHistogram [10]int // index i counts episodes with strength in [i/10, (i+1)/10)
}

// Stats computes userID's counts and episode-strength histogram without
// mutating anything (unlike Retrieve, it never bumps access_count).
func (m *Manager) Stats(ctx context.Context, userID string) (Stats, error) {
	episodes, err := m.st.ListEpisodes(ctx, userID, store.EpisodeFilter{})
	if err != nil {
		return Stats{}, apperr.StorageError(err, "ListEpisodes")
	}
	facts, err := m.st.ListFacts(ctx, userID, nil)
	if err != nil {
		return Stats{}, apperr.StorageError(err, "ListFacts")
	}
	profile, err := m.st.GetProfile(ctx, userID)
	if err != nil && !isNotFound(err) {
		return Stats{}, apperr.StorageError(err, "GetProfile")
	}

	stats := Stats{EpisodeCount: len(episodes), FactCount: len(facts)}
	if profile != nil {
		stats.ProfileTagCount = len(profile.Tags)
	}
	for _, ep := range episodes {
		strength := forget.Strength(ep, m.cfg.MemoryDecayDays, m.cfg.TimeDecayWeight, m.cfg.AccessCountWeight)
		bucket := int(strength * 10)
		if bucket < 0 {
			bucket = 0
		}
		if bucket > 9 {
			bucket = 9
		}
		stats.StrengthHistogram[bucket]++
	}
	return stats, nil
}
