// Package retrieve ranks episodes and facts by relevance to a query, in
// either keyword mode (default, always available) or vector mode (backed
// by an embedded chromem-go collection, enabled per Config).
package retrieve

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/caihaoran-00/memchr/memory/extract"
	"github.com/caihaoran-00/memchr/store"
)

// Result is Retrieve's output: the episodes and facts judged relevant to
// the query, already access-bumped as a side effect of being returned.
type Result struct {
	Episodes []store.Episode
	Facts    []store.Fact
}

// Limits bounds one Retrieve call.
type Limits struct {
	MaxEpisodes int
	MaxFacts    int
}

// Retriever is the component the Manager calls on every GetMemoryContext.
type Retriever struct {
	store           *store.Store
	memoryDecayDays int
	language        string
	enableVector    bool
	similarityThresh float64
	vector          *vectorIndex
	logger          *slog.Logger
}

// Option configures a Retriever at construction.
type Option func(*Retriever)

// WithVectorSearch enables vector mode backed by an embedded chromem-go
// collection of the given dimensionality.
func WithVectorSearch(dim int, similarityThreshold float64) Option {
	return func(r *Retriever) {
		r.enableVector = true
		r.similarityThresh = similarityThreshold
		r.vector = newVectorIndex(dim)
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Retriever) { r.logger = logger }
}

// New builds a Retriever. language selects the tokenizer used to split
// incoming queries into terms (see extract.Tokenize) so query terms and
// episode keywords are cut at matching granularity — it must match the
// language the Manager's extractor tags keywords with, or keyword-overlap
// scoring silently stops matching for that language's scripts.
func New(st *store.Store, memoryDecayDays int, language string, opts ...Option) *Retriever {
	if language == "" {
		language = "en"
	}
	r := &Retriever{store: st, memoryDecayDays: memoryDecayDays, language: language, logger: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve ranks and returns episodes/facts for userID relevant to query.
// An empty query returns the strongest episodes and the most confident
// facts instead of scoring against terms. The returned episodes have
// already had access_count/last_accessed_at bumped in storage.
func (r *Retriever) Retrieve(ctx context.Context, userID, query string, limits Limits) (*Result, error) {
	if limits.MaxEpisodes <= 0 {
		limits.MaxEpisodes = 5
	}
	if limits.MaxFacts <= 0 {
		limits.MaxFacts = 5
	}

	episodes, err := r.store.ListEpisodes(ctx, userID, store.EpisodeFilter{OrderBy: store.OrderByRecentDesc})
	if err != nil {
		return nil, err
	}
	facts, err := r.store.ListFacts(ctx, userID, nil)
	if err != nil {
		return nil, err
	}

	var rankedEpisodes []store.Episode
	if strings.TrimSpace(query) == "" {
		rankedEpisodes = rankByStrength(episodes, r.memoryDecayDays)
	} else if r.enableVector {
		rankedEpisodes, err = r.retrieveVector(ctx, userID, query, episodes)
		if err != nil {
			r.logger.Warn("vector retrieval failed, falling back to keyword mode", "error", err)
			rankedEpisodes = rankByKeyword(episodes, query, r.language, r.memoryDecayDays)
		}
	} else {
		rankedEpisodes = rankByKeyword(episodes, query, r.language, r.memoryDecayDays)
	}

	if len(rankedEpisodes) > limits.MaxEpisodes {
		rankedEpisodes = rankedEpisodes[:limits.MaxEpisodes]
	}

	rankedFacts := rankFacts(facts, query, r.language, r.memoryDecayDays)
	if len(rankedFacts) > limits.MaxFacts {
		rankedFacts = rankedFacts[:limits.MaxFacts]
	}

	now := time.Now()
	for i := range rankedEpisodes {
		if err := r.store.UpdateEpisodeAccess(ctx, rankedEpisodes[i].EpisodeID, now); err != nil {
			r.logger.Warn("failed to bump episode access", "episode_id", rankedEpisodes[i].EpisodeID, "error", err)
			continue
		}
		rankedEpisodes[i].AccessCount++
		rankedEpisodes[i].LastAccessedAt = now
	}

	return &Result{Episodes: rankedEpisodes, Facts: rankedFacts}, nil
}

// IndexEpisode adds or refreshes an episode's vector-mode embedding. A
// no-op when vector mode is disabled. Called by the Manager right after
// InsertEpisode so the vector index never lags storage.
func (r *Retriever) IndexEpisode(ctx context.Context, ep store.Episode) error {
	if !r.enableVector {
		return nil
	}
	return r.vector.upsert(ctx, ep)
}

func recencyFactor(t time.Time, decayDays int) float64 {
	if decayDays <= 0 {
		decayDays = 30
	}
	days := time.Since(t).Hours() / 24
	f := 1 - days/float64(decayDays)
	if f < 0 {
		return 0
	}
	return f
}

func keywordOverlap(episodeKeywords []string, queryTerms map[string]bool) float64 {
	if len(episodeKeywords) == 0 || len(queryTerms) == 0 {
		return 0
	}
	hits := 0
	for _, kw := range episodeKeywords {
		if queryTerms[strings.ToLower(kw)] {
			hits++
		}
	}
	return float64(hits) / float64(len(episodeKeywords))
}

// queryTermSet tokenizes query with the same per-script splitting
// extract.Tokenize uses for episode keyword extraction (per-rune for Han
// script, word-boundary for everything else), so a query term and an
// episode keyword referring to the same thing compare at matching
// granularity. Using strings.Fields here would glue unspaced CJK text into
// one whole-string term that can never match per-rune keywords.
func queryTermSet(query, language string) map[string]bool {
	terms := make(map[string]bool)
	for _, t := range extract.Tokenize(query, language) {
		terms[t] = true
	}
	return terms
}

func rankByKeyword(episodes []store.Episode, query, language string, decayDays int) []store.Episode {
	terms := queryTermSet(query, language)
	type scored struct {
		ep    store.Episode
		score float64
	}
	ranked := make([]scored, 0, len(episodes))
	for _, ep := range episodes {
		score := 0.6*keywordOverlap(ep.Keywords, terms) + 0.4*recencyFactor(ep.LastAccessedAt, decayDays)
		ranked = append(ranked, scored{ep: ep, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]store.Episode, len(ranked))
	for i, s := range ranked {
		out[i] = s.ep
	}
	return out
}

func rankByStrength(episodes []store.Episode, decayDays int) []store.Episode {
	type scored struct {
		ep    store.Episode
		score float64
	}
	ranked := make([]scored, 0, len(episodes))
	for _, ep := range episodes {
		timeFactor := recencyFactor(ep.LastAccessedAt, decayDays)
		accessFactor := min1(float64(ep.AccessCount) / 10)
		strength := ep.Importance * (0.7*timeFactor + 0.3*accessFactor)
		ranked = append(ranked, scored{ep: ep, score: strength})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]store.Episode, len(ranked))
	for i, s := range ranked {
		out[i] = s.ep
	}
	return out
}

func rankFacts(facts []store.Fact, query, language string, decayDays int) []store.Fact {
	terms := queryTermSet(query, language)
	type scored struct {
		fact  store.Fact
		score float64
	}
	ranked := make([]scored, 0, len(facts))
	for _, f := range facts {
		score := f.Confidence * recencyFactor(f.LastSeenAt, decayDays)
		if len(terms) > 0 && !matchesAnyTerm(f, terms) {
			score *= 0.5 // de-prioritize, but don't drop: an empty-looking match set still ranks by confidence
		}
		ranked = append(ranked, scored{fact: f, score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	out := make([]store.Fact, len(ranked))
	for i, s := range ranked {
		out[i] = s.fact
	}
	return out
}

func matchesAnyTerm(f store.Fact, terms map[string]bool) bool {
	subj := strings.ToLower(f.Subject)
	obj := strings.ToLower(f.Object)
	for t := range terms {
		if strings.HasPrefix(subj, t) || strings.HasPrefix(obj, t) {
			return true
		}
	}
	return false
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}
