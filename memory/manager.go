// Package memory implements the orchestration layer: session lifecycle,
// memory-context assembly, and the commit/forget sequence run at session
// end. It depends on store, extract, retrieve, forget, and llm but none of
// those packages depend back on it — config flows down, never up.
package memory

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"golang.org/x/sync/semaphore"

	"github.com/caihaoran-00/memchr/config"
	"github.com/caihaoran-00/memchr/internal/apperr"
	"github.com/caihaoran-00/memchr/memory/extract"
	"github.com/caihaoran-00/memchr/memory/forget"
	"github.com/caihaoran-00/memchr/memory/llm"
	"github.com/caihaoran-00/memchr/memory/retrieve"
	"github.com/caihaoran-00/memchr/store"
)

// MetricsRecorder is the narrow observability seam the Manager reports
// through. memory/metrics.go's Prometheus implementation satisfies it; nil
// is valid and every call is a no-op guard.
type MetricsRecorder interface {
	ObserveExtraction(variant string, duration time.Duration, err error)
	ObserveRetrieval(duration time.Duration, mode string)
	IncSessionsStarted()
	IncSessionsEnded(extracted bool)
	IncForgetSweep(episodesDeleted, factsDeleted int)
}

type cacheKey struct {
	userID    string
	queryHash string
}

// Manager is the module's single entry point: every public method here
// except Close corresponds 1:1 to an HTTP handler in server/.
type Manager struct {
	cfg *config.Config
	st  *store.Store
	wm  *WorkingMemory

	extractor extract.Extractor
	retriever *retrieve.Retriever
	forgetter *forget.Forgetter

	userLocks sync.Map // user_id -> *sync.Mutex, held briefly for active-session bookkeeping

	// concurrency bounds extraction and cleanup work: a weighted semaphore
	// sized by cfg.MaxConcurrency, acquired for the duration of one
	// extraction or one user's maintenance sweep.
	concurrency *semaphore.Weighted

	cache   *store.RetrievalCache[cacheKey, MemoryContext]
	logger  *slog.Logger
	metrics MetricsRecorder
}

// New assembles a Manager from cfg, wiring the LLM-backed extractor with a
// rule-based fallback, the retriever (vector mode if cfg.EnableVectorSearch),
// and the forgetter, all against st.
func New(cfg *config.Config, st *store.Store, llmClient llm.Client, metrics MetricsRecorder, logger *slog.Logger) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	ruleExtractor := extract.NewRuleExtractor(cfg.EpisodeSummaryMaxLen, cfg.Language)

	var extractor extract.Extractor = ruleExtractor
	if llmClient != nil && cfg.LLMProvider != "mock" {
		extractor = &extract.LLMExtractor{
			Client:        llmClient,
			Model:         cfg.LLMModel,
			SummaryMaxLen: cfg.EpisodeSummaryMaxLen,
			Fallback:      ruleExtractor,
		}
	}

	var retrieverOpts []retrieve.Option
	retrieverOpts = append(retrieverOpts, retrieve.WithLogger(logger))
	if cfg.EnableVectorSearch {
		retrieverOpts = append(retrieverOpts, retrieve.WithVectorSearch(cfg.VectorDim, cfg.SimilarityThreshold))
	}

	maxConcurrency := int64(cfg.MaxConcurrency)
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	m := &Manager{
		cfg:         cfg,
		st:          st,
		wm:          NewWorkingMemory(cfg.WorkingMemorySize, cfg.SessionIdleTimeout),
		extractor:   extractor,
		retriever:   retrieve.New(st, cfg.MemoryDecayDays, cfg.Language, retrieverOpts...),
		forgetter:   forget.New(st, cfg.MemoryDecayDays, cfg.MinImportanceThresh, cfg.TimeDecayWeight, cfg.AccessCountWeight, cfg.MaxEpisodesPerUser, cfg.MaxFactsPerUser),
		concurrency: semaphore.NewWeighted(maxConcurrency),
		logger:      logger,
		metrics:     metrics,
	}

	if cfg.EnableCache {
		m.cache = store.NewRetrievalCache[cacheKey, MemoryContext](cfg.CacheCapacity, cfg.CacheTTL)
	}

	m.wm.OnIdleTimeout(func(sessionID string, messages []store.Message, session store.Session) {
		extracted := countTurns(messages) >= m.cfg.EpisodeCompressThresh
		if m.metrics != nil {
			m.metrics.IncSessionsEnded(extracted)
		}
		if !extracted {
			return
		}
		if _, err := m.commitSession(context.Background(), session, messages); err != nil {
			m.logger.Warn("idle-timeout session commit failed", "session_id", sessionID, "error", err)
		}
	})

	return m, nil
}

func (m *Manager) userLock(userID string) *sync.Mutex {
	v, _ := m.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// StartSession begins a new session for userID, implicitly ending any
// prior active session first (best effort: extraction errors are logged,
// never propagated, since the caller is trying to start something new).
func (m *Manager) StartSession(ctx context.Context, userID string) (store.Session, error) {
	lock := m.userLock(userID)
	lock.Lock()
	priorID, hasPrior := m.wm.ActiveSessionFor(userID)
	lock.Unlock()

	if hasPrior {
		if _, err := m.EndSession(ctx, priorID); err != nil {
			m.logger.Warn("implicit end of prior session failed", "session_id", priorID, "error", err)
		}
	}

	sessionID := shortuuid.New()
	lock.Lock()
	m.wm.Start(sessionID, userID)
	lock.Unlock()

	if m.metrics != nil {
		m.metrics.IncSessionsStarted()
	}
	return store.Session{SessionID: sessionID, UserID: userID, StartedAt: time.Now()}, nil
}

// AddMessage appends one turn to sessionID's ring buffer. Never performs
// network or storage I/O, per the concurrency model's suspension-point
// rule.
func (m *Manager) AddMessage(ctx context.Context, sessionID, role, text string) error {
	if _, ok := m.wm.AddMessage(sessionID, role, text); !ok {
		return apperr.UnknownSession(sessionID)
	}
	return nil
}

// GetMemoryContext assembles profile + retrieved facts/episodes + the live
// working-memory slice for sessionID. An empty query defaults to the
// joined text of the session's recent user messages.
func (m *Manager) GetMemoryContext(ctx context.Context, sessionID, query string) (MemoryContext, error) {
	working, ok := m.wm.Messages(sessionID)
	if !ok {
		return MemoryContext{}, apperr.UnknownSession(sessionID)
	}

	userID, ok := m.wm.UserIDFor(sessionID)
	if !ok {
		return MemoryContext{}, apperr.UnknownSession(sessionID)
	}
	if strings.TrimSpace(query) == "" {
		query = joinUserMessages(working)
	}

	working = truncateWorkingSlice(working, m.cfg.WorkingMemoryMaxChars)

	if m.cache != nil {
		key := cacheKey{userID: userID, queryHash: hashQuery(query)}
		if cached, found := m.cache.Get(key); found {
			cached.WorkingSlice = working
			return cached, nil
		}
	}

	start := time.Now()
	profile, err := m.st.GetProfile(ctx, userID)
	if err != nil && !isNotFound(err) {
		return MemoryContext{}, apperr.StorageError(err, "GetProfile")
	}

	result, err := m.retriever.Retrieve(ctx, userID, query, retrieve.Limits{
		MaxEpisodes: m.cfg.MaxRetrievalResults,
		MaxFacts:    m.cfg.MaxRetrievalResults,
	})
	if err != nil {
		return MemoryContext{}, apperr.StorageError(err, "Retrieve")
	}
	if m.metrics != nil {
		mode := "keyword"
		if m.cfg.EnableVectorSearch {
			mode = "vector"
		}
		m.metrics.ObserveRetrieval(time.Since(start), mode)
	}

	memCtx := MemoryContext{Profile: profile, Facts: result.Facts, Episodes: result.Episodes}
	if m.cache != nil {
		m.cache.Set(cacheKey{userID: userID, queryHash: hashQuery(query)}, memCtx)
	}
	memCtx.WorkingSlice = working
	return memCtx, nil
}

// EndSession closes sessionID. Below episode_compress_threshold turns, no
// extraction runs and EndSession returns (nil, nil). Otherwise it runs the
// extraction+commit+forget sequence described in the component design and
// returns the committed episode.
func (m *Manager) EndSession(ctx context.Context, sessionID string) (*store.Episode, error) {
	messages, session, ok := m.wm.End(sessionID)
	if !ok {
		return nil, apperr.UnknownSession(sessionID)
	}

	if m.metrics != nil {
		defer func() { m.metrics.IncSessionsEnded(countTurns(messages) >= m.cfg.EpisodeCompressThresh) }()
	}

	if countTurns(messages) < m.cfg.EpisodeCompressThresh {
		return nil, nil
	}

	return m.commitSession(ctx, session, messages)
}

// commitSession runs extraction then the single storage transaction that
// upserts the profile, inserts the episode, and upserts facts, followed by
// EnforceCaps and RunForget. Shared by the explicit EndSession path and
// the idle-timeout sweep.
func (m *Manager) commitSession(ctx context.Context, session store.Session, messages []store.Message) (*store.Episode, error) {
	if err := m.concurrency.Acquire(ctx, 1); err != nil {
		return nil, apperr.CancelledError(err)
	}
	extractStart := time.Now()
	result, err := m.extractor.Extract(ctx, messages, session.UserID)
	m.concurrency.Release(1)
	if m.metrics != nil {
		m.metrics.ObserveExtraction(extractorVariant(m.extractor), time.Since(extractStart), err)
	}
	if err != nil {
		if apperr.Is(err, apperr.KindCancelledError) {
			return nil, err
		}
		m.logger.Warn("extraction failed, session closed without memory commit", "session_id", session.SessionID, "error", err)
		return nil, nil
	}

	now := time.Now()
	episode := store.Episode{
		EpisodeID:      uuid.NewString(),
		UserID:         session.UserID,
		Summary:        result.Summary,
		Keywords:       result.Keywords,
		Emotion:        result.Emotion,
		Importance:     result.Importance,
		AccessCount:    0,
		CreatedAt:      now,
		LastAccessedAt: now,
	}

	err = m.st.Transaction(ctx, func(ctx context.Context, tx store.Driver) error {
		if err := applyProfileDelta(ctx, tx, session.UserID, result.ProfileDelta, m.cfg.MaxProfileTags); err != nil {
			return err
		}
		if err := tx.InsertEpisode(ctx, &episode); err != nil {
			return err
		}
		for _, f := range result.Facts {
			fact := store.Fact{
				FactID:     uuid.NewString(),
				UserID:     session.UserID,
				Subject:    f.Subject,
				Predicate:  f.Predicate,
				Object:     f.Object,
				Confidence: f.Confidence,
				CreatedAt:  now,
				LastSeenAt: now,
			}
			if err := tx.UpsertFact(ctx, &fact); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, apperr.StorageError(err, "commitSession")
	}

	if err := m.retriever.IndexEpisode(ctx, episode); err != nil {
		m.logger.Warn("vector index update failed", "episode_id", episode.EpisodeID, "error", err)
	}

	if m.cache != nil {
		m.cache.InvalidateUser(func(k cacheKey) bool { return k.userID == session.UserID })
	}

	epDeleted, factDeleted, err := m.forgetter.EnforceCaps(ctx, session.UserID)
	if err != nil {
		m.logger.Warn("EnforceCaps failed after commit", "user_id", session.UserID, "error", err)
	}
	moreEp, moreFact, err := m.forgetter.RunForget(ctx, session.UserID)
	if err != nil {
		m.logger.Warn("RunForget failed after commit", "user_id", session.UserID, "error", err)
	}
	if m.metrics != nil {
		m.metrics.IncForgetSweep(epDeleted+moreEp, factDeleted+moreFact)
	}

	return &episode, nil
}

// RunMaintenanceForget runs the forgetting sweep for one user on demand,
// outside the EndSession flow, returning the total rows removed.
func (m *Manager) RunMaintenanceForget(ctx context.Context, userID string) (int, error) {
	epDeleted, factDeleted, err := m.forgetter.RunForget(ctx, userID)
	if err != nil {
		return 0, apperr.StorageError(err, "RunForget")
	}
	if m.cache != nil {
		m.cache.InvalidateUser(func(k cacheKey) bool { return k.userID == userID })
	}
	if m.metrics != nil {
		m.metrics.IncForgetSweep(epDeleted, factDeleted)
	}
	return epDeleted + factDeleted, nil
}

// RunMaintenanceCleanup iterates every known user and runs the forgetting
// sweep, bounded to cfg.MaxConcurrency sweeps in flight at once, returning
// the total rows removed across all of them.
func (m *Manager) RunMaintenanceCleanup(ctx context.Context) (int, error) {
	userIDs, err := m.st.ListUserIDs(ctx)
	if err != nil {
		return 0, apperr.StorageError(err, "ListUserIDs")
	}

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		total     int
		firstErr  error
	)
	for _, userID := range userIDs {
		if err := m.concurrency.Acquire(ctx, 1); err != nil {
			mu.Lock()
			if firstErr == nil {
				firstErr = apperr.CancelledError(err)
			}
			mu.Unlock()
			break
		}
		wg.Add(1)
		go func(userID string) {
			defer wg.Done()
			defer m.concurrency.Release(1)
			n, err := m.RunMaintenanceForget(ctx, userID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return
			}
			total += n
		}(userID)
	}
	wg.Wait()
	return total, firstErr
}

// GetProfile returns userID's persisted profile, or nil if none exists.
func (m *Manager) GetProfile(ctx context.Context, userID string) (*store.UserProfile, error) {
	p, err := m.st.GetProfile(ctx, userID)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, apperr.StorageError(err, "GetProfile")
	}
	return p, nil
}

// PutProfile overwrites userID's name, age and gender. Tags are not
// replaced: the driver merges the given tags onto the stored ones (a repeat
// moves to the most-recent position) and then applies the tag cap, so a
// tag already stored cannot be removed through PutProfile.
func (m *Manager) PutProfile(ctx context.Context, profile *store.UserProfile) error {
	if err := m.st.UpsertProfile(ctx, profile, m.cfg.MaxProfileTags); err != nil {
		return apperr.StorageError(err, "UpsertProfile")
	}
	if m.cache != nil {
		m.cache.InvalidateUser(func(k cacheKey) bool { return k.userID == profile.UserID })
	}
	return nil
}

// ExportUser bulk-reads everything persisted about userID.
func (m *Manager) ExportUser(ctx context.Context, userID string) (*store.ExportPayload, error) {
	profile, err := m.st.GetProfile(ctx, userID)
	if err != nil && !isNotFound(err) {
		return nil, apperr.StorageError(err, "GetProfile")
	}
	episodes, err := m.st.ListEpisodes(ctx, userID, store.EpisodeFilter{OrderBy: store.OrderByRecentDesc})
	if err != nil {
		return nil, apperr.StorageError(err, "ListEpisodes")
	}
	facts, err := m.st.ListFacts(ctx, userID, nil)
	if err != nil {
		return nil, apperr.StorageError(err, "ListFacts")
	}
	return &store.ExportPayload{UserID: userID, Profile: profile, Episodes: episodes, Facts: facts}, nil
}

// ImportUser upserts payload's profile/episodes/facts, preserving IDs, so
// re-importing into an empty store round-trips byte-for-byte under a
// subsequent ExportUser.
func (m *Manager) ImportUser(ctx context.Context, payload *store.ExportPayload) error {
	return m.st.Transaction(ctx, func(ctx context.Context, tx store.Driver) error {
		if payload.Profile != nil {
			if err := tx.UpsertProfile(ctx, payload.Profile, m.cfg.MaxProfileTags); err != nil {
				return err
			}
		}
		for i := range payload.Episodes {
			if err := tx.InsertEpisode(ctx, &payload.Episodes[i]); err != nil {
				return err
			}
		}
		for i := range payload.Facts {
			if err := tx.UpsertFact(ctx, &payload.Facts[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// Close stops the working-memory idle sweep goroutine.
func (m *Manager) Close() {
	m.wm.Close()
}

func applyProfileDelta(ctx context.Context, tx store.Driver, userID string, delta extract.ProfileDelta, maxTags int) error {
	existing, err := tx.GetProfile(ctx, userID)
	if err != nil && !isNotFound(err) {
		return err
	}

	profile := store.UserProfile{UserID: userID}
	if existing != nil {
		profile = *existing
	}
	if delta.Name != nil {
		profile.Name = *delta.Name
	}
	if delta.Age != nil {
		profile.Age = *delta.Age
	}
	if delta.Gender != nil {
		profile.Gender = *delta.Gender
	}
	profile.Tags = append(profile.Tags, delta.AddTags...)

	return tx.UpsertProfile(ctx, &profile, maxTags)
}

func countTurns(messages []store.Message) int {
	n := 0
	for _, m := range messages {
		if m.Role == "user" {
			n++
		}
	}
	return n
}

func joinUserMessages(messages []store.Message) string {
	var parts []string
	for _, m := range messages {
		if m.Role == "user" {
			parts = append(parts, m.Text)
		}
	}
	return strings.Join(parts, " ")
}

func hashQuery(query string) string {
	return fmt.Sprintf("%x", []byte(strings.ToLower(strings.TrimSpace(query))))
}

func extractorVariant(e extract.Extractor) string {
	if _, ok := e.(*extract.LLMExtractor); ok {
		return "llm"
	}
	return "rule"
}

func isNotFound(err error) bool {
	return err != nil && strings.Contains(err.Error(), "no rows")
}
