// Package extract turns a session's message sequence into a structured
// summary, keywords, emotion, importance score, candidate facts, and a
// profile delta. Both variants are pure: neither touches storage, which is
// the Manager's job once it has a result to commit.
package extract

import (
	"context"

	"github.com/caihaoran-00/memchr/store"
)

// ProfileDelta is the set of profile fields an extraction observed. Fields
// left nil were not observed in this session and must not overwrite the
// persisted profile.
type ProfileDelta struct {
	Name    *string
	Age     *int
	Gender  *string
	AddTags []string
}

// CandidateFact is a pre-persistence Fact: no FactID/timestamps assigned
// yet, those are stamped by the Manager at commit time.
type CandidateFact struct {
	Subject    string
	Predicate  string
	Object     string
	Confidence float64
}

// Result is the output contract both extraction variants produce.
type Result struct {
	Summary      string
	Keywords     []string
	Emotion      string
	Importance   float64
	Facts        []CandidateFact
	ProfileDelta ProfileDelta
}

// Extractor is the contract the Manager calls at session end.
type Extractor interface {
	Extract(ctx context.Context, messages []store.Message, userID string) (*Result, error)
}

// clipImportance enforces the [0,1] invariant on a raw importance score,
// shared by both variants.
func clipImportance(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
