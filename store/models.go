// Package store defines the persisted data model and the Driver contract
// backing it, plus the Store facade that the memory package depends on.
package store

import "time"

// Message is one immutable turn of a session. Raw messages are always held
// in working memory; the Manager never writes them to durable storage
// (Driver.PersistMessage has no caller, and Config.PersistMessages is not
// read).
type Message struct {
	SessionID string    `json:"session_id"`
	Role      string    `json:"role"` // user | assistant | system
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
	Seq       int64     `json:"seq"`
}

// Session tracks the lifecycle of one active or ended conversation.
// The ring buffer of held messages lives in memory.WorkingMemory, not here;
// Message rows reach storage only through an explicit PersistMessage call.
type Session struct {
	SessionID string     `json:"session_id"`
	UserID    string     `json:"user_id"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

// Episode is the structured summary of one ended (or compressed) session.
type Episode struct {
	EpisodeID      string    `json:"episode_id"`
	UserID         string    `json:"user_id"`
	Summary        string    `json:"summary"`
	Keywords       []string  `json:"keywords"`
	Emotion        string    `json:"emotion"`
	Importance     float64   `json:"importance"`
	AccessCount    int       `json:"access_count"`
	CreatedAt      time.Time `json:"created_at"`
	LastAccessedAt time.Time `json:"last_accessed_at"`
}

// Fact is a subject-predicate-object triple scoped to a user.
type Fact struct {
	FactID     string    `json:"fact_id"`
	UserID     string    `json:"user_id"`
	Subject    string    `json:"subject"`
	Predicate  string    `json:"predicate"`
	Object     string    `json:"object"`
	Confidence float64   `json:"confidence"`
	CreatedAt  time.Time `json:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// UserProfile is the persisted identity/interest record for a user. Tags is
// ordered by insertion recency; duplicates coalesce to the most-recent
// position on upsert.
type UserProfile struct {
	UserID    string    `json:"user_id"`
	Name      string    `json:"name"`
	Age       int       `json:"age"`
	Gender    string    `json:"gender"`
	Tags      []string  `json:"tags"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EpisodeFilter narrows ListEpisodes.
type EpisodeFilter struct {
	Keywords  []string // match any
	Since     *time.Time
	Until     *time.Time
	OrderBy   EpisodeOrder
	Limit     int
}

// EpisodeOrder is the closed set of ListEpisodes orderings.
type EpisodeOrder int

const (
	OrderByImportanceDesc EpisodeOrder = iota
	OrderByRecentDesc
)

// EmotionTags is the closed emotion set the extractor and storage agree on.
var EmotionTags = []string{"happy", "sad", "neutral", "scared", "angry", "curious"}

// ExportPayload is the bulk read/write unit for ExportUser/ImportUser.
// IDs are preserved across export/import so that re-importing into an
// empty store round-trips byte-for-byte.
type ExportPayload struct {
	UserID   string       `json:"user_id"`
	Profile  *UserProfile `json:"profile,omitempty"`
	Episodes []Episode    `json:"episodes"`
	Facts    []Fact       `json:"facts"`
}
