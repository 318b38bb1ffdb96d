package memory

import (
	"context"
	"sync"
	"time"

	"github.com/caihaoran-00/memchr/store"
)

// ring is a fixed-capacity sliding window over the most recent messages of
// one session, guarded by its own mutex so concurrent AddMessage calls on
// different sessions never contend with each other.
type ring struct {
	mu       sync.Mutex
	messages []store.Message
	capacity int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 10
	}
	return &ring{messages: make([]store.Message, 0, capacity), capacity: capacity}
}

func (r *ring) add(msg store.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, msg)
	if len(r.messages) > r.capacity {
		r.messages = r.messages[len(r.messages)-r.capacity:]
	}
}

func (r *ring) snapshot() []store.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]store.Message, len(r.messages))
	copy(out, r.messages)
	return out
}

type sessionEntry struct {
	session      store.Session
	ring         *ring
	nextSeq      int64
	lastActivity time.Time
}

// WorkingMemory holds the ring buffer of every active session in RAM. It
// is the only place raw message text lives durably enough to survive
// until EndSession; Storage.PersistMessage is purely optional debug
// retention, never the source of truth for an active session.
//
// Two lock scopes: the map-level mutex guards session bookkeeping
// (create/lookup/delete) and is held exclusively by AddMessage while it
// stamps the seq and appends, so an append is ordered before or after End's
// removal; the per-session ring mutex guards the ring against concurrent
// snapshot reads.
type WorkingMemory struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry

	usersMu      sync.Mutex
	activeByUser map[string]string // user_id -> session_id

	ringCapacity int
	idleTimeout  time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	onIdleTimeout func(sessionID string, messages []store.Message, session store.Session)
}

// NewWorkingMemory builds working memory with a ring capacity of
// 2*workingMemorySize messages, matching the session ring-buffer size
// named in the data model.
func NewWorkingMemory(workingMemorySize int, idleTimeout time.Duration) *WorkingMemory {
	ctx, cancel := context.WithCancel(context.Background())
	wm := &WorkingMemory{
		sessions:     make(map[string]*sessionEntry),
		activeByUser: make(map[string]string),
		ringCapacity: 2 * workingMemorySize,
		idleTimeout:  idleTimeout,
		ctx:          ctx,
		cancel:       cancel,
	}
	if idleTimeout > 0 {
		wm.wg.Add(1)
		go wm.sweepLoop()
	}
	return wm
}

// OnIdleTimeout registers a callback invoked (outside any lock) when the
// idle sweep ends a session. Used by the Manager to run extraction on
// sessions abandoned mid-conversation rather than explicitly ended.
func (wm *WorkingMemory) OnIdleTimeout(fn func(sessionID string, messages []store.Message, session store.Session)) {
	wm.onIdleTimeout = fn
}

func (wm *WorkingMemory) Close() {
	wm.cancel()
	wm.wg.Wait()
}

// Start registers a new active session for userID, implicitly marking any
// prior active session for that user as superseded (the caller is
// responsible for ending it in storage; Start only updates the in-memory
// active pointer so a new StartSession always wins the race).
func (wm *WorkingMemory) Start(sessionID, userID string) (priorSessionID string) {
	wm.usersMu.Lock()
	prior := wm.activeByUser[userID]
	wm.activeByUser[userID] = sessionID
	wm.usersMu.Unlock()

	wm.mu.Lock()
	wm.sessions[sessionID] = &sessionEntry{
		session:      store.Session{SessionID: sessionID, UserID: userID, StartedAt: time.Now()},
		ring:         newRing(wm.ringCapacity),
		lastActivity: time.Now(),
	}
	wm.mu.Unlock()

	return prior
}

// ActiveSessionFor returns the currently active session id for userID, if
// any.
func (wm *WorkingMemory) ActiveSessionFor(userID string) (string, bool) {
	wm.usersMu.Lock()
	defer wm.usersMu.Unlock()
	id, ok := wm.activeByUser[userID]
	return id, ok
}

// AddMessage appends msg to sessionID's ring and stamps a monotonic seq.
// Returns false if the session is unknown (already ended), in which case
// the caller must surface apperr.UnknownSession rather than silently drop
// the message.
func (wm *WorkingMemory) AddMessage(sessionID string, role, text string) (store.Message, bool) {
	wm.mu.RLock()
	entry, ok := wm.sessions[sessionID]
	wm.mu.RUnlock()
	if !ok {
		return store.Message{}, false
	}

	wm.mu.Lock()
	defer wm.mu.Unlock()
	if wm.sessions[sessionID] != entry {
		return store.Message{}, false // ended since the lookup above
	}
	entry.nextSeq++
	seq := entry.nextSeq
	entry.lastActivity = time.Now()

	msg := store.Message{SessionID: sessionID, Role: role, Text: text, Timestamp: time.Now(), Seq: seq}
	entry.ring.add(msg)
	return msg, true
}

// UserIDFor returns the owning user id of an active session.
func (wm *WorkingMemory) UserIDFor(sessionID string) (string, bool) {
	wm.mu.RLock()
	defer wm.mu.RUnlock()
	entry, ok := wm.sessions[sessionID]
	if !ok {
		return "", false
	}
	return entry.session.UserID, true
}

// Messages returns a snapshot of sessionID's ring buffer.
func (wm *WorkingMemory) Messages(sessionID string) ([]store.Message, bool) {
	wm.mu.RLock()
	entry, ok := wm.sessions[sessionID]
	wm.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return entry.ring.snapshot(), true
}

// End freezes and removes sessionID from working memory, returning its
// final message snapshot for extraction. A second End call on the same
// session (or a concurrent AddMessage racing this one) observes the
// session as already gone, which is the "UnknownSession, never silently
// dropped" guarantee: the caller must check the bool.
func (wm *WorkingMemory) End(sessionID string) ([]store.Message, store.Session, bool) {
	wm.mu.Lock()
	entry, ok := wm.sessions[sessionID]
	if ok {
		delete(wm.sessions, sessionID)
	}
	wm.mu.Unlock()
	if !ok {
		return nil, store.Session{}, false
	}

	wm.usersMu.Lock()
	if wm.activeByUser[entry.session.UserID] == sessionID {
		delete(wm.activeByUser, entry.session.UserID)
	}
	wm.usersMu.Unlock()

	return entry.ring.snapshot(), entry.session, true
}

func (wm *WorkingMemory) sweepLoop() {
	defer wm.wg.Done()
	ticker := time.NewTicker(wm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-wm.ctx.Done():
			return
		case <-ticker.C:
			wm.sweepIdle()
		}
	}
}

func (wm *WorkingMemory) sweepIdle() {
	cutoff := time.Now().Add(-wm.idleTimeout)

	wm.mu.RLock()
	var stale []string
	for id, entry := range wm.sessions {
		if entry.lastActivity.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	wm.mu.RUnlock()

	for _, id := range stale {
		if messages, session, ok := wm.End(id); ok && wm.onIdleTimeout != nil {
			wm.onIdleTimeout(id, messages, session)
		}
	}
}
