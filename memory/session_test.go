package memory

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caihaoran-00/memchr/store"
)

func TestRingDropsOldestBeyondCapacity(t *testing.T) {
	r := newRing(2)
	r.add(store.Message{Text: "one"})
	r.add(store.Message{Text: "two"})
	r.add(store.Message{Text: "three"})

	snap := r.snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "two", snap[0].Text)
	assert.Equal(t, "three", snap[1].Text)
}

func TestRingZeroCapacityDefaultsToTen(t *testing.T) {
	r := newRing(0)
	assert.Equal(t, 10, r.capacity)
}

func TestRingSnapshotIsACopy(t *testing.T) {
	r := newRing(4)
	r.add(store.Message{Text: "one"})
	snap := r.snapshot()
	snap[0].Text = "mutated"

	assert.Equal(t, "one", r.snapshot()[0].Text)
}

func TestWorkingMemoryStartSupersedesPriorSessionForUser(t *testing.T) {
	wm := NewWorkingMemory(5, 0)
	defer wm.Close()

	first := wm.Start("s1", "alice")
	assert.Equal(t, "", first)

	prior := wm.Start("s2", "alice")
	assert.Equal(t, "s1", prior)

	active, ok := wm.ActiveSessionFor("alice")
	require.True(t, ok)
	assert.Equal(t, "s2", active)
}

func TestWorkingMemoryAddMessageOnUnknownSessionFails(t *testing.T) {
	wm := NewWorkingMemory(5, 0)
	defer wm.Close()

	_, ok := wm.AddMessage("ghost", "user", "hello")
	assert.False(t, ok)
}

func TestWorkingMemoryAddMessageAssignsMonotonicSeq(t *testing.T) {
	wm := NewWorkingMemory(5, 0)
	defer wm.Close()
	wm.Start("s1", "alice")

	m1, ok := wm.AddMessage("s1", "user", "hi")
	require.True(t, ok)
	m2, ok := wm.AddMessage("s1", "assistant", "hello")
	require.True(t, ok)

	assert.Equal(t, int64(1), m1.Seq)
	assert.Equal(t, int64(2), m2.Seq)
}

func TestWorkingMemoryEndFreezesAndRemovesSession(t *testing.T) {
	wm := NewWorkingMemory(5, 0)
	defer wm.Close()
	wm.Start("s1", "alice")
	wm.AddMessage("s1", "user", "hi")

	messages, session, ok := wm.End("s1")
	require.True(t, ok)
	assert.Equal(t, "alice", session.UserID)
	require.Len(t, messages, 1)

	_, _, ok = wm.End("s1")
	assert.False(t, ok, "ending an already-ended session must report unknown, never silently succeed")

	_, ok = wm.ActiveSessionFor("alice")
	assert.False(t, ok)
}

func TestWorkingMemoryEndClearsActiveOnlyIfStillCurrent(t *testing.T) {
	wm := NewWorkingMemory(5, 0)
	defer wm.Close()
	wm.Start("s1", "alice")
	wm.Start("s2", "alice") // supersedes s1 as the active session

	_, _, ok := wm.End("s1")
	require.True(t, ok)

	active, ok := wm.ActiveSessionFor("alice")
	require.True(t, ok, "ending the superseded session must not clear the newer active pointer")
	assert.Equal(t, "s2", active)
}

func TestWorkingMemoryIdleSweepEndsStaleSessionsAndInvokesCallback(t *testing.T) {
	wm := NewWorkingMemory(5, 20*time.Millisecond)
	defer wm.Close()

	var mu sync.Mutex
	var sawSessionID string
	wm.OnIdleTimeout(func(sessionID string, messages []store.Message, session store.Session) {
		mu.Lock()
		sawSessionID = sessionID
		mu.Unlock()
	})

	wm.Start("s1", "alice")
	wm.AddMessage("s1", "user", "hi")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return sawSessionID == "s1"
	}, time.Second, 5*time.Millisecond)

	_, ok := wm.ActiveSessionFor("alice")
	assert.False(t, ok)
}
