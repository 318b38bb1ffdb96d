package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetrievalCacheGetSetRoundTrip(t *testing.T) {
	c := NewRetrievalCache[string, int](4, time.Minute)
	c.Set("a", 1)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = c.Get("missing")
	assert.False(t, ok)
}

func TestRetrievalCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := NewRetrievalCache[string, int](2, time.Minute)
	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a") // touch a, making b the LRU entry
	c.Set("c", 3)

	_, ok := c.Get("b")
	assert.False(t, ok, "b should have been evicted as least-recently-used")

	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
}

func TestRetrievalCacheExpiresEntriesByTTL(t *testing.T) {
	c := NewRetrievalCache[string, int](4, -time.Nanosecond)
	// A non-positive TTL is clamped to one minute by NewRetrievalCache, so
	// simulate an already-expired entry directly instead.
	c.Set("a", 1)
	c.mu.Lock()
	el := c.items["a"]
	el.Value.(*cacheEntry[string, int]).expiresAt = time.Now().Add(-time.Second)
	c.mu.Unlock()

	_, ok := c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestRetrievalCacheInvalidateUserRemovesMatching(t *testing.T) {
	type key struct {
		userID string
		query  string
	}
	c := NewRetrievalCache[key, string](8, time.Minute)
	c.Set(key{"alice", "q1"}, "r1")
	c.Set(key{"alice", "q2"}, "r2")
	c.Set(key{"bob", "q1"}, "r3")

	removed := c.InvalidateUser(func(k key) bool { return k.userID == "alice" })
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, c.Len())

	_, ok := c.Get(key{"bob", "q1"})
	assert.True(t, ok)
}

func TestRetrievalCacheSetOverwritesAndRefreshesExisting(t *testing.T) {
	c := NewRetrievalCache[string, int](4, time.Minute)
	c.Set("a", 1)
	c.Set("a", 2)

	v, ok := c.Get("a")
	assert.True(t, ok)
	assert.Equal(t, 2, v)
	assert.Equal(t, 1, c.Len())
}
