package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestMemoryStore_SetGetExpire(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	s := NewMemoryStore().WithClock(clock.Now)

	require.NoError(t, s.Set(ctx, "k", []byte("v"), time.Minute))

	got, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), got)

	clock.Advance(time.Minute)

	_, err = s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryStore_SetNX(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	s := NewMemoryStore().WithClock(clock.Now)

	ok, err := s.SetNX(ctx, "lock", []byte("a"), time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _ = s.SetNX(ctx, "lock", []byte("b"), time.Second)
	assert.False(t, ok, "second SetNX must fail while key is alive")

	clock.Advance(time.Second)

	ok, _ = s.SetNX(ctx, "lock", []byte("c"), time.Second)
	assert.True(t, ok, "SetNX must succeed after expiry")
}

func TestMemoryStore_CompareAndDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.Set(ctx, "lock", []byte("token-1"), time.Minute)

	ok, err := s.CompareAndDelete(ctx, "lock", []byte("token-2"))
	require.NoError(t, err)
	assert.False(t, ok)

	exists, _ := s.Exists(ctx, "lock")
	assert.True(t, exists)

	ok, _ = s.CompareAndDelete(ctx, "lock", []byte("token-1"))
	assert.True(t, ok)

	exists, _ = s.Exists(ctx, "lock")
	assert.False(t, exists)
}

func TestMemoryStore_DeletePattern(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	s.Set(ctx, StockKey("pos", "r1", "p1"), []byte("1"), time.Minute)
	s.Set(ctx, StockKey("pos", "r1", "p2"), []byte("2"), time.Minute)
	s.Set(ctx, StockKey("pos", "r2", "p1"), []byte("3"), time.Minute)
	s.Set(ctx, CriticalStockKey("pos", "r1", "p1"), []byte("4"), time.Minute)

	n, err := s.DeletePattern(ctx, StockPattern("pos", "r1"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2, s.Len())
}

func TestMemoryStore_IncrTTLMGet(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	s := NewMemoryStore().WithClock(clock.Now)

	n, _ := s.Incr(ctx, "counter")
	assert.Equal(t, int64(1), n)
	n, _ = s.Incr(ctx, "counter")
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.Expire(ctx, "counter", 10*time.Second))
	clock.Advance(4 * time.Second)

	ttl, err := s.TTL(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, 6*time.Second, ttl)

	_, err = s.TTL(ctx, "missing")
	assert.ErrorIs(t, err, ErrMiss)

	require.NoError(t, s.MSet(ctx, []Entry{
		{Key: "a", Value: []byte("1"), TTL: time.Minute},
		{Key: "b", Value: []byte("2"), TTL: time.Minute},
	}))
	vals, err := s.MGet(ctx, "a", "missing", "b")
	require.NoError(t, err)
	assert.Equal(t, [][]byte{[]byte("1"), nil, []byte("2")}, vals)
}
