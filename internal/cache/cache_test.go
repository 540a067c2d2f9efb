// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// SPDX-License-Identifier: MIT

package cache

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type evictLog struct {
	mu   sync.Mutex
	keys []string
}

func (l *evictLog) record(key string, _ any) {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
}

func (l *evictLog) sorted() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := append([]string(nil), l.keys...)
	sort.Strings(out)
	return out
}

func TestMemoryCache_GetSet(t *testing.T) {
	cache := NewMemoryCache(0)

	cache.Set("key1", "value1", 5*time.Minute)

	val, ok := cache.Get("key1")
	require.True(t, ok, "expected to find key1")
	assert.Equal(t, "value1", val)

	_, ok = cache.Get("nonexistent")
	assert.False(t, ok, "expected not to find nonexistent key")
}

func TestMemoryCache_Expiration(t *testing.T) {
	clock := newFakeClock()
	var evicted evictLog
	cache := NewMemoryCache(0, WithClock(clock.Now), WithOnEvict(evicted.record))

	cache.Set("shortlived", "value", time.Minute)

	val, ok := cache.Get("shortlived")
	require.True(t, ok)
	assert.Equal(t, "value", val)

	clock.Advance(time.Minute)
	_, ok = cache.Get("shortlived")
	assert.True(t, ok, "entry is valid up to and including its expiry instant")

	clock.Advance(time.Second)
	_, ok = cache.Get("shortlived")
	assert.False(t, ok, "expected key to be expired")
	assert.Equal(t, []string{"shortlived"}, evicted.sorted())
}

func TestMemoryCache_DeleteNotifies(t *testing.T) {
	var evicted evictLog
	cache := NewMemoryCache(0, WithOnEvict(evicted.record))

	cache.Set("key1", "value1", 5*time.Minute)
	cache.Delete("key1")
	cache.Delete("key1")

	_, ok := cache.Get("key1")
	assert.False(t, ok)
	assert.Equal(t, []string{"key1"}, evicted.sorted(), "second delete of a missing key must not notify")
}

func TestMemoryCache_SetReplacesAndNotifies(t *testing.T) {
	var evicted evictLog
	cache := NewMemoryCache(0, WithOnEvict(evicted.record))

	cache.Set("k", "old", time.Minute)
	cache.Set("k", "new", time.Minute)

	val, ok := cache.Get("k")
	require.True(t, ok)
	assert.Equal(t, "new", val)
	assert.Equal(t, []string{"k"}, evicted.sorted())
}

func TestMemoryCache_Clear(t *testing.T) {
	var evicted evictLog
	cache := NewMemoryCache(0, WithOnEvict(evicted.record))

	cache.Set("key1", "value1", 5*time.Minute)
	cache.Set("key2", "value2", 5*time.Minute)
	cache.Set("key3", "value3", 5*time.Minute)
	assert.Equal(t, 3, cache.Stats().CurrentSize)

	cache.Clear()

	assert.Equal(t, 0, cache.Stats().CurrentSize)
	assert.Equal(t, []string{"key1", "key2", "key3"}, evicted.sorted())
	_, ok := cache.Get("key1")
	assert.False(t, ok)
}

func TestMemoryCache_Stats(t *testing.T) {
	cache := NewMemoryCache(0)

	cache.Set("key1", "value1", 5*time.Minute)
	cache.Set("key2", "value2", 5*time.Minute)

	cache.Get("key1")        // Hit
	cache.Get("key1")        // Hit
	cache.Get("nonexistent") // Miss

	stats := cache.Stats()
	assert.Equal(t, int64(2), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(2), stats.Sets)
	assert.Equal(t, 2, stats.CurrentSize)
}

func TestMemoryCache_Janitor(t *testing.T) {
	clock := newFakeClock()
	var evicted evictLog
	cache := NewMemoryCache(10*time.Millisecond, WithClock(clock.Now), WithOnEvict(evicted.record))
	defer cache.Close()

	cache.Set("key1", "value1", time.Second)
	cache.Set("key2", "value2", time.Second)
	cache.Set("longLived", "value3", time.Hour)

	clock.Advance(2 * time.Second)

	require.Eventually(t, func() bool {
		return cache.Stats().CurrentSize == 1
	}, 2*time.Second, 10*time.Millisecond, "janitor should have removed expired entries")

	assert.Equal(t, []string{"key1", "key2"}, evicted.sorted())
	_, ok := cache.Get("longLived")
	assert.True(t, ok, "long-lived entry should still exist")
}

func TestMemoryCache_CloseIsIdempotent(t *testing.T) {
	cache := NewMemoryCache(time.Millisecond)
	cache.Close()
	cache.Close()

	cache.Set("k", "v", time.Minute)
	_, ok := cache.Get("k")
	assert.True(t, ok)
}

func TestMemoryCache_ConcurrentAccess(t *testing.T) {
	cache := NewMemoryCache(time.Minute)
	defer cache.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			cache.Set("key", i, 5*time.Minute)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			cache.Get("key")
		}
	}()
	wg.Wait()

	assert.Equal(t, int64(100), cache.Stats().Sets)
}

func TestNoOpCache(t *testing.T) {
	cache := NewNoOpCache()

	cache.Set("key", "value", 5*time.Minute)

	_, ok := cache.Get("key")
	assert.False(t, ok, "NoOpCache should never return values")

	cache.Delete("key")
	cache.Clear()
	cache.Close()

	assert.Equal(t, CacheStats{}, cache.Stats(), "NoOpCache stats should be empty")
}

func BenchmarkMemoryCache_Get(b *testing.B) {
	cache := NewMemoryCache(0)
	cache.Set("key", "value", 5*time.Minute)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cache.Get("key")
	}
}
