// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// SPDX-License-Identifier: MIT

// Package cache provides the TTL stores used by seedlink: a keyed
// single-flight memo for expensive computed values (catalogs) and a plain
// expiring key/value store with eviction callbacks (transcode output index).
package cache

import (
	"sync"
	"time"
)

// Cache provides thread-safe caching with expiration support.
type Cache interface {
	// Get retrieves a value from the cache. Returns false if not found or expired.
	Get(key string) (any, bool)
	// Set stores a value with the specified TTL, evicting any previous value.
	Set(key string, value any, ttl time.Duration)
	// Delete evicts a value.
	Delete(key string)
	// Clear evicts all values.
	Clear()
	// Stats returns cache statistics.
	Stats() CacheStats
	// Close stops the background janitor. The cache stays usable.
	Close()
}

// CacheStats holds cache performance metrics.
type CacheStats struct {
	Hits        int64 // Number of successful Get operations
	Misses      int64 // Number of failed Get operations (not found or expired)
	Sets        int64 // Number of Set operations
	Evictions   int64 // Number of entries removed by expiry, Delete, Clear or replacement
	CurrentSize int   // Current number of cached entries
}

// EvictFunc is called once for every value that leaves the cache. It runs
// outside the cache lock.
type EvictFunc func(key string, value any)

// Option configures a memory cache.
type Option func(*memoryCache)

// WithOnEvict registers the eviction callback.
func WithOnEvict(fn EvictFunc) Option {
	return func(c *memoryCache) { c.onEvict = fn }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *memoryCache) { c.now = now }
}

type entry struct {
	value      any
	expiration time.Time
}

func (e *entry) expiredAt(now time.Time) bool {
	return now.After(e.expiration)
}

type evicted struct {
	key   string
	value any
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*entry
	stats   CacheStats
	now     func() time.Time
	onEvict EvictFunc
	janitor *janitor
}

// NewMemoryCache creates a new in-memory cache with automatic cleanup.
// The cleanupInterval determines how often expired entries are removed;
// zero disables the janitor and expired entries are evicted lazily on Get.
func NewMemoryCache(cleanupInterval time.Duration, opts ...Option) Cache {
	c := &memoryCache{
		entries: make(map[string]*entry),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}

	if cleanupInterval > 0 {
		c.janitor = &janitor{
			interval: cleanupInterval,
			stop:     make(chan struct{}),
			done:     make(chan struct{}),
		}
		go c.janitor.run(c)
	}

	return c
}

func (c *memoryCache) Get(key string) (any, bool) {
	c.mu.Lock()
	e, found := c.entries[key]
	if !found {
		c.stats.Misses++
		c.mu.Unlock()
		return nil, false
	}
	if e.expiredAt(c.now()) {
		delete(c.entries, key)
		c.stats.Misses++
		c.stats.Evictions++
		c.mu.Unlock()
		c.notify([]evicted{{key, e.value}})
		return nil, false
	}
	c.stats.Hits++
	c.mu.Unlock()
	return e.value, true
}

func (c *memoryCache) Set(key string, value any, ttl time.Duration) {
	c.mu.Lock()
	var gone []evicted
	if prev, ok := c.entries[key]; ok {
		gone = append(gone, evicted{key, prev.value})
		c.stats.Evictions++
	}
	c.entries[key] = &entry{
		value:      value,
		expiration: c.now().Add(ttl),
	}
	c.stats.Sets++
	c.mu.Unlock()
	c.notify(gone)
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	e, ok := c.entries[key]
	if ok {
		delete(c.entries, key)
		c.stats.Evictions++
	}
	c.mu.Unlock()
	if ok {
		c.notify([]evicted{{key, e.value}})
	}
}

func (c *memoryCache) Clear() {
	c.mu.Lock()
	gone := make([]evicted, 0, len(c.entries))
	for k, e := range c.entries {
		gone = append(gone, evicted{k, e.value})
	}
	c.stats.Evictions += int64(len(gone))
	c.entries = make(map[string]*entry)
	c.mu.Unlock()
	c.notify(gone)
}

func (c *memoryCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.CurrentSize = len(c.entries)
	return stats
}

// deleteExpired removes all expired entries from the cache.
// Returns the number of entries deleted.
func (c *memoryCache) deleteExpired() int {
	c.mu.Lock()
	now := c.now()
	var gone []evicted
	for key, e := range c.entries {
		if e.expiredAt(now) {
			delete(c.entries, key)
			gone = append(gone, evicted{key, e.value})
		}
	}
	c.stats.Evictions += int64(len(gone))
	c.mu.Unlock()

	c.notify(gone)
	return len(gone)
}

func (c *memoryCache) notify(gone []evicted) {
	if c.onEvict == nil {
		return
	}
	for _, g := range gone {
		c.onEvict(g.key, g.value)
	}
}

func (c *memoryCache) Close() {
	if c.janitor != nil {
		c.janitor.once.Do(func() { close(c.janitor.stop) })
		<-c.janitor.done
	}
}

// janitor performs periodic cleanup of expired entries.
type janitor struct {
	interval time.Duration
	stop     chan struct{}
	done     chan struct{}
	once     sync.Once
}

func (j *janitor) run(c *memoryCache) {
	defer close(j.done)
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.deleteExpired()
		case <-j.stop:
			return
		}
	}
}

type noOpCache struct{}

// NewNoOpCache creates a cache that doesn't cache anything. Used when the
// transcode output cache is disabled.
func NewNoOpCache() Cache {
	return noOpCache{}
}

func (noOpCache) Get(string) (any, bool) { return nil, false }
func (noOpCache) Set(string, any, time.Duration) {}
func (noOpCache) Delete(string) {}
func (noOpCache) Clear() {}
func (noOpCache) Stats() CacheStats { return CacheStats{} }
func (noOpCache) Close() {}
