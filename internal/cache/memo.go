// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// LoadFunc computes the value for key. It receives a context detached from
// any single caller and bounded by the memo's load timeout.
type LoadFunc[V any] func(ctx context.Context, key string) (V, error)

// Result is a value served by Memo.Get.
type Result[V any] struct {
	Value      V
	ComputedAt time.Time
	// Hit is true when the value was served without running a load.
	Hit bool
	// Stale is true when a reload failed and the previous value was served.
	Stale bool
	// RefreshErr is the reload error behind a stale result.
	RefreshErr error
}

// Age returns how old the value is at now.
func (r Result[V]) Age(now time.Time) time.Duration {
	if r.ComputedAt.IsZero() {
		return 0
	}
	return now.Sub(r.ComputedAt)
}

// MemoOption configures a Memo.
type MemoOption func(*memoConfig)

type memoConfig struct {
	now         func() time.Time
	loadTimeout time.Duration
	onStale     func(key string, err error)
}

// WithMemoClock replaces time.Now.
func WithMemoClock(now func() time.Time) MemoOption {
	return func(c *memoConfig) { c.now = now }
}

// WithLoadTimeout bounds every load. Zero means unbounded.
func WithLoadTimeout(d time.Duration) MemoOption {
	return func(c *memoConfig) { c.loadTimeout = d }
}

// WithOnStale is called whenever a failed reload falls back to the previous value.
func WithOnStale(fn func(key string, err error)) MemoOption {
	return func(c *memoConfig) { c.onStale = fn }
}

type memoEntry[V any] struct {
	value      V
	computedAt time.Time
	invalid    bool
}

// Memo is a keyed TTL cache for values that are expensive to compute.
// Concurrent misses for one key share a single load; a failed reload keeps
// serving the previous value.
type Memo[V any] struct {
	load LoadFunc[V]
	ttl  time.Duration
	cfg  memoConfig

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]*memoEntry[V]
	// Invalidation counters. A load started at epoch e is outdated once
	// epochOf(key) moves past e.
	epochs   map[string]uint64
	epochAll uint64
}

// loaded is a refresh result tagged with the epoch its load started at.
type loaded[V any] struct {
	result Result[V]
	epoch  uint64
}

// NewMemo returns a memo with the given TTL. A value is expired once
// now - computedAt exceeds ttl.
func NewMemo[V any](load LoadFunc[V], ttl time.Duration, opts ...MemoOption) *Memo[V] {
	cfg := memoConfig{now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Memo[V]{
		load:    load,
		ttl:     ttl,
		cfg:     cfg,
		entries: make(map[string]*memoEntry[V]),
		epochs:  make(map[string]uint64),
	}
}

// Get returns the value for key, loading it when missing, expired or
// invalidated. The caller's ctx only bounds its own wait; an in-flight load
// keeps running for the other waiters when a caller leaves. A caller never
// receives a load that started before an invalidation it observed.
func (m *Memo[V]) Get(ctx context.Context, key string) (Result[V], error) {
	if r, ok := m.fresh(key); ok {
		return r, nil
	}
	m.mu.Lock()
	want := m.epochOf(key)
	m.mu.Unlock()

	for {
		ch := m.group.DoChan(key, func() (any, error) {
			return m.refresh(ctx, key)
		})

		select {
		case <-ctx.Done():
			return Result[V]{}, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				return Result[V]{}, res.Err
			}
			l := res.Val.(loaded[V])
			if l.epoch < want {
				continue
			}
			return l.result, nil
		}
	}
}

// Peek returns the current value without loading, fresh or not.
func (m *Memo[V]) Peek(key string) (Result[V], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		return Result[V]{}, false
	}
	return Result[V]{Value: e.value, ComputedAt: e.computedAt, Hit: true}, true
}

// Invalidate marks key for reload on the next Get. The current value stays
// available for stale-serve. An in-flight load is not interrupted, but its
// result is stored as already invalid.
func (m *Memo[V]) Invalidate(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epochs[key]++
	if e, ok := m.entries[key]; ok {
		e.invalid = true
	}
}

// InvalidateAll marks every key for reload.
func (m *Memo[V]) InvalidateAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epochAll++
	for _, e := range m.entries {
		e.invalid = true
	}
}

// TTL returns the configured time to live.
func (m *Memo[V]) TTL() time.Duration { return m.ttl }

func (m *Memo[V]) epochOf(key string) uint64 {
	return m.epochs[key] + m.epochAll
}

func (m *Memo[V]) fresh(key string) (Result[V], bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok || e.invalid || m.cfg.now().Sub(e.computedAt) > m.ttl {
		return Result[V]{}, false
	}
	return Result[V]{Value: e.value, ComputedAt: e.computedAt, Hit: true}, true
}

func (m *Memo[V]) refresh(parent context.Context, key string) (loaded[V], error) {
	ctx := context.WithoutCancel(parent)
	if m.cfg.loadTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.loadTimeout)
		defer cancel()
	}

	m.mu.Lock()
	start := m.epochOf(key)
	m.mu.Unlock()

	v, err := m.load(ctx, key)

	m.mu.Lock()
	if err != nil {
		prev, ok := m.entries[key]
		if !ok {
			m.mu.Unlock()
			return loaded[V]{}, err
		}
		r := Result[V]{Value: prev.value, ComputedAt: prev.computedAt, Stale: true, RefreshErr: err}
		m.mu.Unlock()
		if m.cfg.onStale != nil {
			m.cfg.onStale(key, err)
		}
		return loaded[V]{result: r, epoch: start}, nil
	}

	now := m.cfg.now()
	m.entries[key] = &memoEntry[V]{value: v, computedAt: now, invalid: m.epochOf(key) != start}
	m.mu.Unlock()
	return loaded[V]{result: Result[V]{Value: v, ComputedAt: now}, epoch: start}, nil
}
