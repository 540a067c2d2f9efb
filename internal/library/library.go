// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package library

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/seedlink/internal/cache"
	"github.com/ManuGH/seedlink/internal/linksign"
	"github.com/ManuGH/seedlink/internal/log"
	"github.com/ManuGH/seedlink/internal/metrics"
)

// Options configures a Library.
type Options struct {
	TTL              time.Duration
	RebuildTimeout   time.Duration
	FormatPreference []string
	Clock            func() time.Time
	Logger           zerolog.Logger
}

// Library is the read API over cached catalogs. Each category has its own
// cache slot; concurrent misses for one category share a single rebuild
// and a failed rebuild keeps serving the previous catalog.
type Library struct {
	indexer *Indexer
	memo    *cache.Memo[*Catalog]
	prefs   []string
	now     func() time.Time
	logger  zerolog.Logger

	mu      sync.Mutex
	lastErr map[Category]error
}

// New returns a Library over ix.
func New(ix *Indexer, opts Options) *Library {
	now := opts.Clock
	if now == nil {
		now = time.Now
	}
	l := &Library{
		indexer: ix,
		prefs:   append([]string(nil), opts.FormatPreference...),
		now:     now,
		logger:  opts.Logger.With().Str(log.FieldComponent, "library").Logger(),
		lastErr: make(map[Category]error),
	}
	l.memo = cache.NewMemo(
		func(ctx context.Context, key string) (*Catalog, error) {
			return ix.Rebuild(ctx, Category(key))
		},
		opts.TTL,
		cache.WithMemoClock(now),
		cache.WithLoadTimeout(opts.RebuildTimeout),
		cache.WithOnStale(l.onStale),
	)
	return l
}

func (l *Library) onStale(key string, err error) {
	l.logger.Warn().Err(err).
		Str(log.FieldEvent, "library.stale_serve").
		Str(log.FieldCategory, key).
		Msg("rebuild failed, serving previous catalog")
}

// Categories returns the configured categories.
func (l *Library) Categories() []Category { return l.indexer.Categories() }

// Catalog returns the cached snapshot for cat, rebuilding it when expired.
func (l *Library) Catalog(ctx context.Context, cat Category) (*Catalog, error) {
	if !l.indexer.Has(cat) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
	}

	r, err := l.memo.Get(ctx, string(cat))
	if err != nil {
		if ctx.Err() == nil {
			l.setErr(cat, err)
		}
		metrics.RecordCatalogCache(string(cat), "error", 0)
		return nil, err
	}

	outcome := "miss"
	switch {
	case r.Stale:
		outcome = "stale"
		l.setErr(cat, r.RefreshErr)
	case r.Hit:
		outcome = "hit"
	default:
		l.setErr(cat, nil)
	}
	metrics.RecordCatalogCache(string(cat), outcome, r.Age(l.now()))
	return r.Value, nil
}

// Groups lists the group keys of cat in display order.
func (l *Library) Groups(ctx context.Context, cat Category) ([]string, error) {
	c, err := l.Catalog(ctx, cat)
	if err != nil {
		return nil, err
	}
	return c.Groups(), nil
}

// Entries lists entries of every group whose key contains query.
func (l *Library) Entries(ctx context.Context, cat Category, query string) ([]Entry, error) {
	c, err := l.Catalog(ctx, cat)
	if err != nil {
		return nil, err
	}
	return c.Entries(query), nil
}

// Find returns the first entry for group and title.
func (l *Library) Find(ctx context.Context, cat Category, group, title string) (Entry, error) {
	c, err := l.Catalog(ctx, cat)
	if err != nil {
		return Entry{}, err
	}
	e, ok := c.Find(group, title)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s / %s", ErrNotFound, group, title)
	}
	return e, nil
}

// Preferred returns one file for group and title by the configured format
// preference.
func (l *Library) Preferred(ctx context.Context, cat Category, group, title string) (Entry, error) {
	c, err := l.Catalog(ctx, cat)
	if err != nil {
		return Entry{}, err
	}
	e, ok := c.Preferred(group, title, l.prefs)
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s / %s", ErrNotFound, group, title)
	}
	return e, nil
}

// Resolve finds the entry a link token refers to in the current catalog.
func (l *Library) Resolve(ctx context.Context, ref linksign.EntryRef) (Entry, error) {
	cat, err := ParseCategory(ref.Category)
	if err != nil {
		return Entry{}, err
	}
	c, err := l.Catalog(ctx, cat)
	if err != nil {
		return Entry{}, err
	}
	e, ok := c.Lookup(ref)
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// Invalidate forces the next read of cat to rebuild. The current catalog
// keeps being served if that rebuild fails.
func (l *Library) Invalidate(cat Category) {
	l.memo.Invalidate(string(cat))
}

// InvalidateAll invalidates every category.
func (l *Library) InvalidateAll() {
	l.memo.InvalidateAll()
}

// Refresh invalidates cat and waits for the rebuild.
func (l *Library) Refresh(ctx context.Context, cat Category) (*Catalog, error) {
	l.Invalidate(cat)
	return l.Catalog(ctx, cat)
}

// Status reports every configured category without triggering rebuilds.
func (l *Library) Status() []CategoryStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]CategoryStatus, 0, len(l.indexer.order))
	for _, cat := range l.indexer.order {
		st := CategoryStatus{Category: cat, Status: StatusNever}
		lastErr := l.lastErr[cat]
		if lastErr != nil {
			st.LastError = lastErr.Error()
		}
		r, ok := l.memo.Peek(string(cat))
		switch {
		case ok && lastErr != nil:
			st.Status = StatusDegraded
		case ok:
			st.Status = StatusOK
		case lastErr != nil:
			st.Status = StatusFailed
		}
		if ok {
			st.Entries = r.Value.Len()
			st.Groups = len(r.Value.groups)
			st.BuiltAt = r.Value.BuiltAt()
		}
		out = append(out, st)
	}
	return out
}

func (l *Library) setErr(cat Category, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err == nil {
		delete(l.lastErr, cat)
		return
	}
	l.lastErr[cat] = err
}
