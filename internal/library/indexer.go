// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package library

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/ManuGH/seedlink/internal/log"
	"github.com/ManuGH/seedlink/internal/metrics"
	"github.com/ManuGH/seedlink/internal/remote"
	"github.com/ManuGH/seedlink/internal/telemetry"
)

const tracerName = "seedlink/library"

// Root configures one category.
type Root struct {
	Category   Category
	Path       string
	Extensions []string
}

// Indexer rebuilds category catalogs from the remote source.
type Indexer struct {
	source remote.Source
	roots  map[Category]Root
	order  []Category
	now    func() time.Time
	logger zerolog.Logger
}

// NewIndexer returns an indexer over the given roots. Roots are served in
// the order given; a repeated category replaces the earlier root.
func NewIndexer(source remote.Source, roots []Root, logger zerolog.Logger) *Indexer {
	ix := &Indexer{
		source: source,
		roots:  make(map[Category]Root, len(roots)),
		now:    time.Now,
		logger: logger.With().Str(log.FieldComponent, "library").Logger(),
	}
	for _, r := range roots {
		if _, dup := ix.roots[r.Category]; !dup {
			ix.order = append(ix.order, r.Category)
		}
		ix.roots[r.Category] = r
	}
	return ix
}

// Categories returns the configured categories.
func (ix *Indexer) Categories() []Category {
	return append([]Category(nil), ix.order...)
}

// Has reports whether cat is configured.
func (ix *Indexer) Has(cat Category) bool {
	_, ok := ix.roots[cat]
	return ok
}

// Rebuild lists the category root and normalizes it into a new catalog.
// It either returns a complete catalog or an error; never a partial one.
func (ix *Indexer) Rebuild(ctx context.Context, cat Category) (_ *Catalog, err error) {
	root, ok := ix.roots[cat]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, cat)
	}

	ctx, span := telemetry.Start(ctx, tracerName, "library.rebuild",
		attribute.String(telemetry.LibraryCategoryKey, string(cat)))
	start := time.Now()
	var entries, skipped int
	defer func() {
		metrics.RecordCatalogRebuild(string(cat), time.Since(start), entries, skipped, err)
		span.SetAttributes(telemetry.CatalogAttributes(string(cat), entries, skipped)...)
		telemetry.End(span, err)
	}()

	logger := ix.logger.With().Str(log.FieldCategory, string(cat)).Logger()

	listing, err := ix.source.ListTree(ctx, root.Path)
	if err != nil {
		logger.Warn().Err(err).
			Str(log.FieldEvent, "library.rebuild_failed").
			Str(log.FieldRoot, root.Path).
			Dur(log.FieldDuration, time.Since(start)).
			Msg("catalog rebuild failed")
		return nil, fmt.Errorf("rebuild %s: %w", cat, err)
	}

	res := Normalize(listing, root.Path, root.Extensions, cat)
	for _, s := range res.Skipped {
		logger.Debug().
			Str(log.FieldEvent, "library.skip").
			Str(log.FieldRemotePath, s.Path).
			Str("reason", s.Reason).
			Msg("skipping unrecognized library entry")
	}

	c := NewCatalog(cat, res.Entries, res.Skipped, ix.now())
	entries, skipped = c.Len(), len(res.Skipped)

	logger.Info().
		Str(log.FieldEvent, "library.rebuilt").
		Int(log.FieldEntries, entries).
		Int("groups", len(c.groups)).
		Int("skipped", skipped).
		Dur(log.FieldDuration, time.Since(start)).
		Msg("catalog rebuilt")
	return c, nil
}
