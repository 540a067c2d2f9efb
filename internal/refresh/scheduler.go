// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package refresh rebuilds library catalogs in the background so readers
// rarely pay for a cold rebuild.
package refresh

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/seedlink/internal/library"
	"github.com/ManuGH/seedlink/internal/log"
)

// Refresher is the part of library.Library the scheduler drives.
type Refresher interface {
	Categories() []library.Category
	Refresh(ctx context.Context, cat library.Category) (*library.Catalog, error)
}

// Scheduler refreshes every category at a fixed interval and on demand.
// Refreshes go through the same single-flight path as reader misses, so a
// scheduled run never duplicates a rebuild already in progress.
type Scheduler struct {
	target   Refresher
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	pending map[library.Category]bool
	all     bool
	wake    chan struct{}
}

// NewScheduler returns a scheduler. interval <= 0 disables the periodic
// runs; Trigger still works.
func NewScheduler(target Refresher, interval time.Duration, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		target:   target,
		interval: interval,
		logger:   logger.With().Str(log.FieldComponent, "refresh").Logger(),
		pending:  make(map[library.Category]bool),
		wake:     make(chan struct{}, 1),
	}
}

// Run warms every category, then loops until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	var tick <-chan time.Time
	if s.interval > 0 {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	s.refresh(ctx, s.target.Categories(), "startup")
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			s.refresh(ctx, s.target.Categories(), "interval")
		case <-s.wake:
			s.refresh(ctx, s.takePending(), "trigger")
		}
	}
}

// Trigger queues a refresh of cats, or of every category when none are
// given. It never blocks; triggers arriving during a run are merged.
func (s *Scheduler) Trigger(cats ...library.Category) {
	s.mu.Lock()
	if len(cats) == 0 {
		s.all = true
	}
	for _, c := range cats {
		s.pending[c] = true
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Scheduler) takePending() []library.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []library.Category
	for _, c := range s.target.Categories() {
		if s.all || s.pending[c] {
			out = append(out, c)
		}
	}
	s.all = false
	clear(s.pending)
	return out
}

func (s *Scheduler) refresh(ctx context.Context, cats []library.Category, reason string) {
	for _, cat := range cats {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		c, err := s.target.Refresh(ctx, cat)
		if err != nil {
			if ctx.Err() == nil {
				s.logger.Warn().Err(err).
					Str(log.FieldCategory, string(cat)).
					Str("reason", reason).
					Msg("background refresh failed")
			}
			continue
		}
		s.logger.Debug().
			Str(log.FieldCategory, string(cat)).
			Str("reason", reason).
			Int(log.FieldEntries, c.Len()).
			Dur(log.FieldDuration, time.Since(start)).
			Msg("catalog refreshed")
	}
}
