// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package admission bounds the number of concurrent transcoding sessions.
// Requests over the limit are rejected immediately rather than queued.
package admission

import (
	"errors"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/ManuGH/seedlink/internal/metrics"
)

// ErrOverloaded is returned when every slot is taken.
var ErrOverloaded = errors.New("too many concurrent streams")

// Reason is the outcome of an admission decision, lowercase for stable
// metric labels.
type Reason string

const (
	ReasonAdmitted Reason = "admitted"
	ReasonPoolFull Reason = "pool_full"
)

// Limiter is a non-blocking counting semaphore.
type Limiter struct {
	sem    *semaphore.Weighted
	size   int64
	active atomic.Int64
}

// NewLimiter returns a limiter with n slots. n < 1 is treated as 1.
func NewLimiter(n int) *Limiter {
	if n < 1 {
		n = 1
	}
	return &Limiter{sem: semaphore.NewWeighted(int64(n)), size: int64(n)}
}

// TryAcquire takes a slot without waiting. On success the returned release
// func gives the slot back; calling it more than once is a no-op.
func (l *Limiter) TryAcquire() (release func(), err error) {
	if !l.sem.TryAcquire(1) {
		metrics.RecordStreamAdmission(false)
		return nil, ErrOverloaded
	}
	metrics.RecordStreamAdmission(true)
	metrics.SetActiveStreams(l.active.Add(1))

	var once sync.Once
	return func() {
		once.Do(func() {
			metrics.SetActiveStreams(l.active.Add(-1))
			l.sem.Release(1)
		})
	}, nil
}

// Decide reports the reason TryAcquire would give right now, without
// taking a slot.
func (l *Limiter) Decide() Reason {
	if l.active.Load() >= l.size {
		return ReasonPoolFull
	}
	return ReasonAdmitted
}

// Active returns the number of held slots.
func (l *Limiter) Active() int64 { return l.active.Load() }

// Size returns the slot count.
func (l *Limiter) Size() int64 { return l.size }
