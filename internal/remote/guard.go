// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package remote

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"golang.org/x/time/rate"

	"github.com/ManuGH/seedlink/internal/resilience"
)

// Guarded wraps a Source with a request rate limit and a circuit breaker so
// a dead seedbox fails fast instead of stacking up slow dials.
type Guarded struct {
	inner   Source
	breaker *resilience.CircuitBreaker
	limiter *rate.Limiter
}

// NewGuarded wraps inner. A nil limiter disables rate limiting.
func NewGuarded(inner Source, breaker *resilience.CircuitBreaker, limiter *rate.Limiter) *Guarded {
	return &Guarded{inner: inner, breaker: breaker, limiter: limiter}
}

// NewBreaker returns a breaker that only counts transport failures.
func NewBreaker(name string, threshold int, reset time.Duration) *resilience.CircuitBreaker {
	return resilience.NewCircuitBreaker(name, threshold, reset, resilience.WithFailureFilter(IsTransient))
}

// BreakerState exposes the breaker state for health checks.
func (g *Guarded) BreakerState() string {
	return g.breaker.State()
}

func (g *Guarded) do(ctx context.Context, fn func() error) error {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Classify(ctxErr)
			}
			return fmt.Errorf("%w: rate limit: %v", ErrTimeout, err)
		}
	}
	err := g.breaker.Execute(fn)
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return err
}

func (g *Guarded) ListTree(ctx context.Context, root string) ([]Entry, error) {
	var out []Entry
	err := g.do(ctx, func() error {
		var err error
		out, err = g.inner.ListTree(ctx, root)
		return err
	})
	return out, err
}

func (g *Guarded) ReadDir(ctx context.Context, dir string) ([]Entry, error) {
	var out []Entry
	err := g.do(ctx, func() error {
		var err error
		out, err = g.inner.ReadDir(ctx, dir)
		return err
	})
	return out, err
}

func (g *Guarded) Stat(ctx context.Context, p string) (Entry, error) {
	var out Entry
	err := g.do(ctx, func() error {
		var err error
		out, err = g.inner.Stat(ctx, p)
		return err
	})
	return out, err
}

func (g *Guarded) Open(ctx context.Context, p string, rng *ByteRange) (io.ReadCloser, error) {
	var out io.ReadCloser
	err := g.do(ctx, func() error {
		var err error
		out, err = g.inner.Open(ctx, p, rng)
		return err
	})
	return out, err
}
