// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"fmt"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/ManuGH/seedlink/internal/config"
	"github.com/ManuGH/seedlink/internal/library"
	"github.com/ManuGH/seedlink/internal/linksign"
	"github.com/ManuGH/seedlink/internal/remote"
)

// NewSource builds the configured remote backend behind the rate limiter
// and circuit breaker.
func NewSource(rc config.RemoteConfig, logger zerolog.Logger) (*remote.Guarded, error) {
	var inner remote.Source
	switch rc.Backend {
	case config.BackendSFTP:
		s, err := remote.NewSFTP(remote.SFTPConfig{
			Address:        rc.Address(),
			Username:       rc.Username,
			Password:       rc.Password,
			KeyPath:        rc.KeyPath,
			KeyText:        rc.KeyText,
			KnownHostsPath: rc.KnownHostsPath,
			DialTimeout:    rc.DialTimeout,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("sftp source: %w", err)
		}
		inner = s
	case config.BackendLocal:
		inner = remote.NewDir(logger)
	default:
		return nil, fmt.Errorf("unknown remote backend %q", rc.Backend)
	}

	var limiter *rate.Limiter
	if rc.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(rc.RateLimit), max(rc.RateBurst, 1))
	}
	breaker := remote.NewBreaker("remote", rc.BreakerThreshold, rc.BreakerReset)
	return remote.NewGuarded(inner, breaker, limiter), nil
}

// NewLibrary builds the library over the enabled categories.
func NewLibrary(src remote.Source, cfg config.AppConfig, logger zerolog.Logger) (*library.Library, error) {
	var roots []library.Root
	for _, c := range cfg.Categories.Enabled() {
		cat, err := library.ParseCategory(c.Name)
		if err != nil {
			return nil, err
		}
		roots = append(roots, library.Root{Category: cat, Path: c.Root, Extensions: c.Extensions})
	}
	ix := library.NewIndexer(src, roots, logger)
	return library.New(ix, library.Options{
		TTL:              cfg.Library.CacheTTL,
		RebuildTimeout:   cfg.Library.RebuildTimeout,
		FormatPreference: cfg.Library.FormatPreference,
		Logger:           logger,
	}), nil
}

// NewSigner builds the link signer. A weak secret is fatal.
func NewSigner(lc config.LinksConfig) (*linksign.Signer, error) {
	s, err := linksign.NewSigner([]byte(lc.Secret))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrMissingSecret, err)
	}
	return s, nil
}
