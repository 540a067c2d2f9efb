// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"fmt"

	"github.com/ManuGH/seedlink/internal/linksign"
	"github.com/ManuGH/seedlink/internal/validate"
)

// Validate checks a resolved AppConfig. A missing or short link secret is
// reported as ErrMissingSecret so callers can treat it as fatal on its own.
func Validate(cfg AppConfig) error {
	sv := validate.New()
	sv.MinLen("LINK_SECRET", cfg.Links.Secret, linksign.MinSecretLen)
	if err := sv.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrMissingSecret, err)
	}

	v := validate.New()

	v.Port("HTTP_PORT", cfg.HTTP.Port)
	if cfg.HTTP.PublicBaseURL != "" {
		v.URL("PUBLIC_BASE_URL", cfg.HTTP.PublicBaseURL, []string{"http", "https"})
	}

	v.OneOf("REMOTE_BACKEND", cfg.Remote.Backend, []string{BackendSFTP, BackendLocal})
	if cfg.Remote.Backend == BackendSFTP {
		v.NotEmpty("SFTP_HOST", cfg.Remote.Host)
		v.Port("SFTP_PORT", cfg.Remote.Port)
		v.NotEmpty("SFTP_USERNAME", cfg.Remote.Username)
		if cfg.Remote.Password == "" && cfg.Remote.KeyPath == "" && cfg.Remote.KeyText == "" {
			v.AddError("SFTP_PASSWORD", "one of SFTP_PASSWORD, SSH_KEY_PATH or SSH_KEY_TEXT is required", "")
		}
		v.PositiveDuration("REMOTE_DIAL_TIMEOUT", cfg.Remote.DialTimeout)
	}
	if cfg.Remote.RateLimit < 0 {
		v.AddError("REMOTE_RATE_LIMIT", "cannot be negative", cfg.Remote.RateLimit)
	}
	v.NonNegative("REMOTE_RATE_BURST", cfg.Remote.RateBurst)
	v.Range("REMOTE_BREAKER_THRESHOLD", cfg.Remote.BreakerThreshold, 1, 100)

	enabled := cfg.Categories.Enabled()
	if len(enabled) == 0 {
		v.AddError("categories", "at least one category root must be configured", "")
	}
	for _, c := range enabled {
		v.RemoteRoot(c.Name+".root", c.Root)
		v.Extensions(c.Name+".extensions", c.Extensions)
	}

	v.PositiveDuration("CACHE_TTL_SECONDS", cfg.Library.CacheTTL)
	v.PositiveDuration("REFRESH_INTERVAL_SECONDS", cfg.Library.RefreshInterval)
	v.PositiveDuration("REBUILD_TIMEOUT", cfg.Library.RebuildTimeout)
	v.PositiveDuration("LINK_TTL_SECONDS", cfg.Links.TTL)

	v.Positive("MAX_CONCURRENT_STREAMS", cfg.Streams.MaxConcurrent)
	v.PositiveDuration("STREAM_IDLE_TIMEOUT", cfg.Streams.IdleTimeout)
	v.PositiveDuration("STREAM_MAX_DURATION", cfg.Streams.MaxDuration)
	v.PositiveDuration("STREAM_KILL_GRACE", cfg.Streams.KillGrace)
	v.NotEmpty("FFMPEG_PATH", cfg.Streams.FFmpegPath)
	if cfg.Streams.CacheTTL < 0 {
		v.AddError("VIDEO_CACHE_SECONDS", "cannot be negative", cfg.Streams.CacheTTL)
	}
	if cfg.Streams.CacheTTL > 0 {
		v.NotEmpty("VIDEO_CACHE_DIR", cfg.Streams.CacheDir)
	}

	v.NonNegative("API_RATE_LIMIT", cfg.API.RateLimit)

	if cfg.Telemetry.Enabled {
		v.OneOf("OTEL_EXPORTER", cfg.Telemetry.Exporter, []string{"grpc", "http"})
		v.NotEmpty("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.Endpoint)
		v.Custom("OTEL_SAMPLE_RATE", cfg.Telemetry.SampleRate, func(x interface{}) error {
			if r, _ := x.(float64); r < 0 || r > 1 {
				return fmt.Errorf("must be within [0, 1], got %g", r)
			}
			return nil
		})
	}

	if err := v.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return nil
}
