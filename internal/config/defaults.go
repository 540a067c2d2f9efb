// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"os"
	"path/filepath"
	"time"
)

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	videoExts := []string{".mp4", ".mkv", ".avi", ".mov"}
	return AppConfig{
		HTTP: HTTPConfig{
			Host:              "0.0.0.0",
			Port:              8080,
			ReadHeaderTimeout: 10 * time.Second,
			IdleTimeout:       120 * time.Second,
			ShutdownTimeout:   15 * time.Second,
		},
		Log: LogConfig{Level: "info", Service: "seedlink"},
		Remote: RemoteConfig{
			Backend:          BackendSFTP,
			Port:             22,
			DialTimeout:      10 * time.Second,
			RateLimit:        20,
			RateBurst:        40,
			BreakerThreshold: 5,
			BreakerReset:     30 * time.Second,
		},
		Categories: CategoriesConfig{
			Books: CategoryConfig{
				Root:       "/media/books",
				Extensions: []string{".epub", ".mobi", ".pdf", ".azw3"},
			},
			Movies: CategoryConfig{Extensions: videoExts},
			TV:     CategoryConfig{Extensions: append([]string(nil), videoExts...)},
			Music:  CategoryConfig{Extensions: []string{".mp3", ".flac", ".m4a", ".wav"}},
		},
		Library: LibraryConfig{
			CacheTTL:         900 * time.Second,
			RefreshInterval:  30 * time.Minute,
			RebuildTimeout:   5 * time.Minute,
			FormatPreference: []string{".epub", ".azw3", ".mobi", ".pdf"},
		},
		Links: LinksConfig{TTL: 900 * time.Second},
		Streams: StreamsConfig{
			MaxConcurrent:    2,
			IdleTimeout:      30 * time.Second,
			MaxDuration:      4 * time.Hour,
			KillGrace:        3 * time.Second,
			FFmpegPath:       "ffmpeg",
			NativeExtensions: []string{".mp4", ".m4v", ".webm"},
			CacheTTL:         3600 * time.Second,
			CacheDir:         filepath.Join(os.TempDir(), "seedlink-transcodes"),
			CacheMaxBytes:    2 << 30,
		},
		API:       APIConfig{RateLimit: 120},
		Telemetry: TelemetryConfig{Exporter: "grpc", SampleRate: 1.0, Environment: "production"},
	}
}
