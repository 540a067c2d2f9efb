// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	dotenvPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		dotenvPath:      ".env",
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// WithDotenv overrides the .env location; an empty path disables it.
func (l *Loader) WithDotenv(path string) *Loader {
	l.dotenvPath = path
	return l
}

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envInt64(key string, defaultVal int64) int64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt64(key, defaultVal)
}

func (l *Loader) envSeconds(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseSeconds(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envList(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseList(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// A .env file, when present, only fills variables the environment lacks.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()
	cfg.Version = l.version

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	if l.dotenvPath != "" {
		if err := godotenv.Load(l.dotenvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return cfg, fmt.Errorf("load %s: %w", l.dotenvPath, err)
		}
	}

	l.mergeEnvConfig(&cfg)
	normalize(&cfg)

	if cfg.Links.Secret == "" && cfg.Links.SecretFile != "" {
		secret, err := ReadSecretFile(cfg.Links.SecretFile)
		if err != nil {
			return cfg, fmt.Errorf("%w: %v", ErrMissingSecret, err)
		}
		cfg.Links.Secret = secret
	}

	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// loadFile decodes a YAML file over cfg with strict parsing.
// Unknown fields cause an error to prevent silent misconfiguration.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if err == io.EOF {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

// mergeEnvConfig overrides cfg with environment variables. Each lookup uses
// the current value as its default so unset variables keep file values.
func (l *Loader) mergeEnvConfig(cfg *AppConfig) {
	cfg.HTTP.Host = l.envString("HTTP_HOST", cfg.HTTP.Host)
	cfg.HTTP.Port = l.envInt("HTTP_PORT", cfg.HTTP.Port)
	cfg.HTTP.PublicBaseURL = l.envString("PUBLIC_BASE_URL", cfg.HTTP.PublicBaseURL)

	cfg.Log.Level = l.envString("LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Service = l.envString("LOG_SERVICE", cfg.Log.Service)

	cfg.Remote.Backend = l.envString("REMOTE_BACKEND", cfg.Remote.Backend)
	cfg.Remote.Host = l.envString("SFTP_HOST", cfg.Remote.Host)
	cfg.Remote.Port = l.envInt("SFTP_PORT", cfg.Remote.Port)
	cfg.Remote.Username = l.envString("SFTP_USERNAME", cfg.Remote.Username)
	cfg.Remote.Password = l.envString("SFTP_PASSWORD", cfg.Remote.Password)
	cfg.Remote.KeyPath = l.envString("SSH_KEY_PATH", cfg.Remote.KeyPath)
	cfg.Remote.KeyText = l.envString("SSH_KEY_TEXT", cfg.Remote.KeyText)
	cfg.Remote.KnownHostsPath = l.envString("SSH_KNOWN_HOSTS", cfg.Remote.KnownHostsPath)
	cfg.Remote.DialTimeout = l.envDuration("REMOTE_DIAL_TIMEOUT", cfg.Remote.DialTimeout)
	cfg.Remote.RateLimit = l.envFloat("REMOTE_RATE_LIMIT", cfg.Remote.RateLimit)
	cfg.Remote.RateBurst = l.envInt("REMOTE_RATE_BURST", cfg.Remote.RateBurst)
	cfg.Remote.BreakerThreshold = l.envInt("REMOTE_BREAKER_THRESHOLD", cfg.Remote.BreakerThreshold)
	cfg.Remote.BreakerReset = l.envDuration("REMOTE_BREAKER_RESET", cfg.Remote.BreakerReset)

	cfg.Categories.Books.Root = l.envString("LIBRARY_ROOT_PATH", cfg.Categories.Books.Root)
	cfg.Categories.Books.Extensions = l.envList("FILE_EXTENSIONS", cfg.Categories.Books.Extensions)
	cfg.Categories.Movies.Root = l.envString("MOVIES_ROOT_PATH", cfg.Categories.Movies.Root)
	cfg.Categories.Movies.Extensions = l.envList("MOVIE_EXTENSIONS", cfg.Categories.Movies.Extensions)
	cfg.Categories.TV.Root = l.envString("TV_ROOT_PATH", cfg.Categories.TV.Root)
	cfg.Categories.TV.Extensions = l.envList("TV_EXTENSIONS", cfg.Categories.TV.Extensions)
	cfg.Categories.Music.Root = l.envString("MUSIC_ROOT_PATH", cfg.Categories.Music.Root)
	cfg.Categories.Music.Extensions = l.envList("MUSIC_EXTENSIONS", cfg.Categories.Music.Extensions)

	cfg.Library.CacheTTL = l.envSeconds("CACHE_TTL_SECONDS", cfg.Library.CacheTTL)
	cfg.Library.RefreshInterval = l.envSeconds("REFRESH_INTERVAL_SECONDS", cfg.Library.RefreshInterval)
	cfg.Library.RebuildTimeout = l.envDuration("REBUILD_TIMEOUT", cfg.Library.RebuildTimeout)
	cfg.Library.FormatPreference = l.envList("FORMAT_PREFERENCE", cfg.Library.FormatPreference)

	cfg.Links.TTL = l.envSeconds("LINK_TTL_SECONDS", cfg.Links.TTL)
	cfg.Links.Secret = l.envString("LINK_SECRET", cfg.Links.Secret)
	cfg.Links.SecretFile = l.envString("LINK_SECRET_FILE", cfg.Links.SecretFile)

	cfg.Streams.MaxConcurrent = l.envInt("MAX_CONCURRENT_STREAMS", cfg.Streams.MaxConcurrent)
	cfg.Streams.IdleTimeout = l.envDuration("STREAM_IDLE_TIMEOUT", cfg.Streams.IdleTimeout)
	cfg.Streams.MaxDuration = l.envDuration("STREAM_MAX_DURATION", cfg.Streams.MaxDuration)
	cfg.Streams.KillGrace = l.envDuration("STREAM_KILL_GRACE", cfg.Streams.KillGrace)
	cfg.Streams.FFmpegPath = l.envString("FFMPEG_PATH", cfg.Streams.FFmpegPath)
	cfg.Streams.NativeExtensions = l.envList("STREAM_NATIVE_EXTENSIONS", cfg.Streams.NativeExtensions)
	cfg.Streams.CacheTTL = l.envSeconds("VIDEO_CACHE_SECONDS", cfg.Streams.CacheTTL)
	cfg.Streams.CacheDir = l.envString("VIDEO_CACHE_DIR", cfg.Streams.CacheDir)
	cfg.Streams.CacheMaxBytes = l.envInt64("VIDEO_CACHE_MAX_BYTES", cfg.Streams.CacheMaxBytes)

	cfg.API.Token = l.envString("API_TOKEN", cfg.API.Token)
	cfg.API.RateLimit = l.envInt("API_RATE_LIMIT", cfg.API.RateLimit)

	cfg.Telemetry.Enabled = l.envBool("OTEL_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = l.envString("OTEL_EXPORTER", cfg.Telemetry.Exporter)
	cfg.Telemetry.Endpoint = l.envString("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SampleRate = l.envFloat("OTEL_SAMPLE_RATE", cfg.Telemetry.SampleRate)
	cfg.Telemetry.Environment = l.envString("OTEL_ENVIRONMENT", cfg.Telemetry.Environment)
}

// normalize lowercases extension lists and trims trailing slashes from
// roots so later comparisons are exact.
func normalize(cfg *AppConfig) {
	fix := func(c *CategoryConfig) {
		if c.Root != "/" {
			c.Root = strings.TrimRight(c.Root, "/")
		}
		c.Extensions = lowerAll(c.Extensions)
	}
	fix(&cfg.Categories.Books)
	fix(&cfg.Categories.Movies)
	fix(&cfg.Categories.TV)
	fix(&cfg.Categories.Music)
	cfg.Library.FormatPreference = lowerAll(cfg.Library.FormatPreference)
	cfg.Streams.NativeExtensions = lowerAll(cfg.Streams.NativeExtensions)
	cfg.Remote.Backend = strings.ToLower(strings.TrimSpace(cfg.Remote.Backend))
	cfg.HTTP.PublicBaseURL = strings.TrimRight(cfg.HTTP.PublicBaseURL, "/")
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// ReadSecretFile reads a secret from disk, trimming surrounding whitespace.
func ReadSecretFile(path string) (string, error) {
	// #nosec G304 -- operator supplied path
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("read secret file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}
