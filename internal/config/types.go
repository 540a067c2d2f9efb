// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for seedlink.
package config

import (
	"net"
	"strconv"
	"time"
)

// Remote backends.
const (
	BackendSFTP  = "sftp"
	BackendLocal = "local"
)

// AppConfig is the fully resolved runtime configuration.
type AppConfig struct {
	Version    string           `yaml:"-"`
	HTTP       HTTPConfig       `yaml:"http"`
	Log        LogConfig        `yaml:"log"`
	Remote     RemoteConfig     `yaml:"remote"`
	Categories CategoriesConfig `yaml:"categories"`
	Library    LibraryConfig    `yaml:"library"`
	Links      LinksConfig      `yaml:"links"`
	Streams    StreamsConfig    `yaml:"streams"`
	API        APIConfig        `yaml:"api"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

type HTTPConfig struct {
	Host              string        `yaml:"host"`
	Port              int           `yaml:"port"`
	PublicBaseURL     string        `yaml:"publicBaseURL"`
	ReadHeaderTimeout time.Duration `yaml:"readHeaderTimeout"`
	IdleTimeout       time.Duration `yaml:"idleTimeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout"`
}

// ListenAddr returns host:port for the HTTP listener.
func (h HTTPConfig) ListenAddr() string {
	return net.JoinHostPort(h.Host, strconv.Itoa(h.Port))
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
}

// RemoteConfig configures the remote file source and the guard around it.
type RemoteConfig struct {
	Backend        string        `yaml:"backend"`
	Host           string        `yaml:"host"`
	Port           int           `yaml:"port"`
	Username       string        `yaml:"username"`
	Password       string        `yaml:"password"`
	KeyPath        string        `yaml:"keyPath"`
	KeyText        string        `yaml:"keyText"`
	KnownHostsPath string        `yaml:"knownHostsPath"`
	DialTimeout    time.Duration `yaml:"dialTimeout"`

	RateLimit        float64       `yaml:"rateLimit"`
	RateBurst        int           `yaml:"rateBurst"`
	BreakerThreshold int           `yaml:"breakerThreshold"`
	BreakerReset     time.Duration `yaml:"breakerReset"`
}

// Address returns host:port of the SFTP server.
func (r RemoteConfig) Address() string {
	return net.JoinHostPort(r.Host, strconv.Itoa(r.Port))
}

// CategoryConfig configures one library category. A category is enabled
// when its root is set.
type CategoryConfig struct {
	Root       string   `yaml:"root"`
	Extensions []string `yaml:"extensions"`
}

// Enabled reports whether the category is indexed.
func (c CategoryConfig) Enabled() bool { return c.Root != "" }

type CategoriesConfig struct {
	Books  CategoryConfig `yaml:"books"`
	Movies CategoryConfig `yaml:"movies"`
	TV     CategoryConfig `yaml:"tv"`
	Music  CategoryConfig `yaml:"music"`
}

// NamedCategory pairs a category name with its configuration.
type NamedCategory struct {
	Name string
	CategoryConfig
}

// All returns every category in a stable order, enabled or not.
func (c CategoriesConfig) All() []NamedCategory {
	return []NamedCategory{
		{Name: "books", CategoryConfig: c.Books},
		{Name: "movies", CategoryConfig: c.Movies},
		{Name: "tv", CategoryConfig: c.TV},
		{Name: "music", CategoryConfig: c.Music},
	}
}

// Enabled returns only the categories with a configured root.
func (c CategoriesConfig) Enabled() []NamedCategory {
	var out []NamedCategory
	for _, nc := range c.All() {
		if nc.Enabled() {
			out = append(out, nc)
		}
	}
	return out
}

type LibraryConfig struct {
	CacheTTL         time.Duration `yaml:"cacheTTL"`
	RefreshInterval  time.Duration `yaml:"refreshInterval"`
	RebuildTimeout   time.Duration `yaml:"rebuildTimeout"`
	FormatPreference []string      `yaml:"formatPreference"`
}

type LinksConfig struct {
	TTL        time.Duration `yaml:"ttl"`
	Secret     string        `yaml:"secret"`
	SecretFile string        `yaml:"secretFile"`
}

type StreamsConfig struct {
	MaxConcurrent    int           `yaml:"maxConcurrent"`
	IdleTimeout      time.Duration `yaml:"idleTimeout"`
	MaxDuration      time.Duration `yaml:"maxDuration"`
	KillGrace        time.Duration `yaml:"killGrace"`
	FFmpegPath       string        `yaml:"ffmpegPath"`
	NativeExtensions []string      `yaml:"nativeExtensions"`
	CacheTTL         time.Duration `yaml:"cacheTTL"`
	CacheDir         string        `yaml:"cacheDir"`
	CacheMaxBytes    int64         `yaml:"cacheMaxBytes"`
}

type APIConfig struct {
	Token     string `yaml:"token"`
	RateLimit int    `yaml:"rateLimit"` // requests per minute per client IP
}

type TelemetryConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Exporter    string  `yaml:"exporter"`
	Endpoint    string  `yaml:"endpoint"`
	SampleRate  float64 `yaml:"sampleRate"`
	Environment string  `yaml:"environment"`
}
