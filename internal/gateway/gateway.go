// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package gateway serves signed links: a landing page, range-aware
// downloads and admission-controlled video streams.
package gateway

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/ManuGH/seedlink/internal/admission"
	"github.com/ManuGH/seedlink/internal/library"
	"github.com/ManuGH/seedlink/internal/linksign"
	"github.com/ManuGH/seedlink/internal/log"
	"github.com/ManuGH/seedlink/internal/remote"
	"github.com/ManuGH/seedlink/internal/transcode"
)

// Signer verifies presented tokens and mints sibling links.
type Signer interface {
	Verify(raw string) (linksign.Token, error)
	Derive(parent linksign.Token, action linksign.Action) (linksign.Token, error)
}

// Resolver finds the catalog entry a token refers to.
type Resolver interface {
	Resolve(ctx context.Context, ref linksign.EntryRef) (library.Entry, error)
}

// Config holds the gateway tunables.
type Config struct {
	// PublicBaseURL prefixes generated links; relative links when empty.
	PublicBaseURL string
	// NativeExtensions are streamed without transcoding.
	NativeExtensions []string
	IdleTimeout      time.Duration
	MaxDuration      time.Duration
	RetryAfter       time.Duration
	ChunkSize        int
	Profile          transcode.Profile
}

func (c *Config) setDefaults() {
	if c.NativeExtensions == nil {
		c.NativeExtensions = []string{".mp4", ".m4v", ".webm"}
	}
	if c.RetryAfter <= 0 {
		c.RetryAfter = 10 * time.Second
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 64 << 10
	}
	if c.Profile.Name == "" {
		c.Profile = transcode.DefaultProfile
	}
	c.PublicBaseURL = strings.TrimRight(c.PublicBaseURL, "/")
}

// Deps are the collaborators of a Gateway. Cache may be nil.
type Deps struct {
	Signer  Signer
	Library Resolver
	Source  remote.Source
	Limiter *admission.Limiter
	Runner  transcode.Runner
	Cache   *transcode.OutputCache
	Logger  zerolog.Logger
	Clock   func() time.Time
}

// Gateway is the HTTP surface for signed links.
type Gateway struct {
	cfg     Config
	signer  Signer
	lib     Resolver
	source  remote.Source
	limiter *admission.Limiter
	runner  transcode.Runner
	cache   *transcode.OutputCache
	logger  zerolog.Logger
	now     func() time.Time
}

// New returns a Gateway.
func New(cfg Config, deps Deps) *Gateway {
	cfg.setDefaults()
	now := deps.Clock
	if now == nil {
		now = time.Now
	}
	limiter := deps.Limiter
	if limiter == nil {
		limiter = admission.NewLimiter(1)
	}
	return &Gateway{
		cfg:     cfg,
		signer:  deps.Signer,
		lib:     deps.Library,
		source:  deps.Source,
		limiter: limiter,
		runner:  deps.Runner,
		cache:   deps.Cache,
		logger:  deps.Logger.With().Str(log.FieldComponent, "gateway").Logger(),
		now:     now,
	}
}

// Routes returns the link routes. Mount them at the server root.
func (g *Gateway) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/links/{token}", g.handleLinks)
	r.Get("/download/{token}", g.handleDownload)
	r.Head("/download/{token}", g.handleDownload)
	r.Get("/stream/{token}", g.handleStream)
	r.Get("/subtitles/{token}/{n}", g.handleSubtitle)
	return r
}

// authorize verifies the path token, checks it grants want (any action when
// want is empty) and resolves its entry.
func (g *Gateway) authorize(r *http.Request, want linksign.Action) (linksign.Token, library.Entry, zerolog.Logger, error) {
	logger := log.WithContext(r.Context(), g.logger)

	tok, err := g.signer.Verify(chi.URLParam(r, "token"))
	if err != nil {
		return tok, library.Entry{}, logger, err
	}
	logger = logger.With().
		Str(log.FieldTokenID, tok.Fingerprint()).
		Str(log.FieldAction, string(tok.Action)).
		Logger()
	if want != "" && tok.Action != want {
		return tok, library.Entry{}, logger, ErrWrongAction
	}

	e, err := g.lib.Resolve(r.Context(), tok.Ref)
	if err != nil {
		return tok, library.Entry{}, logger, err
	}
	logger = logger.With().
		Str(log.FieldCategory, string(e.Category)).
		Str(log.FieldRemotePath, e.RemotePath).
		Logger()
	return tok, e, logger, nil
}

func (g *Gateway) url(route, raw string) string {
	return joinURL(g.cfg.PublicBaseURL, route, raw)
}

// PageURL returns the landing page URL of tok under base.
func PageURL(base string, tok linksign.Token) string {
	return joinURL(base, "links", tok.Raw)
}

// DirectURL returns the URL that serves tok's action without the landing page.
func DirectURL(base string, tok linksign.Token) string {
	return joinURL(base, string(tok.Action), tok.Raw)
}

func joinURL(base, route, raw string) string {
	return strings.TrimRight(base, "/") + "/" + route + "/" + raw
}

func (g *Gateway) isNative(ext string) bool {
	for _, n := range g.cfg.NativeExtensions {
		if strings.EqualFold(strings.TrimSpace(n), ext) {
			return true
		}
	}
	return false
}
