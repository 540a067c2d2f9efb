// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api assembles the HTTP surface: signed link routes, the admin
// JSON API, health probes and metrics.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/ManuGH/seedlink/internal/api/middleware"
	"github.com/ManuGH/seedlink/internal/health"
	"github.com/ManuGH/seedlink/internal/library"
	"github.com/ManuGH/seedlink/internal/linksign"
	"github.com/ManuGH/seedlink/internal/log"
)

// Library is the read and invalidation surface the admin API needs.
type Library interface {
	Status() []library.CategoryStatus
	Groups(ctx context.Context, cat library.Category) ([]string, error)
	Entries(ctx context.Context, cat library.Category, query string) ([]library.Entry, error)
	Preferred(ctx context.Context, cat library.Category, group, title string) (library.Entry, error)
	Resolve(ctx context.Context, ref linksign.EntryRef) (library.Entry, error)
	Invalidate(cat library.Category)
	InvalidateAll()
}

// Issuer mints link tokens.
type Issuer interface {
	Issue(ref linksign.EntryRef, action linksign.Action, ttl time.Duration) (linksign.Token, error)
}

// Rescanner queues background catalog refreshes.
type Rescanner interface {
	Trigger(cats ...library.Category)
}

// Config holds the HTTP surface settings.
type Config struct {
	// Token enables the admin API; empty keeps it unmounted.
	Token string
	// RateLimit is the admin API budget per client IP and minute.
	RateLimit     int
	PublicBaseURL string
	// LinkTTL is the default validity of issued links; MaxLinkTTL caps
	// requested values.
	LinkTTL        time.Duration
	MaxLinkTTL     time.Duration
	TracingService string
}

// Deps are the collaborators of a Server. Rescanner and Health may be nil.
type Deps struct {
	Library   Library
	Signer    Issuer
	Rescanner Rescanner
	Links     http.Handler
	Health    *health.Manager
	Logger    zerolog.Logger
}

// Server serves every HTTP route of the daemon.
type Server struct {
	cfg     Config
	lib     Library
	signer  Issuer
	rescan  Rescanner
	links   http.Handler
	health  *health.Manager
	logger  zerolog.Logger
	handler http.Handler
}

// New builds the router.
func New(cfg Config, deps Deps) *Server {
	if cfg.LinkTTL <= 0 {
		cfg.LinkTTL = 15 * time.Minute
	}
	if cfg.MaxLinkTTL < cfg.LinkTTL {
		cfg.MaxLinkTTL = max(cfg.LinkTTL, 24*time.Hour)
	}
	s := &Server{
		cfg:    cfg,
		lib:    deps.Library,
		signer: deps.Signer,
		rescan: deps.Rescanner,
		links:  deps.Links,
		health: deps.Health,
		logger: deps.Logger.With().Str(log.FieldComponent, "api").Logger(),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

func (s *Server) routes() http.Handler {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableSecurityHeaders: true,
		EnableMetrics:         true,
		TracingService:        s.cfg.TracingService,
		EnableLogging:         true,
	})

	if s.health != nil {
		r.Get("/healthz", s.health.ServeHealth)
		r.Get("/readyz", s.health.ServeReady)
	}
	r.Handle("/metrics", promhttp.Handler())

	if s.cfg.Token != "" {
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(middleware.APIRateLimit(s.cfg.RateLimit))
			r.Use(middleware.RequireToken(s.cfg.Token))
			r.Get("/categories", s.handleCategories)
			r.Get("/categories/{category}/groups", s.handleGroups)
			r.Get("/categories/{category}/entries", s.handleEntries)
			r.Post("/links", s.handleIssueLink)
			r.Post("/rescan", s.handleRescan)
		})
	} else {
		s.logger.Info().Msg("API_TOKEN not set; admin API disabled")
	}

	if s.links != nil {
		r.Group(func(r chi.Router) {
			r.Use(middleware.LinkRateLimit())
			r.Mount("/", s.links)
		})
	}
	return r
}
