// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package daemon wires the components together and runs the HTTP server.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ManuGH/seedlink/internal/admission"
	"github.com/ManuGH/seedlink/internal/api"
	"github.com/ManuGH/seedlink/internal/config"
	"github.com/ManuGH/seedlink/internal/gateway"
	"github.com/ManuGH/seedlink/internal/health"
	"github.com/ManuGH/seedlink/internal/library"
	"github.com/ManuGH/seedlink/internal/linksign"
	"github.com/ManuGH/seedlink/internal/log"
	"github.com/ManuGH/seedlink/internal/refresh"
	"github.com/ManuGH/seedlink/internal/remote"
	"github.com/ManuGH/seedlink/internal/telemetry"
	"github.com/ManuGH/seedlink/internal/transcode"
)

// Daemon is one assembled seedlink instance.
type Daemon struct {
	cfg       config.AppConfig
	logger    zerolog.Logger
	source    *remote.Guarded
	library   *library.Library
	signer    *linksign.Signer
	limiter   *admission.Limiter
	cache     *transcode.OutputCache
	scheduler *refresh.Scheduler
	health    *health.Manager
	handler   http.Handler

	telemetry *telemetry.Provider
	server    *http.Server
	wg        sync.WaitGroup
}

// New assembles every component from cfg. Nothing runs until Start.
func New(cfg config.AppConfig) (*Daemon, error) {
	logger := log.WithComponent("daemon")
	base := log.Base()

	src, err := NewSource(cfg.Remote, base)
	if err != nil {
		return nil, err
	}
	lib, err := NewLibrary(src, cfg, base)
	if err != nil {
		return nil, err
	}
	signer, err := NewSigner(cfg.Links)
	if err != nil {
		return nil, err
	}

	d := &Daemon{
		cfg:     cfg,
		logger:  logger,
		source:  src,
		library: lib,
		signer:  signer,
		limiter: admission.NewLimiter(cfg.Streams.MaxConcurrent),
	}

	if cfg.Streams.CacheTTL > 0 && cfg.Streams.CacheDir != "" {
		d.cache, err = transcode.NewOutputCache(cfg.Streams.CacheDir, cfg.Streams.CacheTTL, cfg.Streams.CacheMaxBytes, base)
		if err != nil {
			return nil, err
		}
	}

	d.scheduler = refresh.NewScheduler(lib, cfg.Library.RefreshInterval, base)

	d.health = health.NewManager(cfg.Version)
	d.health.RegisterChecker(health.NewCatalogChecker(lib))
	d.health.RegisterChecker(health.NewBreakerChecker("remote", src))
	d.health.RegisterChecker(health.NewStreamChecker(d.limiter))

	gw := gateway.New(gateway.Config{
		PublicBaseURL:    cfg.HTTP.PublicBaseURL,
		NativeExtensions: cfg.Streams.NativeExtensions,
		IdleTimeout:      cfg.Streams.IdleTimeout,
		MaxDuration:      cfg.Streams.MaxDuration,
	}, gateway.Deps{
		Signer:  signer,
		Library: lib,
		Source:  src,
		Limiter: d.limiter,
		Runner: &transcode.FFmpeg{
			BinaryPath: cfg.Streams.FFmpegPath,
			KillGrace:  cfg.Streams.KillGrace,
			Logger:     base,
		},
		Cache:  d.cache,
		Logger: base,
	})

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = cfg.Log.Service
	}
	d.handler = api.New(api.Config{
		Token:          cfg.API.Token,
		RateLimit:      cfg.API.RateLimit,
		PublicBaseURL:  cfg.HTTP.PublicBaseURL,
		LinkTTL:        cfg.Links.TTL,
		TracingService: tracing,
	}, api.Deps{
		Library:   lib,
		Signer:    signer,
		Rescanner: d.scheduler,
		Links:     gw.Routes(),
		Health:    d.health,
		Logger:    base,
	}).Handler()

	return d, nil
}

// Handler returns the root HTTP handler.
func (d *Daemon) Handler() http.Handler { return d.handler }

// Start runs the daemon until ctx is cancelled or the listener fails.
func (d *Daemon) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", d.cfg.HTTP.ListenAddr())
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	return d.Serve(ctx, ln)
}

// Serve is Start on an existing listener.
func (d *Daemon) Serve(ctx context.Context, ln net.Listener) error {
	d.logger.Info().
		Str(log.FieldEvent, "startup").
		Str("version", d.cfg.Version).
		Str("listen", ln.Addr().String()).
		Strs("categories", categoryNames(d.library.Categories())).
		Int("max_streams", d.cfg.Streams.MaxConcurrent).
		Bool("admin_api", d.cfg.API.Token != "").
		Msg("starting seedlink")

	if err := d.initTelemetry(ctx); err != nil {
		d.logger.Warn().Err(err).Msg("telemetry initialization failed, continuing without tracing")
	}

	// Background work stops with runCtx; in-flight requests drain in Shutdown.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	d.watchSecret(runCtx)

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.scheduler.Run(runCtx)
	}()

	d.server = &http.Server{
		Handler:           d.handler,
		ReadHeaderTimeout: d.cfg.HTTP.ReadHeaderTimeout,
		IdleTimeout:       d.cfg.HTTP.IdleTimeout,
	}

	errChan := make(chan error, 1)
	go func() {
		if err := d.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	var serveErr error
	select {
	case serveErr = <-errChan:
	case <-ctx.Done():
	}
	cancel()
	if err := d.Shutdown(context.Background()); err != nil && serveErr == nil {
		serveErr = err
	}
	return serveErr
}

// Shutdown drains the HTTP server, then stops background work and removes
// cached transcodes. Streams still running after the shutdown timeout are
// cut off, which terminates their transcoders.
func (d *Daemon) Shutdown(ctx context.Context) error {
	d.logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, d.cfg.HTTP.ShutdownTimeout)
	defer cancel()

	var errs []error
	if d.server != nil {
		if err := d.server.Shutdown(shutdownCtx); err != nil {
			d.logger.Warn().Err(err).Msg("graceful shutdown incomplete, closing connections")
			if err := d.server.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close server: %w", err))
			}
		}
	}

	d.wg.Wait()

	if d.cache != nil {
		d.cache.Close()
	}
	if d.telemetry != nil {
		if err := d.telemetry.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("telemetry shutdown: %w", err))
		}
	}

	d.logger.Info().Msg("daemon stopped")
	return errors.Join(errs...)
}

func (d *Daemon) initTelemetry(ctx context.Context) error {
	tc := d.cfg.Telemetry
	if !tc.Enabled {
		return nil
	}
	provider, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        true,
		ServiceName:    d.cfg.Log.Service,
		ServiceVersion: d.cfg.Version,
		Environment:    tc.Environment,
		ExporterType:   tc.Exporter,
		Endpoint:       tc.Endpoint,
		SamplingRate:   tc.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("telemetry init failed: %w", err)
	}
	d.telemetry = provider
	d.logger.Info().
		Str("endpoint", tc.Endpoint).
		Float64("sampling_rate", tc.SampleRate).
		Msg("telemetry initialized")
	return nil
}

// watchSecret rotates the signer when the secret came from a file.
func (d *Daemon) watchSecret(ctx context.Context) {
	path := d.cfg.Links.SecretFile
	if path == "" {
		return
	}
	if fromFile, err := config.ReadSecretFile(path); err != nil || fromFile != d.cfg.Links.Secret {
		// LINK_SECRET took precedence over the file.
		return
	}
	w, err := linksign.WatchSecretFile(ctx, path, d.signer, d.logger)
	if err != nil {
		d.logger.Warn().Err(err).Msg("link secret file not watched; rotation needs a restart")
		return
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		<-w.Done()
	}()
}

func categoryNames(cats []library.Category) []string {
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}
