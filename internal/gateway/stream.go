// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ManuGH/seedlink/internal/library"
	"github.com/ManuGH/seedlink/internal/linksign"
	"github.com/ManuGH/seedlink/internal/log"
	"github.com/ManuGH/seedlink/internal/metrics"
	"github.com/ManuGH/seedlink/internal/telemetry"
	"github.com/ManuGH/seedlink/internal/transcode"
)

// Stream modes, used as metric and span labels.
const (
	modePassthrough = "passthrough"
	modeCached      = "cached"
	modeTranscode   = "transcode"
)

func (g *Gateway) handleStream(w http.ResponseWriter, r *http.Request) {
	tok, e, logger, err := g.authorize(r, linksign.ActionStream)
	if err != nil {
		g.writeError(w, r, logger, err)
		return
	}
	if !isVideo(e.Extension) {
		g.writeError(w, r, logger, fmt.Errorf("%w: %s", ErrNotVideo, e.Extension))
		return
	}

	release, err := g.limiter.TryAcquire()
	if err != nil {
		g.writeError(w, r, logger, err)
		return
	}
	defer release()

	sessionID := uuid.NewString()
	ctx := log.ContextWithSessionID(r.Context(), sessionID)
	r = r.WithContext(ctx)
	logger = logger.With().Str(log.FieldSessionID, sessionID).Logger()

	mode := modeTranscode
	var cached string
	switch {
	case g.isNative(e.Extension):
		mode = modePassthrough
	case g.cache != nil:
		if p, ok := g.cache.Lookup(transcode.Key(e.Ref(), g.cfg.Profile.Name)); ok {
			mode, cached = modeCached, p
		}
	}

	ctx, span := telemetry.Start(ctx, "seedlink/gateway", "gateway.stream",
		telemetry.StreamAttributes(string(tok.Action), tok.Fingerprint(), mode, g.cfg.Profile.Name)...)

	// One watchdog bounds every mode so a stalled source or reader cannot
	// hold the admission slot. Firing cancels the source and unblocks writes.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r = r.WithContext(ctx)
	rc := http.NewResponseController(w)
	wd := startWatchdog(g.cfg.IdleTimeout, g.cfg.MaxDuration, func() {
		logger.Warn().Str(log.FieldMode, mode).Msg("stream timed out, stopping")
		cancel()
		if err := rc.SetWriteDeadline(time.Now()); err != nil && !errors.Is(err, http.ErrNotSupported) {
			logger.Debug().Err(err).Msg("set write deadline")
		}
	})

	start := g.now()
	logger.Info().Str(log.FieldMode, mode).Msg("stream started")

	var (
		n      int64
		status int
	)
	switch mode {
	case modePassthrough:
		status, n, err = g.serveRemote(w, r, e, "inline", wd, logger)
	case modeCached:
		status, n, err = g.serveCached(w, r, e, cached, wd)
	default:
		n, err = g.transcode(w, r, e, wd, logger)
		if n > 0 {
			status = http.StatusOK
		}
	}
	wd.stop()
	if err != nil && wd.expired() && !errors.Is(err, transcode.ErrTranscodeTimeout) {
		err = fmt.Errorf("%w: %v", transcode.ErrTranscodeTimeout, err)
	}
	if err != nil && status == 0 {
		if wd.expired() {
			_ = rc.SetWriteDeadline(time.Time{})
		}
		g.writeError(w, r, logger, err)
	}
	telemetry.End(span, err)

	outcome := streamOutcome(r.Context(), wd.expired(), err)
	d := g.now().Sub(start)
	metrics.RecordStreamSession(mode, outcome, d, n)

	ev := logger.Info()
	if outcome == "failed" || outcome == "timeout" {
		ev = logger.Warn()
	}
	ev.Err(err).
		Str(log.FieldMode, mode).
		Str("outcome", outcome).
		Int64(log.FieldBytes, n).
		Dur(log.FieldDuration, d).
		Msg("stream ended")
}

func streamOutcome(ctx context.Context, timedOut bool, err error) string {
	switch {
	case err == nil:
		return "ok"
	case timedOut || errors.Is(err, transcode.ErrTranscodeTimeout):
		return "timeout"
	case ctx.Err() != nil:
		return "client_gone"
	case errors.Is(err, transcode.ErrTranscodeFailed):
		return "failed"
	default:
		return "error"
	}
}

func (g *Gateway) serveCached(w http.ResponseWriter, r *http.Request, e library.Entry, path string, wd *watchdog) (int, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return 0, 0, err
	}

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Content-Disposition", disposition("inline", withExt(e.RemotePath, ".mp4")))
	sw := &statusWriter{ResponseWriter: w}
	http.ServeContent(sw, r, "", fi.ModTime(), progressSeeker{Reader: progressReader{r: f, wd: wd}, Seeker: f})
	return sw.status, sw.n, r.Context().Err()
}

// transcode pipes the remote file through the runner into w. The returned
// count is the number of body bytes written; when it is 0 the caller still
// owns the response.
func (g *Gateway) transcode(w http.ResponseWriter, r *http.Request, e library.Entry, wd *watchdog, logger zerolog.Logger) (int64, error) {
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	src, err := g.source.Open(ctx, e.RemotePath, nil)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := src.Close(); err != nil {
			logger.Debug().Err(err).Msg("close remote reader")
		}
	}()

	proc, err := g.runner.Start(ctx, src, g.cfg.Profile)
	if err != nil {
		return 0, err
	}
	defer func() {
		if err := proc.Terminate(); err != nil {
			logger.Error().Err(err).Msg("transcoder did not stop")
		}
	}()

	var pending *transcode.Pending
	if g.cache != nil {
		pending, err = g.cache.Create(transcode.Key(e.Ref(), g.cfg.Profile.Name))
		if err != nil {
			logger.Warn().Err(err).Msg("transcode cache unavailable")
			pending = nil
		}
	}
	defer func() {
		if pending != nil {
			pending.Abort()
		}
	}()

	stopTerm := context.AfterFunc(ctx, func() { _ = proc.Terminate() })
	defer stopTerm()

	rc := http.NewResponseController(w)
	out := proc.Stdout()
	buf := make([]byte, g.cfg.ChunkSize)
	var written int64
	for {
		nr, rerr := out.Read(buf)
		if nr > 0 {
			wd.touch()
			if written == 0 {
				h := w.Header()
				h.Set("Content-Type", "video/mp4")
				h.Set("Content-Disposition", disposition("inline", withExt(e.RemotePath, ".mp4")))
				h.Set("Cache-Control", "no-store")
				h.Set("Accept-Ranges", "none")
				w.WriteHeader(http.StatusOK)
			}
			nw, werr := w.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, werr
			}
			if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
				return written, err
			}
			if pending != nil {
				if _, err := pending.Write(buf[:nr]); err != nil {
					logger.Debug().Err(err).Msg("not caching transcode")
					pending.Abort()
					pending = nil
				}
			}
		}
		if rerr != nil {
			break
		}
	}

	waitErr := proc.Wait()
	switch {
	case wd.expired():
		return written, transcode.ErrTranscodeTimeout
	case ctx.Err() != nil:
		return written, ctx.Err()
	case waitErr != nil:
		return written, waitErr
	}

	if pending != nil {
		if err := pending.Commit(); err != nil {
			logger.Warn().Err(err).Msg("failed to cache transcode")
		}
		pending = nil
	}
	return written, nil
}

// statusWriter records what http.ServeContent wrote.
type statusWriter struct {
	http.ResponseWriter
	status int
	n      int64
}

func (s *statusWriter) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusWriter) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.n += int64(n)
	return n, err
}

func (s *statusWriter) Unwrap() http.ResponseWriter { return s.ResponseWriter }
