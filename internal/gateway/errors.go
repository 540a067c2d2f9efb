// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/ManuGH/seedlink/internal/admission"
	"github.com/ManuGH/seedlink/internal/library"
	"github.com/ManuGH/seedlink/internal/linksign"
	"github.com/ManuGH/seedlink/internal/remote"
	"github.com/ManuGH/seedlink/internal/transcode"
)

var (
	// ErrWrongAction means a valid token was presented on a route it does
	// not grant.
	ErrWrongAction = errors.New("link not valid for this action")
	// ErrNotVideo means a stream was requested for a non-video entry.
	ErrNotVideo = errors.New("entry is not a video")
	// errRangeNotSatisfiable is mapped to 416.
	errRangeNotSatisfiable = errors.New("range not satisfiable")
)

// statusFor maps an error onto the HTTP status and the public message.
func statusFor(err error) (int, string) {
	switch {
	case linksign.IsRejection(err), errors.Is(err, ErrWrongAction):
		msg := "link invalid"
		if errors.Is(err, linksign.ErrExpired) {
			msg = "link expired"
		}
		return http.StatusForbidden, msg
	case errors.Is(err, library.ErrNotFound),
		errors.Is(err, library.ErrUnknownCategory),
		errors.Is(err, remote.ErrNotFound):
		return http.StatusNotFound, "file not found"
	case errors.Is(err, ErrNotVideo):
		return http.StatusUnsupportedMediaType, "not a video"
	case errors.Is(err, errRangeNotSatisfiable):
		return http.StatusRequestedRangeNotSatisfiable, "range not satisfiable"
	case errors.Is(err, admission.ErrOverloaded):
		return http.StatusServiceUnavailable, "too many streams, try again shortly"
	case errors.Is(err, transcode.ErrTranscodeTimeout), errors.Is(err, remote.ErrTimeout):
		return http.StatusGatewayTimeout, "upstream timed out"
	case errors.Is(err, transcode.ErrTranscodeFailed):
		return http.StatusBadGateway, "transcoding failed"
	case errors.Is(err, errSubtitleTooLarge):
		return http.StatusBadGateway, "subtitle file too large"
	case errors.Is(err, remote.ErrUnreachable), errors.Is(err, remote.ErrAuthFailed):
		return http.StatusBadGateway, "library storage unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

// writeError renders err as a plain text response. Nothing is written when
// the client already went away.
func (g *Gateway) writeError(w http.ResponseWriter, r *http.Request, logger zerolog.Logger, err error) {
	if errors.Is(err, context.Canceled) && r.Context().Err() != nil {
		logger.Debug().Err(err).Msg("client gone before response")
		return
	}

	status, msg := statusFor(err)
	ev := logger.Debug()
	if status >= http.StatusInternalServerError {
		ev = logger.Warn()
	}
	ev.Err(err).Int("status", status).Msg("request rejected")

	h := w.Header()
	h.Del("Content-Length")
	h.Del("Content-Disposition")
	if status == http.StatusServiceUnavailable {
		h.Set("Retry-After", strconv.Itoa(int(g.cfg.RetryAfter.Seconds())))
	}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, "%d %s: %s\n", status, http.StatusText(status), msg)
}
