// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ManuGH/seedlink/internal/log"
)

// AccessLog logs one line per request. Probe endpoints log at debug.
func AccessLog() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newRecorder(w)
			next.ServeHTTP(rw, r)

			logger := log.WithComponentFromContext(r.Context(), "http")
			var ev *zerolog.Event
			switch status := rw.Status(); {
			case isProbe(r.URL.Path):
				ev = logger.Debug()
			case status >= http.StatusInternalServerError:
				ev = logger.Warn()
			default:
				ev = logger.Info()
			}
			ev.Str(log.FieldEvent, "http.request").
				Str(log.FieldMethod, r.Method).
				Str(log.FieldRoute, routePattern(r)).
				Int(log.FieldStatus, rw.Status()).
				Int64(log.FieldBytes, rw.bytes).
				Dur(log.FieldDuration, time.Since(start)).
				Str(log.FieldRemote, r.RemoteAddr).
				Msg("request handled")
		})
	}
}
