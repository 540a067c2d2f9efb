// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"time"

	"github.com/ManuGH/seedlink/internal/metrics"
)

// Metrics records Prometheus metrics for every request, labelled by route
// pattern to keep cardinality bounded.
func Metrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := newRecorder(w)
			next.ServeHTTP(rw, r)
			metrics.RecordHTTPRequest(r.Method, routePattern(r), rw.Status(), time.Since(start))
		})
	}
}
