// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

const unmatchedRoute = "unmatched"

// routePattern returns the chi pattern that handled r. Raw paths are never
// returned because link paths carry tokens.
func routePattern(r *http.Request) string {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return unmatchedRoute
	}
	p := rctx.RoutePattern()
	if p == "" {
		return unmatchedRoute
	}
	if p != "/" {
		p = strings.TrimSuffix(p, "/")
	}
	return p
}

// isProbe reports the endpoints polled by orchestrators and scrapers.
func isProbe(path string) bool {
	switch path {
	case "/healthz", "/readyz", "/metrics":
		return true
	}
	return false
}

// isLinkPath reports paths that carry a signed token.
func isLinkPath(path string) bool {
	for _, prefix := range []string{"/links/", "/download/", "/stream/"} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
