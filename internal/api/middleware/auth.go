// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package middleware

import (
	"net/http"

	"github.com/ManuGH/seedlink/internal/auth"
	"github.com/ManuGH/seedlink/internal/log"
)

// RequireToken rejects requests without the expected bearer token.
func RequireToken(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !auth.AuthorizeRequest(r, expected) {
				log.WithComponentFromContext(r.Context(), "auth").Debug().
					Str(log.FieldEvent, "auth.rejected").
					Str(log.FieldRemote, r.RemoteAddr).
					Msg("admin API request without valid token")
				w.Header().Set("WWW-Authenticate", `Bearer realm="seedlink"`)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized","detail":"missing or invalid API token"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
