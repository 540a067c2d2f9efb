// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/seedlink/internal/library"
	"github.com/ManuGH/seedlink/internal/log"
	"github.com/ManuGH/seedlink/internal/remote"
)

var errBadRequest = errors.New("bad request")

// apiError is the JSON error body of the admin API.
type apiError struct {
	Error     string `json:"error"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"requestId,omitempty"`
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, library.ErrUnknownCategory):
		return http.StatusNotFound, "unknown_category"
	case errors.Is(err, library.ErrNotFound), errors.Is(err, remote.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, remote.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "remote_timeout"
	case errors.Is(err, remote.ErrUnreachable), errors.Is(err, remote.ErrAuthFailed):
		return http.StatusBadGateway, "remote_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// writeError maps err to a status and writes the JSON error body.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if r.Context().Err() != nil {
		return
	}
	status, code := statusFor(err)
	logger := log.WithContext(r.Context(), s.logger)
	ev := logger.Debug()
	if status >= http.StatusInternalServerError {
		ev = logger.Warn()
	}
	ev.Err(err).Int(log.FieldStatus, status).Msg("admin request failed")

	detail := err.Error()
	if status == http.StatusInternalServerError {
		detail = "An unexpected error occurred."
	}
	writeJSON(w, status, apiError{
		Error:     code,
		Detail:    detail,
		RequestID: log.RequestIDFromContext(r.Context()),
	})
}
