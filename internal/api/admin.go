// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ManuGH/seedlink/internal/gateway"
	"github.com/ManuGH/seedlink/internal/library"
	"github.com/ManuGH/seedlink/internal/linksign"
	"github.com/ManuGH/seedlink/internal/log"
)

const maxBodyBytes = 64 << 10

type categoriesResponse struct {
	Categories []library.CategoryStatus `json:"categories"`
}

type groupsResponse struct {
	Category library.Category `json:"category"`
	Groups   []string         `json:"groups"`
}

type entriesResponse struct {
	Category library.Category `json:"category"`
	Query    string           `json:"query,omitempty"`
	Entries  []library.Entry  `json:"entries"`
}

// LinkRequest asks for a signed link. Path selects one file of a title;
// without it the preferred format is picked.
type LinkRequest struct {
	Category   string `json:"category"`
	Group      string `json:"group"`
	Title      string `json:"title"`
	Path       string `json:"path,omitempty"`
	Action     string `json:"action,omitempty"`
	TTLSeconds int    `json:"ttlSeconds,omitempty"`
}

// LinkResponse carries the issued link.
type LinkResponse struct {
	URL       string        `json:"url"`
	DirectURL string        `json:"directUrl"`
	Action    string        `json:"action"`
	Entry     library.Entry `json:"entry"`
	ExpiresAt time.Time     `json:"expiresAt"`
}

type rescanResponse struct {
	Status     string             `json:"status"`
	Categories []library.Category `json:"categories,omitempty"`
}

func (s *Server) handleCategories(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, categoriesResponse{Categories: s.lib.Status()})
}

func (s *Server) handleGroups(w http.ResponseWriter, r *http.Request) {
	cat, err := library.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	groups, err := s.lib.Groups(r.Context(), cat)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if groups == nil {
		groups = []string{}
	}
	writeJSON(w, http.StatusOK, groupsResponse{Category: cat, Groups: groups})
}

func (s *Server) handleEntries(w http.ResponseWriter, r *http.Request) {
	cat, err := library.ParseCategory(chi.URLParam(r, "category"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	entries, err := s.lib.Entries(r.Context(), cat, q)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if entries == nil {
		entries = []library.Entry{}
	}
	writeJSON(w, http.StatusOK, entriesResponse{Category: cat, Query: q, Entries: entries})
}

func (s *Server) handleIssueLink(w http.ResponseWriter, r *http.Request) {
	var req LinkRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: %v", errBadRequest, err))
		return
	}

	action := linksign.Action(strings.ToLower(strings.TrimSpace(req.Action)))
	if action == "" {
		action = linksign.ActionDownload
	}
	if !action.Valid() {
		s.writeError(w, r, fmt.Errorf("%w: unknown action %q", errBadRequest, req.Action))
		return
	}
	if req.Group == "" || req.Title == "" {
		s.writeError(w, r, fmt.Errorf("%w: group and title are required", errBadRequest))
		return
	}
	if req.TTLSeconds < 0 {
		s.writeError(w, r, fmt.Errorf("%w: ttlSeconds cannot be negative", errBadRequest))
		return
	}
	cat, err := library.ParseCategory(req.Category)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	var e library.Entry
	if req.Path != "" {
		e, err = s.lib.Resolve(r.Context(), linksign.EntryRef{
			Category: string(cat), Group: req.Group, Title: req.Title, Path: req.Path,
		})
	} else {
		e, err = s.lib.Preferred(r.Context(), cat, req.Group, req.Title)
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	ttl := s.cfg.LinkTTL
	if req.TTLSeconds > 0 {
		ttl = min(time.Duration(req.TTLSeconds)*time.Second, s.cfg.MaxLinkTTL)
	}
	tok, err := s.signer.Issue(e.Ref(), action, ttl)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	log.WithContext(r.Context(), s.logger).Info().
		Str(log.FieldEvent, "link.issued").
		Str(log.FieldTokenID, tok.Fingerprint()).
		Str(log.FieldAction, string(action)).
		Str(log.FieldCategory, string(cat)).
		Str(log.FieldRemotePath, e.RemotePath).
		Time("expires_at", tok.ExpiresAt).
		Msg("link issued")

	writeJSON(w, http.StatusCreated, LinkResponse{
		URL:       gateway.PageURL(s.cfg.PublicBaseURL, tok),
		DirectURL: gateway.DirectURL(s.cfg.PublicBaseURL, tok),
		Action:    string(action),
		Entry:     e,
		ExpiresAt: tok.ExpiresAt,
	})
}

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	var cats []library.Category
	if raw := r.URL.Query().Get("category"); raw != "" {
		cat, err := library.ParseCategory(raw)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		if !s.enabled(cat) {
			s.writeError(w, r, fmt.Errorf("%w: %q", library.ErrUnknownCategory, raw))
			return
		}
		s.lib.Invalidate(cat)
		cats = []library.Category{cat}
	} else {
		s.lib.InvalidateAll()
	}
	if s.rescan != nil {
		s.rescan.Trigger(cats...)
	}

	log.WithContext(r.Context(), s.logger).Info().
		Str(log.FieldEvent, "library.rescan").
		Interface("categories", cats).
		Msg("rescan requested")
	writeJSON(w, http.StatusAccepted, rescanResponse{Status: "accepted", Categories: cats})
}

func (s *Server) enabled(cat library.Category) bool {
	for _, st := range s.lib.Status() {
		if st.Category == cat {
			return true
		}
	}
	return false
}
