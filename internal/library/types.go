// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package library turns a remote file tree into per-category catalogs and
// serves lookups from cached, immutable snapshots.
package library

import (
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/seedlink/internal/linksign"
)

// Category tags one configured library root.
type Category string

const (
	Books  Category = "books"
	Movies Category = "movies"
	TV     Category = "tv"
	Music  Category = "music"
)

// ParseCategory validates a category name.
func ParseCategory(s string) (Category, error) {
	switch c := Category(s); c {
	case Books, Movies, TV, Music:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownCategory, s)
}

func (c Category) String() string { return string(c) }

var (
	// ErrNotFound is returned when a lookup matches nothing in the catalog.
	ErrNotFound = errors.New("library entry not found")
	// ErrUnknownCategory is returned for categories that are not configured.
	ErrUnknownCategory = errors.New("unknown library category")
)

// Entry is one indexed remote file. Entries are values and never mutated
// after a rebuild produced them.
type Entry struct {
	Category   Category `json:"category"`
	Group      string   `json:"group"`
	Title      string   `json:"title"`
	RemotePath string   `json:"path"`
	SizeBytes  int64    `json:"size"`
	Extension  string   `json:"extension"`
}

// DisplayTitle is Title without release tags, for humans. Title stays the
// identity used by lookups and tokens.
func (e Entry) DisplayTitle() string { return CleanTitle(e.Title) }

// Ref returns the identity of e as carried by link tokens.
func (e Entry) Ref() linksign.EntryRef {
	return linksign.EntryRef{
		Category: string(e.Category),
		Group:    e.Group,
		Title:    e.Title,
		Path:     e.RemotePath,
	}
}

// Status is the runtime state of one category's catalog.
type Status string

const (
	StatusNever    Status = "never"    // Not yet built
	StatusOK       Status = "ok"       // Fresh catalog
	StatusDegraded Status = "degraded" // Serving a stale catalog after a failed rebuild
	StatusFailed   Status = "failed"   // No catalog and the last rebuild failed
)

// CategoryStatus summarizes one category for health and admin views.
type CategoryStatus struct {
	Category  Category  `json:"category"`
	Status    Status    `json:"status"`
	Entries   int       `json:"entries"`
	Groups    int       `json:"groups"`
	BuiltAt   time.Time `json:"built_at,omitzero"`
	LastError string    `json:"last_error,omitempty"`
}
