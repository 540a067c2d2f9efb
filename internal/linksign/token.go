// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package linksign issues and verifies self-contained, time-limited access
// tokens for library entries. Tokens are compact HS256 JWS values; nothing
// is stored server side, so rotating the secret revokes every outstanding link.
package linksign

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// Action is the permitted operation of a token.
type Action string

const (
	ActionDownload Action = "download"
	ActionStream   Action = "stream"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a == ActionDownload || a == ActionStream
}

// EntryRef identifies one catalog entry. It is the full identity tuple so a
// verified token can be resolved against the current catalog.
type EntryRef struct {
	Category string `json:"c"`
	Group    string `json:"g"`
	Title    string `json:"t"`
	Path     string `json:"p"`
}

// IsZero reports whether no identity field is set.
func (r EntryRef) IsZero() bool {
	return r == EntryRef{}
}

// Token is a verified or freshly issued access token.
type Token struct {
	Ref       EntryRef
	Action    Action
	IssuedAt  time.Time
	ExpiresAt time.Time
	Nonce     string
	Raw       string
}

// Fingerprint returns a short, log-safe identifier for the token.
func (t Token) Fingerprint() string {
	sum := sha256.Sum256([]byte(t.Nonce))
	return hex.EncodeToString(sum[:4])
}

// Remaining returns the validity left at now, never negative.
func (t Token) Remaining(now time.Time) time.Duration {
	if d := t.ExpiresAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

var (
	ErrMalformed         = errors.New("link token malformed")
	ErrSignatureMismatch = errors.New("link token signature mismatch")
	ErrExpired           = errors.New("link token expired")
	ErrWeakSecret        = errors.New("link secret too short")
)

// IsRejection reports whether err is one of the verification failures.
func IsRejection(err error) bool {
	return errors.Is(err, ErrMalformed) || errors.Is(err, ErrSignatureMismatch) || errors.Is(err, ErrExpired)
}
