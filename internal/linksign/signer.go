// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package linksign

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ManuGH/seedlink/internal/metrics"
)

// MinSecretLen is the smallest accepted signing secret in bytes.
const MinSecretLen = 16

type linkClaims struct {
	Ref    EntryRef `json:"ref"`
	Action Action   `json:"act"`
	jwt.RegisteredClaims
}

// Signer issues and verifies tokens with a shared HMAC secret.
type Signer struct {
	secret atomic.Pointer[[]byte]
	now    func() time.Time
	parser *jwt.Parser
}

// Option configures a Signer.
type Option func(*Signer)

// WithClock injects the time source used for iat, exp and expiry checks.
func WithClock(now func() time.Time) Option {
	return func(s *Signer) { s.now = now }
}

// NewSigner creates a Signer. Secrets shorter than MinSecretLen are rejected.
func NewSigner(secret []byte, opts ...Option) (*Signer, error) {
	s := &Signer{
		now:    time.Now,
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.Rotate(secret); err != nil {
		return nil, err
	}
	return s, nil
}

// Rotate replaces the signing secret. Tokens signed with the old secret stop
// verifying immediately.
func (s *Signer) Rotate(secret []byte) error {
	if len(secret) < MinSecretLen {
		return fmt.Errorf("%w: need %d bytes, got %d", ErrWeakSecret, MinSecretLen, len(secret))
	}
	key := append([]byte(nil), secret...)
	s.secret.Store(&key)
	return nil
}

func (s *Signer) key() []byte {
	return *s.secret.Load()
}

// Issue mints a token for ref valid for at least ttl from now. The exp claim
// has whole-second resolution, so the expiry is rounded up to the next second.
func (s *Signer) Issue(ref EntryRef, action Action, ttl time.Duration) (Token, error) {
	if ttl <= 0 {
		return Token{}, fmt.Errorf("issue: ttl must be positive, got %s", ttl)
	}
	now := s.now()
	return s.issue(ref, action, now, ceilSecond(now.Add(ttl)))
}

func ceilSecond(t time.Time) time.Time {
	floor := t.Truncate(time.Second)
	if floor.Equal(t) {
		return t
	}
	return floor.Add(time.Second)
}

func (s *Signer) issue(ref EntryRef, action Action, now, exp time.Time) (Token, error) {
	if !action.Valid() {
		return Token{}, fmt.Errorf("issue: unknown action %q", action)
	}
	if ref.IsZero() {
		return Token{}, fmt.Errorf("issue: empty entry reference")
	}

	claims := linkClaims{
		Ref:    ref,
		Action: action,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key())
	if err != nil {
		return Token{}, fmt.Errorf("issue: sign: %w", err)
	}
	metrics.RecordLinkIssued(string(action))

	return Token{
		Ref:       ref,
		Action:    action,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		Nonce:     claims.ID,
		Raw:       raw,
	}, nil
}

// Verify checks the MAC before looking at any claim, then the expiry.
// A token is valid up to and including its expiry instant.
func (s *Signer) Verify(raw string) (Token, error) {
	tok, err := s.verify(raw)
	metrics.RecordLinkVerified(verifyResult(err))
	return tok, err
}

func (s *Signer) verify(raw string) (Token, error) {
	parts := strings.Split(raw, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Token{}, ErrMalformed
	}

	sig, err := s.parser.DecodeSegment(parts[2])
	if err != nil {
		return Token{}, fmt.Errorf("%w: signature segment: %v", ErrMalformed, err)
	}
	signingString := parts[0] + "." + parts[1]
	if err := jwt.SigningMethodHS256.Verify(signingString, sig, s.key()); err != nil {
		return Token{}, ErrSignatureMismatch
	}

	var claims linkClaims
	parsed, _, err := s.parser.ParseUnverified(raw, &claims)
	if err != nil {
		return Token{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if parsed.Method == nil || parsed.Method.Alg() != jwt.SigningMethodHS256.Alg() {
		return Token{}, fmt.Errorf("%w: unexpected algorithm", ErrMalformed)
	}
	if !claims.Action.Valid() || claims.Ref.IsZero() || claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return Token{}, fmt.Errorf("%w: missing claims", ErrMalformed)
	}

	tok := Token{
		Ref:       claims.Ref,
		Action:    claims.Action,
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
		Nonce:     claims.ID,
		Raw:       raw,
	}
	if s.now().After(tok.ExpiresAt) {
		return tok, ErrExpired
	}
	return tok, nil
}

// Derive issues a token for the same entry with another action. The derived
// token expires exactly when parent does.
func (s *Signer) Derive(parent Token, action Action) (Token, error) {
	now := s.now()
	if now.After(parent.ExpiresAt) {
		return Token{}, ErrExpired
	}
	return s.issue(parent.Ref, action, now, parent.ExpiresAt)
}

func verifyResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrSignatureMismatch):
		return "signature_mismatch"
	default:
		return "malformed"
	}
}
