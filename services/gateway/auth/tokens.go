// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package auth provides credential verification and JWT token issuance,
// verification, and refresh for the chat gateway.
//
// Tokens are stateless HS256 bearer tokens. The token kind ("access" or
// "refresh") is carried inside the signed payload, never inferred from
// context, so a refresh token can never be accepted where an access
// token is required and vice versa. There is no server-side revocation
// list and refresh tokens are deliberately not single-use; both are
// documented simplifications of this design, not gaps to patch silently.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token kinds carried in the signed "type" claim.
const (
	// TokenKindAccess is the short-lived kind authorizing API calls.
	TokenKindAccess = "access"

	// TokenKindRefresh is the long-lived kind usable only to mint a
	// fresh token pair via Refresh.
	TokenKindRefresh = "refresh"
)

var (
	// ErrInvalidToken is returned when a token cannot be parsed or its
	// signature does not validate.
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when a token's expiry has passed.
	ErrTokenExpired = errors.New("token expired")

	// ErrWrongTokenKind is returned when the signed "type" claim does
	// not match the kind the caller required.
	ErrWrongTokenKind = errors.New("wrong token kind")
)

// Claims is the signed JWT payload for gateway tokens.
//
// Subject carries the authenticated username; TokenType carries the
// token kind inside the signed payload.
type Claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"type"`
}

// =============================================================================
// Token Service
// =============================================================================

// TokenService issues, verifies, and refreshes gateway tokens.
//
// # Description
//
// All tokens are signed HS256 with a single shared secret. Access tokens
// are short-lived (minutes), refresh tokens long-lived (days); both TTLs
// are configured at construction. The clock is injectable so expiry
// behavior is testable without sleeping.
//
// # Thread Safety
//
// Safe for concurrent use. The service holds no mutable state.
type TokenService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
	parser     *jwt.Parser
}

// NewTokenService creates a TokenService with the given signing secret
// and token lifetimes.
//
// # Inputs
//
//   - secret: HS256 signing key. Must be non-empty.
//   - accessTTL: lifetime of access tokens (minutes scale).
//   - refreshTTL: lifetime of refresh tokens (days scale).
//
// # Outputs
//
//   - *TokenService: ready to issue and verify tokens.
//   - error: non-nil if the secret is empty.
func NewTokenService(secret []byte, accessTTL, refreshTTL time.Duration) (*TokenService, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("token service requires a non-empty signing secret")
	}
	s := &TokenService{
		secret:     secret,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s, nil
}

// WithClock overrides the service clock. Intended for tests.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// IssueAccessToken signs a short-lived access token for subject.
func (s *TokenService) IssueAccessToken(subject string) (string, error) {
	return s.issue(subject, TokenKindAccess, s.accessTTL)
}

// IssueRefreshToken signs a long-lived refresh token for subject.
func (s *TokenService) IssueRefreshToken(subject string) (string, error) {
	return s.issue(subject, TokenKindRefresh, s.refreshTTL)
}

func (s *TokenService) issue(subject, kind string, ttl time.Duration) (string, error) {
	now := s.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		TokenType: kind,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign %s token: %w", kind, err)
	}
	return signed, nil
}

// Verify parses and validates a token string, requiring the given kind.
//
// # Description
//
// Fails with ErrInvalidToken when the signature does not validate or
// the token is malformed, ErrTokenExpired when exp <= now, and
// ErrWrongTokenKind when the signed "type" claim differs from kind.
// Callers map all three to an unauthenticated-request response; none is
// ever retried.
//
// # Outputs
//
//   - *Claims: the validated claims, including the subject.
//   - error: one of the sentinel errors above.
func (s *TokenService) Verify(tokenString, kind string) (*Claims, error) {
	claims := &Claims{}
	token, err := s.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != kind {
		return nil, fmt.Errorf("%w: got %q, need %q", ErrWrongTokenKind, claims.TokenType, kind)
	}
	return claims, nil
}

// Refresh verifies a refresh token and issues a fresh pair for the same
// subject.
//
// The presented refresh token stays valid until its own expiry; there
// is no replay detection in this design.
func (s *TokenService) Refresh(refreshToken string) (access, refresh string, err error) {
	claims, err := s.Verify(refreshToken, TokenKindRefresh)
	if err != nil {
		return "", "", err
	}
	access, err = s.IssueAccessToken(claims.Subject)
	if err != nil {
		return "", "", err
	}
	refresh, err = s.IssueRefreshToken(claims.Subject)
	if err != nil {
		return "", "", err
	}
	return access, refresh, nil
}

// ExtractSubject decodes the subject of a token on a best-effort basis.
//
// # Description
//
// Used only to derive a rate-limit key before full authentication runs.
// The signature is checked so an attacker cannot choose an arbitrary
// bucket, but no kind or expiry policy is applied beyond what parsing
// enforces and failures are never surfaced: the empty string tells the
// caller to fall back to the network-origin identity. This path is
// advisory and must never feed an authorization decision; that is what
// Verify is for.
func (s *TokenService) ExtractSubject(tokenString string) string {
	if tokenString == "" {
		return ""
	}
	claims := &Claims{}
	_, err := s.parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	})
	if err != nil {
		return ""
	}
	return claims.Subject
}
