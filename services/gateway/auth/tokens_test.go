// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Setup
// =============================================================================

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	s, err := NewTokenService([]byte("test-secret"), 30*time.Minute, 7*24*time.Hour)
	require.NoError(t, err)
	return s
}

// =============================================================================
// Constructor Tests
// =============================================================================

func TestNewTokenService_EmptySecret(t *testing.T) {
	_, err := NewTokenService(nil, time.Minute, time.Hour)
	assert.Error(t, err)
}

// =============================================================================
// Issue / Verify Tests
// =============================================================================

func TestTokenService_AccessTokenRoundtrip(t *testing.T) {
	s := newTestTokenService(t)

	token, err := s.IssueAccessToken("alice")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := s.Verify(token, TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, TokenKindAccess, claims.TokenType)
	assert.True(t, claims.ExpiresAt.After(claims.IssuedAt.Time))
}

func TestTokenService_RefreshTokenRoundtrip(t *testing.T) {
	s := newTestTokenService(t)

	token, err := s.IssueRefreshToken("alice")
	require.NoError(t, err)

	claims, err := s.Verify(token, TokenKindRefresh)
	require.NoError(t, err)
	assert.Equal(t, TokenKindRefresh, claims.TokenType)
}

func TestTokenService_WrongKindRejected(t *testing.T) {
	s := newTestTokenService(t)

	access, err := s.IssueAccessToken("alice")
	require.NoError(t, err)
	refresh, err := s.IssueRefreshToken("alice")
	require.NoError(t, err)

	_, err = s.Verify(access, TokenKindRefresh)
	assert.ErrorIs(t, err, ErrWrongTokenKind)

	_, err = s.Verify(refresh, TokenKindAccess)
	assert.ErrorIs(t, err, ErrWrongTokenKind)
}

func TestTokenService_WrongSecretRejected(t *testing.T) {
	s := newTestTokenService(t)
	other, err := NewTokenService([]byte("other-secret"), 30*time.Minute, time.Hour)
	require.NoError(t, err)

	token, err := s.IssueAccessToken("alice")
	require.NoError(t, err)

	_, err = other.Verify(token, TokenKindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_GarbageRejected(t *testing.T) {
	s := newTestTokenService(t)

	_, err := s.Verify("not-a-jwt", TokenKindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = s.Verify("", TokenKindAccess)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenService_ExpiredToken(t *testing.T) {
	now := time.Now()
	s := newTestTokenService(t).WithClock(func() time.Time { return now })

	token, err := s.IssueAccessToken("alice")
	require.NoError(t, err)

	// Still valid just before expiry.
	now = now.Add(29 * time.Minute)
	_, err = s.Verify(token, TokenKindAccess)
	require.NoError(t, err)

	// Rejected after expiry.
	now = now.Add(2 * time.Minute)
	_, err = s.Verify(token, TokenKindAccess)
	assert.ErrorIs(t, err, ErrTokenExpired)
}

// Verification must follow the service clock, not the wall clock: a
// clock installed after construction drives expiry in both directions.
func TestTokenService_VerifyUsesServiceClock(t *testing.T) {
	s := newTestTokenService(t)

	token, err := s.IssueAccessToken("alice")
	require.NoError(t, err)

	// A service clock far in the future rejects a wall-clock-fresh token.
	s.WithClock(func() time.Time { return time.Now().Add(24 * time.Hour) })
	_, err = s.Verify(token, TokenKindAccess)
	assert.ErrorIs(t, err, ErrTokenExpired)

	// Moving the clock back makes the same token verifiable again.
	s.WithClock(time.Now)
	claims, err := s.Verify(token, TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
}

// =============================================================================
// Refresh Tests
// =============================================================================

func TestTokenService_Refresh(t *testing.T) {
	s := newTestTokenService(t)

	refresh, err := s.IssueRefreshToken("alice")
	require.NoError(t, err)

	newAccess, newRefresh, err := s.Refresh(refresh)
	require.NoError(t, err)

	claims, err := s.Verify(newAccess, TokenKindAccess)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)

	// The new refresh token works too; the old one is not revoked.
	_, _, err = s.Refresh(newRefresh)
	require.NoError(t, err)
	_, _, err = s.Refresh(refresh)
	require.NoError(t, err)
}

func TestTokenService_RefreshRejectsAccessToken(t *testing.T) {
	s := newTestTokenService(t)

	access, err := s.IssueAccessToken("alice")
	require.NoError(t, err)

	_, _, err = s.Refresh(access)
	assert.ErrorIs(t, err, ErrWrongTokenKind)
}

// =============================================================================
// ExtractSubject Tests
// =============================================================================

func TestTokenService_ExtractSubject(t *testing.T) {
	s := newTestTokenService(t)

	token, err := s.IssueAccessToken("alice")
	require.NoError(t, err)

	assert.Equal(t, "alice", s.ExtractSubject(token))
	assert.Empty(t, s.ExtractSubject(""))
	assert.Empty(t, s.ExtractSubject("garbage"))
}

func TestTokenService_ExtractSubjectForeignSignature(t *testing.T) {
	s := newTestTokenService(t)
	other, err := NewTokenService([]byte("other-secret"), time.Minute, time.Hour)
	require.NoError(t, err)

	forged, err := other.IssueAccessToken("mallory")
	require.NoError(t, err)

	// A token signed with another secret must not choose a bucket.
	assert.Empty(t, s.ExtractSubject(forged))
}
