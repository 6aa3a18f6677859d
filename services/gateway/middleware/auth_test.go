// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianChat/services/gateway/auth"
	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestTokens(t *testing.T) *auth.TokenService {
	t.Helper()
	s, err := auth.NewTokenService([]byte("test-secret"), 30*time.Minute, 24*time.Hour)
	require.NoError(t, err)
	return s
}

// protectedRouter builds a router with one protected echo endpoint.
func protectedRouter(tokens *auth.TokenService) *gin.Engine {
	router := gin.New()
	router.GET("/protected", RequireAccessToken(tokens), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": GetSubject(c)})
	})
	return router
}

// =============================================================================
// extractBearerToken Tests
// =============================================================================

func TestExtractBearerToken(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"valid token", "Bearer abc123", "abc123"},
		{"case insensitive prefix", "bearer abc123", "abc123"},
		{"missing header", "", ""},
		{"no bearer prefix", "abc123", ""},
		{"basic auth", "Basic abc123", ""},
		{"only bearer", "Bearer", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _ := gin.CreateTestContext(httptest.NewRecorder())
			c.Request = httptest.NewRequest("GET", "/", nil)
			if tt.header != "" {
				c.Request.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.want, extractBearerToken(c))
		})
	}
}

// =============================================================================
// RequireAccessToken Tests
// =============================================================================

func TestRequireAccessToken_ValidToken(t *testing.T) {
	tokens := newTestTokens(t)
	router := protectedRouter(tokens)

	access, err := tokens.IssueAccessToken("alice")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "alice")
}

func TestRequireAccessToken_MissingHeader(t *testing.T) {
	router := protectedRouter(newTestTokens(t))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/protected", nil))

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var resp datatypes.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Error)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "/protected", resp.Path)
}

func TestRequireAccessToken_RefreshTokenRejected(t *testing.T) {
	tokens := newTestTokens(t)
	router := protectedRouter(tokens)

	refresh, err := tokens.IssueRefreshToken("alice")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+refresh)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAccessToken_ExpiredToken(t *testing.T) {
	now := time.Now()
	tokens := newTestTokens(t).WithClock(func() time.Time { return now })
	router := protectedRouter(tokens)

	access, err := tokens.IssueAccessToken("alice")
	require.NoError(t, err)

	now = now.Add(31 * time.Minute)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+access)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireAccessToken_GarbageToken(t *testing.T) {
	router := protectedRouter(newTestTokens(t))

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/protected", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// =============================================================================
// Context Helper Tests
// =============================================================================

func TestGetSubject_NotSet(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.Empty(t, GetSubject(c))
}

func TestSetGetSubject(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	SetSubject(c, "alice")
	assert.Equal(t, "alice", GetSubject(c))
}
