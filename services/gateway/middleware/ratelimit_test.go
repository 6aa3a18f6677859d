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
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianChat/services/gateway/observability"
	"github.com/AleutianAI/AleutianChat/services/gateway/ratelimit"
)

func newLimitedRouter(t *testing.T, limit int) (*gin.Engine, func(subject string) string) {
	t.Helper()
	tokens := newTestTokens(t)
	limiter := ratelimit.NewFixedWindowLimiter(limit, time.Minute)

	router := gin.New()
	router.POST("/ping", RateLimit(limiter, tokens, "chat"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"pong": true})
	})

	issue := func(subject string) string {
		token, err := tokens.IssueAccessToken(subject)
		require.NoError(t, err)
		return token
	}
	return router, issue
}

func TestRateLimit_RejectsAfterLimit(t *testing.T) {
	router, _ := newLimitedRouter(t, 2)

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/ping", nil))
		assert.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/ping", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))

	var resp datatypes.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Error)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Greater(t, resp.RetryAfterSeconds, 0)
}

func TestRateLimit_TokenSubjectsPartitioned(t *testing.T) {
	router, issue := newLimitedRouter(t, 1)

	send := func(token string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/ping", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		router.ServeHTTP(w, req)
		return w.Code
	}

	alice := issue("alice")
	bob := issue("bob")

	assert.Equal(t, http.StatusOK, send(alice))
	assert.Equal(t, http.StatusTooManyRequests, send(alice))

	// Bob has his own window even from the same client IP.
	assert.Equal(t, http.StatusOK, send(bob))
}

func TestRateLimit_ForgedTokenFallsBackToIP(t *testing.T) {
	router, _ := newLimitedRouter(t, 1)

	send := func(header string) int {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/ping", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		router.ServeHTTP(w, req)
		return w.Code
	}

	// A garbage token buckets by IP, same as no token at all.
	assert.Equal(t, http.StatusOK, send("Bearer garbage"))
	assert.Equal(t, http.StatusTooManyRequests, send(""))
}

func TestRateLimit_RejectionCountsAsError(t *testing.T) {
	m := observability.DefaultMetrics
	if m == nil {
		m = observability.InitMetrics()
	}

	tokens := newTestTokens(t)
	limiter := ratelimit.NewFixedWindowLimiter(1, time.Minute)
	router := gin.New()
	router.POST("/login", RateLimit(limiter, tokens, "auth"), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	errorsBefore := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("login", "rate_limited"))
	rejectionsBefore := testutil.ToFloat64(m.RateLimitRejectionsTotal.WithLabelValues("auth"))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest("POST", "/login", nil))
	}

	errorsAfter := testutil.ToFloat64(m.ErrorsTotal.WithLabelValues("login", "rate_limited"))
	rejectionsAfter := testutil.ToFloat64(m.RateLimitRejectionsTotal.WithLabelValues("auth"))
	assert.Equal(t, 1.0, errorsAfter-errorsBefore)
	assert.Equal(t, 1.0, rejectionsAfter-rejectionsBefore)
}
