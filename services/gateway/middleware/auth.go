// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package middleware provides HTTP middleware for the chat gateway.
//
// This package contains middleware for JWT authentication, fixed-window
// rate limiting, structured request logging, and panic recovery. The
// pipeline order is significant:
//
//	Request
//	   │
//	   ▼
//	RequestLogger ── logs every outcome, including rejections below
//	   │
//	   ▼
//	Recovery ────── converts panics to a generic 500 envelope
//	   │
//	   ▼
//	RateLimit ───── counts the attempt before identity is proven
//	   │
//	   ▼
//	RequireAccessToken
//	   │
//	   ▼
//	Handler (retrieves identity via GetSubject)
//
// Rate limiting runs before authentication so that a burst of requests
// with bad credentials still consumes the caller's window.
package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianChat/services/gateway/auth"
	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianChat/services/gateway/observability"
)

// =============================================================================
// Context Keys
// =============================================================================

// subjectKey is the context key for the authenticated username.
// Using a namespaced key prevents collisions with other context values.
const subjectKey = "aleutian_auth_subject"

// =============================================================================
// Context Helpers
// =============================================================================

// SetSubject stores the authenticated username in the Gin context.
//
// Called by RequireAccessToken after successful token verification.
// Safe to call concurrently (Gin context is request-scoped).
func SetSubject(c *gin.Context, subject string) {
	c.Set(subjectKey, subject)
}

// GetSubject retrieves the authenticated username from the Gin context.
//
// # Description
//
// Called by handlers to access the authenticated user's identity.
// Returns empty string if no subject is present (request not
// authenticated, or middleware not applied to the route).
//
// # Inputs
//
//   - c: Gin context. Must not be nil.
//
// # Outputs
//
//   - string: The username, or empty string if not authenticated
//
// # Thread Safety
//
// Safe to call concurrently (Gin context is request-scoped).
func GetSubject(c *gin.Context) string {
	if v, exists := c.Get(subjectKey); exists {
		if subject, ok := v.(string); ok {
			return subject
		}
	}
	return ""
}

// =============================================================================
// Auth Middleware
// =============================================================================

// RequireAccessToken creates a Gin middleware that authenticates
// requests with a bearer access token.
//
// # Description
//
// Extracts the bearer token from the Authorization header, verifies it
// as an access token (refresh tokens are rejected even when otherwise
// valid), and stores the token subject in the context for downstream
// handlers. Any failure aborts the request with a 401 error envelope;
// the envelope message never distinguishes a missing header from an
// expired or forged token.
//
// # Inputs
//
//   - tokens: Token service used for verification. Must not be nil.
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware function ready for use with Gin
//
// # Examples
//
//	protected := router.Group("/")
//	protected.Use(middleware.RequireAccessToken(tokens))
//	protected.POST("/chat", chatHandler.Handle)
//
// # Limitations
//
//   - Only supports Bearer token authentication
//   - Does not cache verification results (verifies every request)
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func RequireAccessToken(tokens *auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractBearerToken(c)
		if token == "" {
			recordAuthFailure("missing_token")
			abortUnauthorized(c)
			return
		}

		claims, err := tokens.Verify(token, auth.TokenKindAccess)
		if err != nil {
			recordAuthFailure(authFailureReason(err))
			abortUnauthorized(c)
			return
		}

		SetSubject(c, claims.Subject)
		c.Next()
	}
}

// abortUnauthorized writes the uniform 401 envelope and stops the chain.
func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, datatypes.NewErrorResponse(
		http.StatusUnauthorized,
		"invalid or expired token",
		c.Request.URL.Path,
	))
}

// authFailureReason maps verification errors to metric labels.
func authFailureReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return "expired"
	case errors.Is(err, auth.ErrWrongTokenKind):
		return "wrong_kind"
	default:
		return "invalid_token"
	}
}

func recordAuthFailure(reason string) {
	if observability.DefaultMetrics != nil {
		observability.DefaultMetrics.RecordAuthFailure(reason)
	}
}

// =============================================================================
// Helper Functions
// =============================================================================

// extractBearerToken extracts the token from the Authorization header.
//
// Parses the Authorization header expecting format: "Bearer <token>"
// and returns empty string if the header is missing or malformed. The
// "Bearer" prefix is case-insensitive per RFC 7235.
func extractBearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}

	return strings.TrimSpace(parts[1])
}
