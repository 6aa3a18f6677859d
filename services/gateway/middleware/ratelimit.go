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
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianChat/services/gateway/auth"
	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianChat/services/gateway/observability"
	"github.com/AleutianAI/AleutianChat/services/gateway/ratelimit"
)

// RateLimit creates a Gin middleware that enforces a fixed-window
// request limit per caller identity.
//
// # Description
//
// The caller identity is the token subject when the request carries a
// parseable bearer token, falling back to the client IP otherwise. The
// identity resolution is deliberately best-effort: a forged or expired
// token still yields a stable per-IP identity, and the auth middleware
// downstream rejects it properly. Admission is counted before
// authentication so failed logins consume the window.
//
// Rejected requests receive a 429 envelope with a retry_after_seconds
// field and a Retry-After header, both rounded up to whole seconds.
//
// # Inputs
//
//   - limiter: The fixed-window limiter. Must not be nil.
//   - tokens: Token service used to extract the subject from a bearer
//     token without full verification. Must not be nil.
//   - category: Metric label for rejections ("auth" or "chat").
//
// # Outputs
//
//   - gin.HandlerFunc: Middleware function ready for use with Gin
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func RateLimit(limiter *ratelimit.FixedWindowLimiter, tokens *auth.TokenService, category string) gin.HandlerFunc {
	return func(c *gin.Context) {
		identity := callerIdentity(c, tokens)

		ok, retryAfter := limiter.Admit(identity)
		if ok {
			c.Next()
			return
		}

		if m := observability.DefaultMetrics; m != nil {
			m.RecordRateLimitRejection(category)
			m.RecordError(rateLimitEndpoint(c), observability.ErrorCodeRateLimited)
		}

		// Round up so a caller sleeping for Retry-After lands in a
		// fresh window.
		seconds := int((retryAfter + time.Second - 1) / time.Second)
		if seconds < 1 {
			seconds = 1
		}

		c.Header("Retry-After", fmt.Sprintf("%d", seconds))
		resp := datatypes.NewRateLimitErrorResponse(c.Request.URL.Path, seconds)
		resp.Message = fmt.Sprintf("rate limit exceeded: %d per %s", limiter.Limit(), limiter.Window())
		c.AbortWithStatusJSON(http.StatusTooManyRequests, resp)
	}
}

// rateLimitEndpoint maps the rejected route to its metrics endpoint
// label.
func rateLimitEndpoint(c *gin.Context) observability.Endpoint {
	switch c.FullPath() {
	case "/login":
		return observability.EndpointLogin
	case "/refresh":
		return observability.EndpointRefresh
	case "/chat":
		return observability.EndpointChat
	case "/api/generate":
		return observability.EndpointGenerate
	default:
		return observability.EndpointConversations
	}
}

// callerIdentity resolves the rate-limit key for a request.
//
// Prefers the subject of the bearer token so that one user cannot dodge
// the limit by rotating IPs; anonymous or unparseable tokens fall back
// to the client IP so that unauthenticated endpoints still partition by
// caller.
func callerIdentity(c *gin.Context, tokens *auth.TokenService) string {
	if token := extractBearerToken(c); token != "" {
		if subject := tokens.ExtractSubject(token); subject != "" {
			return "user:" + subject
		}
	}
	return "ip:" + c.ClientIP()
}
