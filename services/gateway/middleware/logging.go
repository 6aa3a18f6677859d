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
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// RequestLogger creates a Gin middleware that emits one structured log
// line per request after the handler chain completes.
//
// # Description
//
// Logs method, path, status, duration, client IP, and the authenticated
// identity when one was established. Requests rejected by rate limiting
// or authentication are still logged because this middleware runs
// outermost. The request body is never logged.
//
// # Thread Safety
//
// Thread-safe. slog handlers are safe for concurrent use.
func RequestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if subject := GetSubject(c); subject != "" {
			attrs = append(attrs, "user", subject)
		}

		switch {
		case c.Writer.Status() >= 500:
			logger.Error("request completed", attrs...)
		case c.Writer.Status() >= 400:
			logger.Warn("request completed", attrs...)
		default:
			logger.Info("request completed", attrs...)
		}
	}
}
