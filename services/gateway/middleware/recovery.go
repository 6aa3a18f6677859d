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
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
)

// Recovery creates a Gin middleware that converts handler panics into a
// generic 500 error envelope.
//
// # Description
//
// The panic value and stack trace are logged server-side; the client
// response never includes them. If response headers were already
// written (a panic mid-SSE-stream), the connection is closed without a
// body since the envelope can no longer be delivered.
//
// # Thread Safety
//
// Thread-safe. The returned middleware can be used concurrently.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("handler panic",
					"panic", r,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)

				if c.Writer.Written() {
					c.Abort()
					return
				}

				c.AbortWithStatusJSON(http.StatusInternalServerError, datatypes.NewErrorResponse(
					http.StatusInternalServerError,
					"internal server error",
					c.Request.URL.Path,
				))
			}
		}()

		c.Next()
	}
}
