// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package datatypes

import (
	"errors"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Error Envelope
// =============================================================================

// ErrorResponse is the normalized envelope carried by every non-2xx
// response.
//
// # Description
//
// Domain failures (authentication, rate limit, validation, not-found)
// keep their specific status code and a caller-safe message; anything
// uncategorized becomes a generic 500 with full detail logged
// server-side only. Fields beyond the base four are populated per error
// class: FieldErrors for 422 validation failures, RetryAfterSeconds for
// 429 rate-limit rejections.
//
// # Fields
//
//   - Error: always true (distinguishes the envelope from success bodies)
//   - Message: caller-safe description, never internal details
//   - StatusCode: HTTP status of the response, repeated in the body
//   - Path: request path the error occurred on
type ErrorResponse struct {
	Error             bool         `json:"error"`
	Message           string       `json:"message"`
	StatusCode        int          `json:"status_code"`
	Path              string       `json:"path"`
	FieldErrors       []FieldError `json:"errors,omitempty"`
	RetryAfterSeconds int          `json:"retry_after_seconds,omitempty"`
}

// FieldError describes a single failed validation constraint.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Type    string `json:"type"`
}

// NewErrorResponse builds the base envelope for a failed request.
func NewErrorResponse(statusCode int, message, path string) ErrorResponse {
	return ErrorResponse{
		Error:      true,
		Message:    message,
		StatusCode: statusCode,
		Path:       path,
	}
}

// NewValidationErrorResponse builds a 422 envelope with per-field detail.
//
// # Description
//
// When err is a validator.ValidationErrors, each failed constraint is
// reported as a FieldError naming the field, the violated tag, and a
// short description. Any other error (malformed JSON, wrong types)
// yields the envelope without field detail.
func NewValidationErrorResponse(err error, path string) ErrorResponse {
	resp := NewErrorResponse(422, "validation failed", path)

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		for _, fe := range verrs {
			resp.FieldErrors = append(resp.FieldErrors, FieldError{
				Field:   fe.Field(),
				Message: "failed on the '" + fe.Tag() + "' constraint",
				Type:    fe.Tag(),
			})
		}
	}
	return resp
}

// NewRateLimitErrorResponse builds a 429 envelope with the retry hint.
func NewRateLimitErrorResponse(path string, retryAfterSeconds int) ErrorResponse {
	resp := NewErrorResponse(429, "rate limit exceeded", path)
	resp.RetryAfterSeconds = retryAfterSeconds
	return resp
}
