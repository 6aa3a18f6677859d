// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianChat/services/gateway/auth"
	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianChat/services/gateway/observability"
)

// =============================================================================
// Handler Definition
// =============================================================================

// AuthHandler processes login and token refresh requests.
//
// # Description
//
// Login verifies a username/password pair against the credential store
// and issues a fresh access/refresh token pair. Refresh exchanges a
// valid refresh token for a new pair without re-presenting the
// password. Both endpoints answer failures with the same 401 envelope
// message so the response does not reveal whether the username exists
// or which check failed.
//
// # Thread Safety
//
// Thread-safe. All fields are set at construction and never mutated.
type AuthHandler struct {
	credentials *auth.CredentialStore
	tokens      *auth.TokenService
	tracer      trace.Tracer
}

// NewAuthHandler creates an AuthHandler with the given dependencies.
func NewAuthHandler(credentials *auth.CredentialStore, tokens *auth.TokenService) *AuthHandler {
	return &AuthHandler{
		credentials: credentials,
		tokens:      tokens,
		tracer:      otel.Tracer("aleutian.gateway.handlers.auth"),
	}
}

// =============================================================================
// Login
// =============================================================================

// HandleLogin processes POST /login requests.
//
// # Outputs
//
// HTTP Status:
//   - 200 OK: datatypes.TokenResponse with a fresh token pair
//   - 400 Bad Request: Malformed JSON body
//   - 422 Unprocessable Entity: Missing username or password
//   - 401 Unauthorized: Unknown user or wrong password
func (h *AuthHandler) HandleLogin(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "HandleLogin")
	defer span.End()

	endpoint := observability.EndpointLogin

	var req datatypes.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request body")
		recordError(endpoint, observability.ErrorCodeValidation)
		c.JSON(http.StatusBadRequest, datatypes.NewErrorResponse(
			http.StatusBadRequest, "invalid request body", c.Request.URL.Path))
		return
	}
	if err := req.Validate(); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		recordError(endpoint, observability.ErrorCodeValidation)
		c.JSON(http.StatusUnprocessableEntity, datatypes.NewValidationErrorResponse(err, c.Request.URL.Path))
		return
	}

	if err := h.credentials.Verify(req.Username, req.Password); err != nil {
		span.SetStatus(codes.Error, "bad credentials")
		// Username is logged; the password never is.
		slog.Warn("Login rejected", "username", req.Username, "client_ip", c.ClientIP())
		recordError(endpoint, observability.ErrorCodeAuth)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordAuthFailure("bad_credentials")
		}
		recordRequest(endpoint, false)
		c.JSON(http.StatusUnauthorized, datatypes.NewErrorResponse(
			http.StatusUnauthorized, "invalid username or password", c.Request.URL.Path))
		return
	}

	access, err := h.tokens.IssueAccessToken(req.Username)
	if err != nil {
		h.tokenIssueFailed(c, span, endpoint, err)
		return
	}
	refresh, err := h.tokens.IssueRefreshToken(req.Username)
	if err != nil {
		h.tokenIssueFailed(c, span, endpoint, err)
		return
	}

	slog.Info("Login succeeded", "username", req.Username)
	recordRequest(endpoint, true)
	span.SetStatus(codes.Ok, "login succeeded")
	c.JSON(http.StatusOK, datatypes.NewTokenResponse(access, refresh))
}

// =============================================================================
// Refresh
// =============================================================================

// HandleRefresh processes POST /refresh requests.
//
// # Description
//
// Verifies the presented token as a refresh token (an access token is
// rejected even when otherwise valid) and issues a fresh pair for the
// same subject.
//
// # Outputs
//
// HTTP Status:
//   - 200 OK: datatypes.TokenResponse with a fresh token pair
//   - 400 Bad Request: Malformed JSON body
//   - 422 Unprocessable Entity: Missing refresh_token
//   - 401 Unauthorized: Invalid, expired, or wrong-kind token
func (h *AuthHandler) HandleRefresh(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "HandleRefresh")
	defer span.End()

	endpoint := observability.EndpointRefresh

	var req datatypes.RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request body")
		recordError(endpoint, observability.ErrorCodeValidation)
		c.JSON(http.StatusBadRequest, datatypes.NewErrorResponse(
			http.StatusBadRequest, "invalid request body", c.Request.URL.Path))
		return
	}
	if err := req.Validate(); err != nil {
		span.SetStatus(codes.Error, "validation failed")
		recordError(endpoint, observability.ErrorCodeValidation)
		c.JSON(http.StatusUnprocessableEntity, datatypes.NewValidationErrorResponse(err, c.Request.URL.Path))
		return
	}

	access, refresh, err := h.tokens.Refresh(req.RefreshToken)
	if err != nil {
		span.SetStatus(codes.Error, "refresh rejected")
		recordError(endpoint, observability.ErrorCodeAuth)
		if m := observability.DefaultMetrics; m != nil {
			m.RecordAuthFailure("invalid_refresh")
		}
		recordRequest(endpoint, false)
		c.JSON(http.StatusUnauthorized, datatypes.NewErrorResponse(
			http.StatusUnauthorized, "invalid or expired refresh token", c.Request.URL.Path))
		return
	}

	recordRequest(endpoint, true)
	span.SetStatus(codes.Ok, "refresh succeeded")
	c.JSON(http.StatusOK, datatypes.NewTokenResponse(access, refresh))
}

// tokenIssueFailed answers a signing failure with a generic 500.
func (h *AuthHandler) tokenIssueFailed(c *gin.Context, span trace.Span, endpoint observability.Endpoint, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, "token issue failed")
	slog.Error("Failed to issue token", "error", err)
	recordError(endpoint, observability.ErrorCodeInternal)
	recordRequest(endpoint, false)
	c.JSON(http.StatusInternalServerError, datatypes.NewErrorResponse(
		http.StatusInternalServerError, "internal server error", c.Request.URL.Path))
}
