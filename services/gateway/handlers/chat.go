// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package handlers provides HTTP handlers for the chat gateway service.
//
// Handlers are organized by concern:
//   - chat.go: conversational turn dispatch and the blocking reply path
//   - chat_streaming.go: the SSE streaming reply path
//   - generate.go: one-shot prompt streaming without persistence
//   - login.go: credential login and token refresh
//   - conversations.go: conversation listing and history reads
//   - health.go: liveness probe
//   - sse_writer.go: SSE wire format with hash-chained events
package handlers

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianChat/services/gateway/middleware"
	"github.com/AleutianAI/AleutianChat/services/gateway/observability"
	"github.com/AleutianAI/AleutianChat/services/gateway/store"
	"github.com/AleutianAI/AleutianChat/services/llm"
)

// =============================================================================
// Handler Definition
// =============================================================================

// ChatHandler processes conversational chat turns.
//
// # Description
//
// One handler serves both delivery modes of POST /chat: the request's
// stream field selects SSE streaming (the default) or a single blocking
// JSON response. Both modes share the same turn lifecycle: the user
// message is appended to the conversation before generation starts, and
// the assistant reply is appended only after the backend produced it
// completely. A failed or interrupted generation therefore leaves the
// conversation with the user message as its last entry.
//
// # Fields
//
//   - conversations: Per-user conversation store
//   - llmClient: Generation backend (OpenAI or Ollama)
//   - defaultModel: Model echoed in responses when the request has none
//   - tracer: OpenTelemetry tracer for request spans
//
// # Thread Safety
//
// Thread-safe. All fields are set at construction and never mutated;
// the store and LLM clients handle their own synchronization.
type ChatHandler struct {
	conversations *store.ConversationStore
	llmClient     llm.LLMClient
	defaultModel  string
	tracer        trace.Tracer
}

// NewChatHandler creates a ChatHandler with the given dependencies.
//
// defaultModel is echoed in response bodies when the request does not
// override the model; it should name the backend's configured default.
func NewChatHandler(conversations *store.ConversationStore, llmClient llm.LLMClient, defaultModel string) *ChatHandler {
	return &ChatHandler{
		conversations: conversations,
		llmClient:     llmClient,
		defaultModel:  defaultModel,
		tracer:        otel.Tracer("aleutian.gateway.handlers.chat"),
	}
}

// =============================================================================
// Turn Dispatch
// =============================================================================

// Handle processes POST /chat requests.
//
// # Description
//
// The flow is:
//  1. Parse and validate the request body
//  2. Resolve the conversation (minting a fresh id when absent/unknown)
//  3. Append the user message and snapshot the history
//  4. Dispatch on the stream field: SSE streaming or blocking JSON
//
// # Inputs
//
//   - c: Gin context. The auth middleware must have run; the token
//     subject names the conversation owner.
//
// Request Body (datatypes.ChatRequest):
//   - message: Required. The new user message, at most 32KB.
//   - conversation_id: Optional. Existing conversation to continue.
//   - model: Optional. Backend model override.
//   - stream: Optional. Defaults to true.
//
// # Outputs
//
// Streaming mode: SSE events (status, token..., done) or an error event.
// Blocking mode: 200 with datatypes.ChatResponse.
//
// HTTP Status (before streaming starts):
//   - 400 Bad Request: Malformed JSON body
//   - 422 Unprocessable Entity: Validation failure, with field detail
//   - 502 Bad Gateway: Generation backend failure (blocking mode)
func (h *ChatHandler) Handle(c *gin.Context) {
	ctx, span := h.tracer.Start(c.Request.Context(), "HandleChat")
	defer span.End()

	user := middleware.GetSubject(c)
	span.SetAttributes(attribute.String("user.id", user))

	var req datatypes.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request body")
		recordError(observability.EndpointChat, observability.ErrorCodeValidation)
		c.JSON(http.StatusBadRequest, datatypes.NewErrorResponse(
			http.StatusBadRequest, "invalid request body", c.Request.URL.Path))
		return
	}

	if err := req.Validate(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "validation failed")
		recordError(observability.EndpointChat, observability.ErrorCodeValidation)
		c.JSON(http.StatusUnprocessableEntity, datatypes.NewValidationErrorResponse(err, c.Request.URL.Path))
		return
	}

	// Resolve the conversation. Unknown or foreign ids mint a fresh
	// conversation instead of erroring, so a client can always send.
	conversationID := h.conversations.GetOrCreate(user, req.ConversationID)
	span.SetAttributes(
		attribute.String("conversation.id", conversationID),
		attribute.Bool("request.stream", req.WantsStream()),
	)

	// The user message is part of the conversation regardless of what
	// generation does next.
	h.conversations.Append(user, conversationID, datatypes.RoleUser, req.Message)
	history := h.conversations.Read(user, conversationID)

	params := llm.GenerationParams{Model: req.Model}

	if req.WantsStream() {
		h.streamTurn(c, ctx, span, user, conversationID, history, params)
		return
	}
	h.blockingTurn(c, ctx, span, user, conversationID, req.Model, history, params)
}

// =============================================================================
// Blocking Path
// =============================================================================

// blockingTurn generates the full reply before responding.
func (h *ChatHandler) blockingTurn(
	c *gin.Context,
	ctx context.Context,
	span trace.Span,
	user, conversationID, requestModel string,
	history []datatypes.Message,
	params llm.GenerationParams,
) {
	endpoint := observability.EndpointChat

	reply, err := h.llmClient.Chat(ctx, history, params)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		slog.Error("Blocking chat generation failed",
			"error", err,
			"user", user,
			"conversationId", conversationID,
		)
		recordError(endpoint, observability.ErrorCodeLLMError)
		recordRequest(endpoint, false)
		c.JSON(http.StatusBadGateway, datatypes.NewErrorResponse(
			http.StatusBadGateway, "generation backend unavailable", c.Request.URL.Path))
		return
	}

	h.conversations.Append(user, conversationID, datatypes.RoleAssistant, reply)

	model := requestModel
	if model == "" {
		model = h.defaultModel
	}

	recordRequest(endpoint, true)
	span.SetStatus(codes.Ok, "chat completed")
	c.JSON(http.StatusOK, datatypes.ChatResponse{
		Reply:          reply,
		ConversationID: conversationID,
		User:           user,
		Model:          model,
	})
}

// =============================================================================
// Metric Helpers
// =============================================================================

func recordRequest(endpoint observability.Endpoint, success bool) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordRequest(endpoint, success)
	}
}

func recordError(endpoint observability.Endpoint, code observability.ErrorCode) {
	if m := observability.DefaultMetrics; m != nil {
		m.RecordError(endpoint, code)
	}
}

// sanitizeErrorForClient replaces internal error detail with a generic
// client-safe message. The full error is logged by the caller.
func sanitizeErrorForClient(errMsg string) string {
	slog.Debug("Sanitizing error for client", "original_error", errMsg)
	return "An error occurred while processing your request"
}
