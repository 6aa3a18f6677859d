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
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianChat/services/gateway/observability"
	"github.com/AleutianAI/AleutianChat/services/llm"
)

// GenerateHandler serves one-shot prompt generation over SSE.
//
// Unlike the chat endpoint, generation requests carry no conversation
// identity: nothing is read from or written to the conversation store,
// and the done event carries no conversation id.
type GenerateHandler struct {
	llmClient llm.LLMClient
	tracer    trace.Tracer
}

// NewGenerateHandler creates a GenerateHandler.
func NewGenerateHandler(llmClient llm.LLMClient) *GenerateHandler {
	return &GenerateHandler{
		llmClient: llmClient,
		tracer:    otel.Tracer("aleutian.gateway.handlers.generate"),
	}
}

// Handle processes POST /api/generate requests.
//
// # Description
//
// The prompt is wrapped as a single user message and streamed back as
// SSE token events followed by the done sentinel. Backend failures
// after headers are sent surface as an SSE error event.
//
// # Outputs
//
// HTTP Status (before streaming starts):
//   - 400 Bad Request: Malformed JSON body
//   - 422 Unprocessable Entity: Missing or oversized prompt
func (h *GenerateHandler) Handle(c *gin.Context) {
	startTime := time.Now()
	endpoint := observability.EndpointGenerate

	ctx, span := h.tracer.Start(c.Request.Context(), "HandleGenerate")
	defer span.End()

	var req datatypes.GenerateRequest
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

	if m := observability.DefaultMetrics; m != nil {
		m.StreamStarted(endpoint)
		defer m.StreamEnded(endpoint)
	}

	success := false
	defer func() {
		if m := observability.DefaultMetrics; m != nil {
			m.RecordRequest(endpoint, success)
			m.RecordStreamDuration(endpoint, time.Since(startTime).Seconds(), success)
		}
	}()

	SetSSEHeaders(c.Writer)
	sseWriter, err := NewSSEWriter(c.Writer)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "SSE setup failed")
		recordError(endpoint, observability.ErrorCodeInternal)
		c.JSON(http.StatusInternalServerError, datatypes.NewErrorResponse(
			http.StatusInternalServerError, "streaming not supported", c.Request.URL.Path))
		return
	}

	messages := []datatypes.Message{{Role: datatypes.RoleUser, Content: req.Prompt}}
	params := llm.GenerationParams{Model: req.Model}

	var tokenCount int32
	callback := func(event llm.StreamEvent) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		switch event.Type {
		case llm.StreamEventToken:
			atomic.AddInt32(&tokenCount, 1)
			return sseWriter.WriteToken(event.Content)
		case llm.StreamEventError:
			return sseWriter.WriteError(sanitizeErrorForClient(event.Error))
		}
		return nil
	}

	if err := h.llmClient.ChatStream(ctx, messages, params, callback); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "generation failed")
		slog.Error("One-shot generation failed", "error", err, "tokenCount", atomic.LoadInt32(&tokenCount))
		if errors.Is(err, context.Canceled) {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeClientDisconnect)
				m.RecordClientDisconnect(endpoint)
			}
		} else {
			recordError(endpoint, observability.ErrorCodeLLMError)
		}
		_ = sseWriter.WriteError(sanitizeErrorForClient(err.Error()))
		return
	}

	span.SetAttributes(attribute.Int("stream.token_count", int(atomic.LoadInt32(&tokenCount))))

	if err := sseWriter.WriteDone(""); err != nil {
		span.RecordError(err)
		slog.Error("Failed to write done event", "error", err)
		return
	}

	success = true
	span.SetStatus(codes.Ok, "generation completed")
}
