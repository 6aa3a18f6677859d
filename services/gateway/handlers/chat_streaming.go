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
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianChat/services/gateway/observability"
	"github.com/AleutianAI/AleutianChat/services/llm"
)

const (
	// heartbeatInterval is the interval for sending keepalive pings.
	// 15s is well under typical load balancer idle timeouts (60s).
	heartbeatInterval = 15 * time.Second
)

// streamTurn generates the reply over SSE.
//
// # Description
//
// The streaming turn proceeds through a fixed sequence:
//  1. Set SSE headers and create the hash-chained writer
//  2. Emit a status event so the client renders immediately
//  3. Start the heartbeat goroutine
//  4. Stream tokens from the backend, accumulating the full reply
//  5. On success only: commit the assistant message, then emit done
//
// The commit-before-done ordering means a client that received the done
// sentinel can rely on the reply being readable from the conversation
// history. An interrupted stream (backend failure or client disconnect)
// commits nothing; the conversation keeps the user message as its last
// entry and the client must treat the turn as incomplete.
//
// Errors after headers are sent can no longer change the HTTP status;
// they are delivered as an SSE error event instead.
func (h *ChatHandler) streamTurn(
	c *gin.Context,
	ctx context.Context,
	span trace.Span,
	user, conversationID string,
	history []datatypes.Message,
	params llm.GenerationParams,
) {
	startTime := time.Now()
	endpoint := observability.EndpointChatStream

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
		slog.Error("Failed to create SSE writer", "error", err, "user", user)
		recordError(endpoint, observability.ErrorCodeInternal)
		c.JSON(http.StatusInternalServerError, datatypes.NewErrorResponse(
			http.StatusInternalServerError, "streaming not supported", c.Request.URL.Path))
		return
	}

	if err := sseWriter.WriteStatus("Generating response..."); err != nil {
		span.RecordError(err)
		slog.Error("Failed to write status event", "error", err, "user", user)
		return
	}

	heartbeatDone := make(chan struct{})
	go h.runHeartbeat(ctx, sseWriter, endpoint, heartbeatDone)

	var reply strings.Builder
	var tokenCount int32
	firstTokenTime := time.Time{}

	streamErr := h.streamFromBackend(ctx, user, history, params, sseWriter, &reply, &tokenCount, &firstTokenTime)

	close(heartbeatDone)

	if streamErr != nil {
		span.RecordError(streamErr)
		span.SetStatus(codes.Error, "streaming failed")
		span.SetAttributes(attribute.Int("stream.token_count", int(tokenCount)))
		slog.Error("Chat streaming failed",
			"error", streamErr,
			"user", user,
			"conversationId", conversationID,
			"tokenCount", tokenCount,
		)

		if errors.Is(streamErr, context.Canceled) {
			if m := observability.DefaultMetrics; m != nil {
				m.RecordError(endpoint, observability.ErrorCodeClientDisconnect)
				m.RecordClientDisconnect(endpoint)
			}
		} else {
			recordError(endpoint, observability.ErrorCodeLLMError)
		}
		// Error event already sent; nothing is committed.
		return
	}

	if !firstTokenTime.IsZero() {
		ttft := firstTokenTime.Sub(startTime).Seconds()
		span.SetAttributes(attribute.Float64("stream.time_to_first_token_seconds", ttft))
		if m := observability.DefaultMetrics; m != nil {
			m.RecordTimeToFirstToken(endpoint, ttft)
		}
	}
	span.SetAttributes(attribute.Int("stream.token_count", int(tokenCount)))

	// Commit exactly once, before the done sentinel goes out.
	h.conversations.Append(user, conversationID, datatypes.RoleAssistant, reply.String())

	if err := sseWriter.WriteDone(conversationID); err != nil {
		span.RecordError(err)
		slog.Error("Failed to write done event",
			"error", err,
			"user", user,
			"conversationId", conversationID,
		)
		return
	}

	success = true
	span.SetStatus(codes.Ok, "stream completed")
}

// streamFromBackend drives the backend stream into the SSE writer.
//
// Each token is forwarded to the client and accumulated for the
// post-stream commit. The callback checks for context cancellation on
// every fragment so a disconnected client stops backend token
// production immediately rather than at the next write failure.
func (h *ChatHandler) streamFromBackend(
	ctx context.Context,
	user string,
	history []datatypes.Message,
	params llm.GenerationParams,
	writer SSEWriter,
	reply *strings.Builder,
	tokenCount *int32,
	firstTokenTime *time.Time,
) error {
	callback := func(event llm.StreamEvent) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		switch event.Type {
		case llm.StreamEventToken:
			if firstTokenTime.IsZero() {
				*firstTokenTime = time.Now()
			}
			atomic.AddInt32(tokenCount, 1)
			reply.WriteString(event.Content)
			return writer.WriteToken(event.Content)

		case llm.StreamEventError:
			return writer.WriteError(sanitizeErrorForClient(event.Error))
		}
		return nil
	}

	err := h.llmClient.ChatStream(ctx, history, params, callback)
	if err != nil {
		// Full error is logged; the client only sees the generic form.
		slog.Error("LLM ChatStream failed",
			"user", user,
			"error", err,
			"tokenCount", atomic.LoadInt32(tokenCount),
		)
		_ = writer.WriteError(sanitizeErrorForClient(err.Error()))
		return err
	}

	return nil
}

// runHeartbeat sends keepalive comments until the stream finishes.
func (h *ChatHandler) runHeartbeat(
	ctx context.Context,
	writer SSEWriter,
	endpoint observability.Endpoint,
	done <-chan struct{},
) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := writer.WriteKeepAlive(); err != nil {
				slog.Debug("Failed to write keepalive", "error", err)
				return
			}
			if m := observability.DefaultMetrics; m != nil {
				m.RecordKeepAlive(endpoint)
			}
		}
	}
}
