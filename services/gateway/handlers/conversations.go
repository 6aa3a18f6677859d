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
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianChat/services/gateway/middleware"
	"github.com/AleutianAI/AleutianChat/services/gateway/observability"
	"github.com/AleutianAI/AleutianChat/services/gateway/store"
)

// ConversationsHandler serves conversation listing and history reads.
//
// All reads are scoped to the authenticated user: another user's
// conversation ids behave exactly like ids that never existed.
type ConversationsHandler struct {
	conversations *store.ConversationStore
	tracer        trace.Tracer
}

// NewConversationsHandler creates a ConversationsHandler.
func NewConversationsHandler(conversations *store.ConversationStore) *ConversationsHandler {
	return &ConversationsHandler{
		conversations: conversations,
		tracer:        otel.Tracer("aleutian.gateway.handlers.conversations"),
	}
}

// HandleList processes GET /conversations requests.
//
// Returns the caller's conversations as summaries, most recently
// started first. A user with no conversations receives an empty list,
// not an error.
func (h *ConversationsHandler) HandleList(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "HandleListConversations")
	defer span.End()

	user := middleware.GetSubject(c)
	summaries := h.conversations.List(user)
	span.SetAttributes(attribute.Int("conversations.count", len(summaries)))

	recordRequest(observability.EndpointConversations, true)
	c.JSON(http.StatusOK, gin.H{"conversations": summaries})
}

// HandleMessages processes GET /conversations/:id/messages requests.
//
// Returns the full ordered history of one conversation. Unknown ids
// and ids belonging to another user both answer 404 with the same
// envelope, so the endpoint does not leak which ids exist.
func (h *ConversationsHandler) HandleMessages(c *gin.Context) {
	_, span := h.tracer.Start(c.Request.Context(), "HandleConversationMessages")
	defer span.End()

	user := middleware.GetSubject(c)
	conversationID := c.Param("id")
	span.SetAttributes(attribute.String("conversation.id", conversationID))

	if !h.conversations.Has(user, conversationID) {
		recordError(observability.EndpointConversations, observability.ErrorCodeNotFound)
		recordRequest(observability.EndpointConversations, false)
		c.JSON(http.StatusNotFound, datatypes.NewErrorResponse(
			http.StatusNotFound, "conversation not found", c.Request.URL.Path))
		return
	}

	messages := h.conversations.Read(user, conversationID)
	if messages == nil {
		messages = []datatypes.Message{}
	}

	recordRequest(observability.EndpointConversations, true)
	c.JSON(http.StatusOK, gin.H{
		"conversation_id": conversationID,
		"messages":        messages,
	})
}
