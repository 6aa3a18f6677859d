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

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianChat/services/gateway/middleware"
	"github.com/AleutianAI/AleutianChat/services/gateway/store"
	"github.com/AleutianAI/AleutianChat/services/llm"
)

// =============================================================================
// Test Setup
// =============================================================================

func init() {
	gin.SetMode(gin.TestMode)
}

// mockLLM is a configurable LLMClient for handler tests.
type mockLLM struct {
	reply     string
	fragments []string
	err       error
}

func (m *mockLLM) Chat(_ context.Context, _ []datatypes.Message, _ llm.GenerationParams) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	return m.reply, nil
}

func (m *mockLLM) ChatStream(_ context.Context, _ []datatypes.Message, _ llm.GenerationParams, callback llm.StreamCallback) error {
	for _, fragment := range m.fragments {
		if err := callback(llm.StreamEvent{Type: llm.StreamEventToken, Content: fragment}); err != nil {
			return err
		}
	}
	return m.err
}

var _ llm.LLMClient = (*mockLLM)(nil)

// asUser simulates the auth middleware having run for the given subject.
func asUser(subject string) gin.HandlerFunc {
	return func(c *gin.Context) {
		middleware.SetSubject(c, subject)
		c.Next()
	}
}

// chatTestRouter wires a ChatHandler behind a stubbed identity.
func chatTestRouter(conversations *store.ConversationStore, client llm.LLMClient) *gin.Engine {
	handler := NewChatHandler(conversations, client, "test-model")
	router := gin.New()
	router.POST("/chat", asUser("alice"), handler.Handle)
	return router
}

// conversationsTestRouter wires a ConversationsHandler behind a stubbed
// identity.
func conversationsTestRouter(conversations *store.ConversationStore, subject string) *gin.Engine {
	handler := NewConversationsHandler(conversations)
	router := gin.New()
	router.GET("/conversations", asUser(subject), handler.HandleList)
	router.GET("/conversations/:id/messages", asUser(subject), handler.HandleMessages)
	return router
}

// healthTestRouter exposes only the health endpoint.
func healthTestRouter() *gin.Engine {
	router := gin.New()
	router.GET("/health", HandleHealth)
	return router
}
