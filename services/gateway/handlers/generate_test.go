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
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
	"github.com/AleutianAI/AleutianChat/services/llm"
)

func generateTestRouter(client llm.LLMClient) *gin.Engine {
	handler := NewGenerateHandler(client)
	router := gin.New()
	router.POST("/api/generate", asUser("alice"), handler.Handle)
	return router
}

func TestGenerate_StreamsTokens(t *testing.T) {
	router := generateTestRouter(&mockLLM{fragments: []string{"once ", "upon ", "a time"}})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/generate", strings.NewReader(`{"prompt": "tell a story"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))

	events := parseSSEEvents(t, w.Body.String())
	require.NotEmpty(t, events)

	var tokens []string
	for _, event := range events {
		if event.Type == datatypes.StreamEventTypeToken {
			tokens = append(tokens, event.Content)
		}
	}
	assert.Equal(t, []string{"once ", "upon ", "a time"}, tokens)

	last := events[len(events)-1]
	assert.Equal(t, datatypes.StreamEventTypeDone, last.Type)
	// One-shot generation carries no conversation identity.
	assert.Empty(t, last.ConversationId)
}

func TestGenerate_MissingPrompt(t *testing.T) {
	router := generateTestRouter(&mockLLM{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/generate", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestGenerate_BackendFailure(t *testing.T) {
	router := generateTestRouter(&mockLLM{err: errors.New("model exploded")})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/generate", strings.NewReader(`{"prompt": "hi"}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	body := w.Body.String()
	assert.Contains(t, body, "event: error")
	assert.NotContains(t, body, "model exploded")
	assert.NotContains(t, body, "event: done")
}
