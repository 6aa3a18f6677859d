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
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
)

// parseSSEEvents decodes every data: line of a recorded SSE body.
func parseSSEEvents(t *testing.T, body string) []datatypes.StreamEvent {
	t.Helper()
	var events []datatypes.StreamEvent
	for _, line := range strings.Split(body, "\n") {
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var event datatypes.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &event))
		events = append(events, event)
	}
	return events
}

func TestSSEWriter_WireFormat(t *testing.T) {
	w := httptest.NewRecorder()
	writer, err := NewSSEWriter(w)
	require.NoError(t, err)

	require.NoError(t, writer.WriteToken("hello"))

	body := w.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: token\ndata: "))
	assert.True(t, strings.HasSuffix(body, "\n\n"))

	events := parseSSEEvents(t, body)
	require.Len(t, events, 1)
	assert.Equal(t, datatypes.StreamEventTypeToken, events[0].Type)
	assert.Equal(t, "hello", events[0].Content)
	assert.NotEmpty(t, events[0].Id)
	assert.NotZero(t, events[0].CreatedAt)
}

func TestSSEWriter_HashChain(t *testing.T) {
	w := httptest.NewRecorder()
	writer, err := NewSSEWriter(w)
	require.NoError(t, err)

	require.NoError(t, writer.WriteStatus("starting"))
	require.NoError(t, writer.WriteToken("a"))
	require.NoError(t, writer.WriteToken("b"))
	require.NoError(t, writer.WriteDone("conv-1"))

	events := parseSSEEvents(t, w.Body.String())
	require.Len(t, events, 4)

	// First event anchors the chain with an empty prev hash.
	assert.Empty(t, events[0].PrevHash)
	assert.NotEmpty(t, events[0].Hash)

	for i := 1; i < len(events); i++ {
		assert.Equal(t, events[i-1].Hash, events[i].PrevHash,
			"event %d must chain to its predecessor", i)
	}

	assert.Equal(t, datatypes.StreamEventTypeDone, events[3].Type)
	assert.Equal(t, "conv-1", events[3].ConversationId)
}

func TestSSEWriter_KeepAliveOutsideChain(t *testing.T) {
	w := httptest.NewRecorder()
	writer, err := NewSSEWriter(w)
	require.NoError(t, err)

	require.NoError(t, writer.WriteToken("a"))
	require.NoError(t, writer.WriteKeepAlive())
	require.NoError(t, writer.WriteToken("b"))

	body := w.Body.String()
	assert.Contains(t, body, ": ping\n\n")

	// The comment does not interrupt the hash chain.
	events := parseSSEEvents(t, body)
	require.Len(t, events, 2)
	assert.Equal(t, events[0].Hash, events[1].PrevHash)
}

func TestSSEWriter_ErrorEvent(t *testing.T) {
	w := httptest.NewRecorder()
	writer, err := NewSSEWriter(w)
	require.NoError(t, err)

	require.NoError(t, writer.WriteError("something went wrong"))

	events := parseSSEEvents(t, w.Body.String())
	require.Len(t, events, 1)
	assert.Equal(t, datatypes.StreamEventTypeError, events[0].Type)
	assert.Equal(t, "something went wrong", events[0].Error)
}
