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
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
)

// =============================================================================
// Interface Definition
// =============================================================================

// SSEWriter defines the contract for writing Server-Sent Events to HTTP
// responses.
//
// # Description
//
// SSEWriter abstracts SSE event serialization and writing, enabling
// testability and separation from HTTP response mechanics.
// Implementations handle the SSE wire format (event: type\ndata:
// json\n\n) internally.
//
// Each event is automatically assigned:
//   - Id: UUID v4 for ordering and deduplication
//   - CreatedAt: Unix timestamp in milliseconds
//   - Hash: SHA-256 hash of event content for integrity
//   - PrevHash: Hash of previous event for chain verification
//
// # Thread Safety
//
// Implementations must be safe for concurrent use by multiple
// goroutines: streaming handlers emit tokens and keepalives from
// different goroutines.
//
// # Assumptions
//
//   - Caller has set SSE headers via SetSSEHeaders before writing
type SSEWriter interface {
	// WriteEvent writes a single SSE event to the response.
	//
	// Populates event metadata (Id, CreatedAt, Hash, PrevHash),
	// serializes to JSON, and writes in SSE format. Flushes
	// immediately after writing.
	WriteEvent(event datatypes.StreamEvent) error

	// WriteStatus writes a status event with the given message.
	WriteStatus(message string) error

	// WriteToken writes a token event carrying one reply fragment.
	// Each call flushes immediately; there is no batching.
	WriteToken(content string) error

	// WriteError writes an error event. The message must already be
	// sanitized for client display; the stream should be closed after
	// this event.
	WriteError(errMsg string) error

	// WriteDone writes the terminal done event with the conversation
	// ID for multi-turn continuity. Call at most once per stream; no
	// events follow it.
	WriteDone(conversationID string) error

	// WriteKeepAlive sends an SSE comment (": ping\n\n") to keep the
	// TCP connection active through load balancer idle timeouts.
	// Comments are ignored by clients and do not update the hash
	// chain.
	WriteKeepAlive() error
}

// =============================================================================
// Struct Definition
// =============================================================================

// sseWriter implements SSEWriter for HTTP SSE responses.
//
// # Description
//
// sseWriter wraps an http.ResponseWriter to emit SSE-formatted events.
// Each event is written in the format:
//
//	event: {type}
//	data: {json}
//
// The writer maintains a hash chain for integrity verification: each
// event's Hash is SHA-256 of its content and each event's PrevHash
// links to the previous event.
//
// # Thread Safety
//
// Thread-safe via mutex. Hash chain integrity is maintained across
// concurrent writes.
//
// # Limitations
//
//   - Cannot be reused across requests
type sseWriter struct {
	writer   http.ResponseWriter
	flusher  http.Flusher
	prevHash string
	mu       sync.Mutex
}

// =============================================================================
// Constructor
// =============================================================================

// NewSSEWriter creates a new SSEWriter for the given ResponseWriter.
//
// # Description
//
// Creates an sseWriter that wraps the ResponseWriter. The caller must
// set SSE headers via SetSSEHeaders before creating the writer.
//
// # Outputs
//
//   - SSEWriter: Ready to write SSE events.
//   - error: Non-nil if the ResponseWriter doesn't support flushing.
func NewSSEWriter(w http.ResponseWriter) (SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("ResponseWriter does not support http.Flusher")
	}

	return &sseWriter{
		writer:   w,
		flusher:  flusher,
		prevHash: "",
	}, nil
}

// =============================================================================
// Methods
// =============================================================================

func (w *sseWriter) WriteEvent(event datatypes.StreamEvent) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Populate metadata
	event.Id = uuid.New().String()
	event.CreatedAt = time.Now().UnixMilli()
	event.PrevHash = w.prevHash

	// Compute hash of event content (before setting Hash field)
	event.Hash = w.computeEventHash(event)

	// Update chain for next event
	w.prevHash = event.Hash

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	// Write SSE format: event: type\ndata: json\n\n
	if _, err := fmt.Fprintf(w.writer, "event: %s\ndata: %s\n\n", event.Type, data); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// computeEventHash computes the SHA-256 hash of all event content
// fields. Called before event.Hash is set.
func (w *sseWriter) computeEventHash(event datatypes.StreamEvent) string {
	hashInput := fmt.Sprintf("%s|%s|%d|%s|%s|%s|%s|%s",
		event.Id,
		event.Type,
		event.CreatedAt,
		event.PrevHash,
		event.Content,
		event.Message,
		event.Error,
		event.ConversationId,
	)

	hash := sha256.Sum256([]byte(hashInput))
	return hex.EncodeToString(hash[:])
}

func (w *sseWriter) WriteStatus(message string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.StreamEventTypeStatus,
		Message: message,
	})
}

func (w *sseWriter) WriteToken(content string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:    datatypes.StreamEventTypeToken,
		Content: content,
	})
}

func (w *sseWriter) WriteError(errMsg string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:  datatypes.StreamEventTypeError,
		Error: errMsg,
	})
}

func (w *sseWriter) WriteDone(conversationID string) error {
	return w.WriteEvent(datatypes.StreamEvent{
		Type:           datatypes.StreamEventTypeDone,
		ConversationId: conversationID,
	})
}

func (w *sseWriter) WriteKeepAlive() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	// SSE comment format: colon followed by text, then double newline
	if _, err := fmt.Fprintf(w.writer, ": ping\n\n"); err != nil {
		return fmt.Errorf("write keepalive: %w", err)
	}

	w.flusher.Flush()
	return nil
}

// =============================================================================
// Helper Functions
// =============================================================================

// SetSSEHeaders configures HTTP response headers for SSE streaming.
//
// Sets Content-Type: text/event-stream, Cache-Control: no-cache,
// Connection: keep-alive, and X-Accel-Buffering: no (disables nginx
// buffering). Must be called before writing any response body.
func SetSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// =============================================================================
// Compile-time Interface Check
// =============================================================================

var _ SSEWriter = (*sseWriter)(nil)
