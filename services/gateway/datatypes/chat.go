// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package datatypes provides request, response, and wire types for the
// chat gateway service.
//
// This file contains the conversational chat types. Authentication types
// live in auth.go, error envelope types in errors.go.
package datatypes

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxMessageContentBytes is the maximum size of a single user message.
	// Checked in bytes (not runes) to bound memory per request.
	MaxMessageContentBytes = 32 * 1024 // 32KB

	// RoleUser marks a message authored by the caller.
	RoleUser = "user"

	// RoleAssistant marks a message authored by the generation backend.
	RoleAssistant = "assistant"
)

// =============================================================================
// Shared Validator Instance
// =============================================================================

// chatValidate is the validator instance for chat datatypes.
// Initialized in init() with custom validators.
var chatValidate *validator.Validate

func init() {
	chatValidate = validator.New()
	if err := chatValidate.RegisterValidation("maxbytes", validateMaxBytes); err != nil {
		panic(fmt.Sprintf("datatypes: failed to register maxbytes validator: %v", err))
	}
}

// validateMaxBytes enforces the MaxMessageContentBytes limit on a string field.
func validateMaxBytes(fl validator.FieldLevel) bool {
	return len(fl.Field().String()) <= MaxMessageContentBytes
}

// =============================================================================
// Conversation Types
// =============================================================================

// Message is a single conversational turn entry.
//
// # Description
//
// Messages are append-only: once written to the conversation store they
// are never mutated, reordered, or deleted. The Timestamp is assigned
// server-side at append time and serializes as RFC 3339 (ISO-8601).
//
// # Fields
//
//   - Role: "user" or "assistant"
//   - Content: message text
//   - Timestamp: server-assigned append time (UTC)
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationSummary is one entry of the conversation listing.
//
// CreatedAt is the timestamp of the conversation's first message.
// LastMessage carries the content of the most recent message, empty for
// a conversation that has no messages yet.
type ConversationSummary struct {
	ID           string    `json:"id"`
	CreatedAt    time.Time `json:"created_at"`
	LastMessage  string    `json:"last_message,omitempty"`
	MessageCount int       `json:"message_count"`
}

// =============================================================================
// Chat Request / Response Types
// =============================================================================

// ChatRequest is the body of POST /chat.
//
// # Description
//
// Carries one new user message for a conversation. ConversationID is a
// lookup input only: when absent or unknown the store mints a fresh id.
// Stream defaults to true when omitted, matching SSE-first clients.
//
// # Validation
//
//   - Message: required, at most 32KB
//   - Model: optional backend model override
type ChatRequest struct {
	Message        string `json:"message" validate:"required,maxbytes"`
	ConversationID string `json:"conversation_id" validate:"omitempty,max=128"`
	Model          string `json:"model" validate:"omitempty,max=128"`
	Stream         *bool  `json:"stream"`
}

// Validate validates the ChatRequest fields after JSON binding.
func (r *ChatRequest) Validate() error {
	return chatValidate.Struct(r)
}

// WantsStream reports whether the caller asked for SSE delivery.
// Streaming is the default when the field is omitted.
func (r *ChatRequest) WantsStream() bool {
	return r.Stream == nil || *r.Stream
}

// ChatResponse is the JSON body returned by a non-streaming chat turn.
type ChatResponse struct {
	Reply          string `json:"reply"`
	ConversationID string `json:"conversation_id"`
	User           string `json:"user"`
	Model          string `json:"model"`
}

// GenerateRequest is the body of POST /api/generate: a single prompt
// streamed back without conversation history or persistence.
type GenerateRequest struct {
	Prompt string `json:"prompt" validate:"required,maxbytes"`
	Model  string `json:"model" validate:"omitempty,max=128"`
}

// Validate validates the GenerateRequest fields after JSON binding.
func (r *GenerateRequest) Validate() error {
	return chatValidate.Struct(r)
}

// =============================================================================
// SSE Stream Event Types
// =============================================================================

// Stream event types emitted over the SSE wire.
const (
	// StreamEventTypeToken carries one generated text fragment.
	StreamEventTypeToken = "token"

	// StreamEventTypeStatus carries a human-readable progress message.
	StreamEventTypeStatus = "status"

	// StreamEventTypeError reports a failure; the stream closes after it.
	StreamEventTypeError = "error"

	// StreamEventTypeDone is the end-of-stream sentinel. A connection
	// that closes without it must be treated as an incomplete turn.
	StreamEventTypeDone = "done"
)

// StreamEvent is the payload of one SSE frame.
//
// # Description
//
// Each event is written as "event: {type}\ndata: {json}\n\n". The writer
// assigns Id, CreatedAt, Hash, and PrevHash; Hash chains to the previous
// event's hash so a client can verify that no frame was dropped or
// reordered in transit.
//
// # Fields
//
//   - Id: UUID v4 assigned per event
//   - Type: one of the StreamEventType constants
//   - CreatedAt: Unix milliseconds at write time
//   - Content: token text (token events)
//   - Message: progress text (status events)
//   - Error: sanitized failure description (error events)
//   - ConversationId: conversation identity (done events)
//   - Hash, PrevHash: SHA-256 chain over event content
type StreamEvent struct {
	Id             string `json:"id,omitempty"`
	Type           string `json:"type"`
	CreatedAt      int64  `json:"created_at,omitempty"`
	Content        string `json:"content,omitempty"`
	Message        string `json:"message,omitempty"`
	Error          string `json:"error,omitempty"`
	ConversationId string `json:"conversation_id,omitempty"`
	Hash           string `json:"hash,omitempty"`
	PrevHash       string `json:"prev_hash,omitempty"`
}
