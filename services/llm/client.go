// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package llm provides the generation-backend client interface and its
// OpenAI and Ollama implementations.
//
// The gateway treats text generation as a black box: an ordered
// role/content message sequence goes in, either a complete reply or a
// finite, non-restartable stream of fragments comes out. Backends must
// honor context cancellation promptly so a disconnected caller stops
// the upstream call.
package llm

import (
	"context"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
)

// GenerationParams carries per-request generation options.
//
// Model overrides the client's default model when non-empty. Pointer
// fields distinguish "unset, use backend default" from zero values.
type GenerationParams struct {
	Model       string   `json:"model,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// StreamEventType discriminates streaming callback events.
type StreamEventType string

const (
	// StreamEventToken carries one generated text fragment.
	StreamEventToken StreamEventType = "token"

	// StreamEventError carries a backend failure description.
	StreamEventError StreamEventType = "error"
)

// StreamEvent is one unit of streamed backend output.
type StreamEvent struct {
	Type    StreamEventType
	Content string
	Error   string
}

// StreamCallback receives stream events in arrival order. Returning a
// non-nil error aborts the stream; the backend call stops producing
// fragments and ChatStream returns that error.
type StreamCallback func(event StreamEvent) error

// LLMClient is the standard interface for any generation backend.
//
// # Description
//
// Chat blocks until the complete reply is available. ChatStream invokes
// the callback once per fragment, in order, and returns nil only after
// the backend signalled completion; a nil return means the stream was
// fully drained. Neither method retries failures — errors surface to
// the caller exactly once.
type LLMClient interface {
	Chat(ctx context.Context, messages []datatypes.Message, params GenerationParams) (string, error)
	ChatStream(ctx context.Context, messages []datatypes.Message, params GenerationParams, callback StreamCallback) error
}
