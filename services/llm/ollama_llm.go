// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
)

var ollamaTracer = otel.Tracer("aleutian.llm.ollama")

type OllamaClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

type ollamaChatRequest struct {
	Model    string                 `json:"model"`
	Messages []datatypes.Message    `json:"messages"`
	Stream   bool                   `json:"stream"`
	Options  map[string]interface{} `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message   datatypes.Message `json:"message"`
	CreatedAt string            `json:"created_at"`
	Done      bool              `json:"done"`
	Error     string            `json:"error,omitempty"`
}

// NewOllamaClient builds a client from OLLAMA_BASE_URL and OLLAMA_MODEL.
func NewOllamaClient() (*OllamaClient, error) {
	baseURL := os.Getenv("OLLAMA_BASE_URL")
	model := os.Getenv("OLLAMA_MODEL")
	if baseURL == "" {
		return nil, fmt.Errorf("OLLAMA_BASE_URL environment variable not set")
	}
	if model == "" {
		slog.Warn("OLLAMA_MODEL not set, requests must specify model, default gpt-oss")
		model = "gpt-oss"
	}
	baseURL = strings.TrimSuffix(baseURL, "/")
	slog.Info("Initializing Ollama client", "base_url", baseURL, "default_model", model)
	return &OllamaClient{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    baseURL,
		model:      model,
	}, nil
}

// Model returns the configured default model name.
func (o *OllamaClient) Model() string { return o.model }

func (o *OllamaClient) buildRequest(messages []datatypes.Message, params GenerationParams, stream bool) ollamaChatRequest {
	model := o.model
	if params.Model != "" {
		model = params.Model
	}
	options := make(map[string]interface{})
	if params.Temperature != nil {
		options["temperature"] = *params.Temperature
	} else {
		options["temperature"] = float32(0.2)
	}
	if params.MaxTokens != nil {
		options["num_predict"] = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		options["stop"] = params.Stop
	}
	return ollamaChatRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
		Options:  options,
	}
}

func (o *OllamaClient) post(ctx context.Context, payload ollamaChatRequest) (*http.Response, error) {
	reqBodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request to Ollama: %w", err)
	}

	// NewRequestWithContext so caller cancellation tears down the call.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/chat", bytes.NewBuffer(reqBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request to Ollama: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Ollama API call failed: %w", err)
	}
	return resp, nil
}

// Chat implements the LLMClient interface (one-shot mode).
func (o *OllamaClient) Chat(ctx context.Context, messages []datatypes.Message,
	params GenerationParams) (string, error) {

	ctx, span := ollamaTracer.Start(ctx, "OllamaClient.Chat")
	defer span.End()

	payload := o.buildRequest(messages, params, false)
	span.SetAttributes(
		attribute.String("llm.model", payload.Model),
		attribute.Int("llm.num_messages", len(messages)),
	)
	slog.Debug("Generating text via Ollama", "model", payload.Model)

	resp, err := o.post(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Ollama API call failed", "error", err)
		return "", err
	}
	defer resp.Body.Close()

	respBodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", fmt.Errorf("failed to read response body from Ollama: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		slog.Error("Ollama returned an error", "status_code", resp.StatusCode, "response", string(respBodyBytes))
		return "", fmt.Errorf("Ollama failed with status %d: %s", resp.StatusCode, string(respBodyBytes))
	}

	var ollamaResp ollamaChatResponse
	if err := json.Unmarshal(respBodyBytes, &ollamaResp); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Failed to parse JSON response from Ollama", "error", err)
		return "", fmt.Errorf("failed to parse Ollama response: %w", err)
	}
	return ollamaResp.Message.Content, nil
}

// ChatStream implements the LLMClient interface (streaming mode).
//
// Ollama streams newline-delimited JSON objects; each carries one
// message fragment and the final object sets done=true. The fragment
// order on the wire is the delivery order to the callback.
func (o *OllamaClient) ChatStream(ctx context.Context, messages []datatypes.Message,
	params GenerationParams, callback StreamCallback) error {

	ctx, span := ollamaTracer.Start(ctx, "OllamaClient.ChatStream")
	defer span.End()

	payload := o.buildRequest(messages, params, true)
	span.SetAttributes(
		attribute.String("llm.model", payload.Model),
		attribute.Int("llm.num_messages", len(messages)),
	)
	slog.Debug("Streaming text via Ollama", "model", payload.Model)

	resp, err := o.post(ctx, payload)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("Ollama stream setup failed", "error", err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBodyBytes, _ := io.ReadAll(resp.Body)
		slog.Error("Ollama returned an error", "status_code", resp.StatusCode, "response", string(respBodyBytes))
		return fmt.Errorf("Ollama failed with status %d: %s", resp.StatusCode, string(respBodyBytes))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk ollamaChatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			span.RecordError(err)
			return fmt.Errorf("failed to parse Ollama stream chunk: %w", err)
		}
		if chunk.Error != "" {
			span.SetStatus(codes.Error, chunk.Error)
			return fmt.Errorf("Ollama stream error: %s", chunk.Error)
		}
		if chunk.Message.Content != "" {
			if err := callback(StreamEvent{Type: StreamEventToken, Content: chunk.Message.Content}); err != nil {
				span.SetStatus(codes.Error, "stream aborted by consumer")
				return err
			}
		}
		if chunk.Done {
			return nil
		}
	}
	if err := scanner.Err(); err != nil {
		// Body reads fail with the context error after cancellation.
		if ctx.Err() != nil {
			return ctx.Err()
		}
		span.RecordError(err)
		return fmt.Errorf("Ollama stream read failed: %w", err)
	}
	return fmt.Errorf("Ollama stream ended without a done marker")
}

var _ LLMClient = (*OllamaClient)(nil)
