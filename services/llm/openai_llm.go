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
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/AleutianAI/AleutianChat/services/gateway/datatypes"
)

var openaiTracer = otel.Tracer("aleutian.llm.openai")

// DefaultOpenAIModel is used when neither the environment nor the
// request names a model.
const DefaultOpenAIModel = "gpt-4o-mini"

type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient builds a client from OPENAI_API_KEY and OPENAI_MODEL.
func NewOpenAIClient() (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	model := os.Getenv("OPENAI_MODEL")
	if apiKey == "" {
		secretPath := "/run/secrets/openai_api_key"
		apiKeyBytes, err := os.ReadFile(secretPath)
		if err == nil {
			apiKey = strings.TrimSpace(string(apiKeyBytes))
			slog.Info("Read the OpenAI API Key from container secrets")
		} else {
			slog.Error("OPENAI_API_KEY environment variable not set and secret not found", "path", secretPath)
			return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
		}
	}
	if model == "" {
		model = DefaultOpenAIModel
		slog.Warn("OPENAI_MODEL not set, defaulting to "+DefaultOpenAIModel, "model", model)
	}
	slog.Info("Initializing OpenAI client", "model", model)
	return &OpenAIClient{
		client: openai.NewClient(apiKey),
		model:  model,
	}, nil
}

// Model returns the configured default model name.
func (o *OpenAIClient) Model() string { return o.model }

// buildRequest translates gateway messages and params into an OpenAI
// chat completion request.
func (o *OpenAIClient) buildRequest(messages []datatypes.Message, params GenerationParams) openai.ChatCompletionRequest {
	model := o.model
	if params.Model != "" {
		model = params.Model
	}
	req := openai.ChatCompletionRequest{Model: model}
	for _, m := range messages {
		role := openai.ChatMessageRoleUser
		if m.Role == datatypes.RoleAssistant {
			role = openai.ChatMessageRoleAssistant
		}
		req.Messages = append(req.Messages, openai.ChatCompletionMessage{
			Role:    role,
			Content: m.Content,
		})
	}
	if params.Temperature != nil {
		req.Temperature = *params.Temperature
	} else {
		req.Temperature = 0.2
	}
	if params.MaxTokens != nil {
		req.MaxCompletionTokens = *params.MaxTokens
	}
	if len(params.Stop) > 0 {
		req.Stop = params.Stop
	}
	return req
}

// Chat implements the LLMClient interface (one-shot mode).
func (o *OpenAIClient) Chat(ctx context.Context, messages []datatypes.Message,
	params GenerationParams) (string, error) {

	ctx, span := openaiTracer.Start(ctx, "OpenAIClient.Chat")
	defer span.End()

	req := o.buildRequest(messages, params)
	span.SetAttributes(
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.num_messages", len(messages)),
	)
	slog.Debug("Generating text via OpenAI", "model", req.Model)

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("OpenAI API call failed", "error", err)
		return "", fmt.Errorf("OpenAI API call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		slog.Warn("OpenAI returned no choices")
		return "", fmt.Errorf("OpenAI returned no choices")
	}
	slog.Debug("Received response from OpenAI", "finish_reason", resp.Choices[0].FinishReason)
	return resp.Choices[0].Message.Content, nil
}

// ChatStream implements the LLMClient interface (streaming mode).
//
// Fragments are forwarded to the callback in arrival order. A callback
// error aborts the upstream stream and is returned unchanged so the
// caller can distinguish its own cancellation from backend failures.
func (o *OpenAIClient) ChatStream(ctx context.Context, messages []datatypes.Message,
	params GenerationParams, callback StreamCallback) error {

	ctx, span := openaiTracer.Start(ctx, "OpenAIClient.ChatStream")
	defer span.End()

	req := o.buildRequest(messages, params)
	req.Stream = true
	span.SetAttributes(
		attribute.String("llm.model", req.Model),
		attribute.Int("llm.num_messages", len(messages)),
	)
	slog.Debug("Streaming text via OpenAI", "model", req.Model)

	stream, err := o.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		slog.Error("OpenAI stream setup failed", "error", err)
		return fmt.Errorf("OpenAI stream setup failed: %w", err)
	}
	defer stream.Close()

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return fmt.Errorf("OpenAI stream receive failed: %w", err)
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		content := chunk.Choices[0].Delta.Content
		if content == "" {
			continue
		}
		if err := callback(StreamEvent{Type: StreamEventToken, Content: content}); err != nil {
			span.SetStatus(codes.Error, "stream aborted by consumer")
			return err
		}
	}
}

var _ LLMClient = (*OpenAIClient)(nil)
