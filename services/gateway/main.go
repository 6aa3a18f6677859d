// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/AleutianAI/AleutianChat/services/gateway/auth"
	"github.com/AleutianAI/AleutianChat/services/gateway/observability"
	"github.com/AleutianAI/AleutianChat/services/gateway/ratelimit"
	"github.com/AleutianAI/AleutianChat/services/gateway/routes"
	"github.com/AleutianAI/AleutianChat/services/gateway/store"
	"github.com/AleutianAI/AleutianChat/services/llm"

	// --- OpenTelemetry imports ---
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
)

func initTracer() (func(context.Context), error) {
	ctx := context.Background()

	otelEndpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if otelEndpoint == "" {
		// Tracing is optional for the gateway; spans become no-ops.
		slog.Info("OTEL_EXPORTER_OTLP_ENDPOINT not set, tracing disabled")
		return func(context.Context) {}, nil
	}
	conn, err := grpc.NewClient(otelEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	traceExporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("chat-gateway")))
	if err != nil {
		return nil, err
	}
	bsp := sdktrace.NewBatchSpanProcessor(traceExporter)
	traceProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(bsp))
	otel.SetTracerProvider(traceProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.
		TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, time.Second*5)
		defer cancel()
		if err := traceExporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}

// envInt reads an integer environment variable with a default.
func envInt(name string, fallback int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		slog.Warn("Invalid value, using default", "var", name, "value", raw, "default", fallback)
		return fallback
	}
	return v
}

func main() {
	port := os.Getenv("GATEWAY_PORT")
	if port == "" {
		port = "12250"
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// --- Init the tracer ---
	cleanup, err := initTracer()
	if err != nil {
		log.Fatalf("failed to setup the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	observability.InitMetrics()

	// --- Token service ---
	secret := os.Getenv("JWT_SECRET_KEY")
	if secret == "" {
		log.Fatal("FATAL: JWT_SECRET_KEY is not set")
	}
	accessTTL := time.Duration(envInt("ACCESS_TOKEN_TTL_MINUTES", 30)) * time.Minute
	refreshTTL := time.Duration(envInt("REFRESH_TOKEN_TTL_DAYS", 7)) * 24 * time.Hour
	tokens, err := auth.NewTokenService([]byte(secret), accessTTL, refreshTTL)
	if err != nil {
		log.Fatalf("FATAL: Could not initialize the token service: %v", err)
	}

	// --- Credential store ---
	username := os.Getenv("GATEWAY_USERNAME")
	password := os.Getenv("GATEWAY_PASSWORD")
	if username == "" || password == "" {
		log.Fatal("FATAL: GATEWAY_USERNAME and GATEWAY_PASSWORD must be set")
	}
	credentials := auth.NewCredentialStore()
	if err := credentials.Provision(username, password); err != nil {
		log.Fatalf("FATAL: Could not provision credentials: %v", err)
	}

	// --- LLM backend ---
	log.Println("Configuring the LLM Client")
	var llmClient llm.LLMClient
	var defaultModel string

	switch os.Getenv("LLM_BACKEND_TYPE") {
	case "ollama":
		client, cerr := llm.NewOllamaClient()
		if cerr != nil {
			log.Fatalf("Failed to initialize LLM client: %v", cerr)
		}
		llmClient, defaultModel = client, client.Model()
		slog.Info("Using Ollama LLM backend")
	case "openai":
		client, cerr := llm.NewOpenAIClient()
		if cerr != nil {
			log.Fatalf("Failed to initialize LLM client: %v", cerr)
		}
		llmClient, defaultModel = client, client.Model()
		slog.Info("Using OpenAI LLM backend")
	default:
		slog.Warn("LLM_BACKEND_TYPE not set or invalid, defaulting to openai")
		client, cerr := llm.NewOpenAIClient()
		if cerr != nil {
			log.Fatalf("Failed to initialize LLM client: %v", cerr)
		}
		llmClient, defaultModel = client, client.Model()
	}

	// --- Rate limiters ---
	loginLimiter := ratelimit.NewFixedWindowLimiter(envInt("LOGIN_RATE_LIMIT", 5), time.Minute)
	chatLimiter := ratelimit.NewFixedWindowLimiter(envInt("CHAT_RATE_LIMIT", 30), time.Minute)

	// gin.New, not gin.Default: request logging and recovery come from
	// the middleware package so all rejections share the error envelope.
	router := gin.New()
	router.Use(otelgin.Middleware("chat-gateway"))

	routes.SetupRoutes(router, routes.Dependencies{
		Logger:        logger,
		Credentials:   credentials,
		Tokens:        tokens,
		Conversations: store.NewConversationStore(),
		LLMClient:     llmClient,
		DefaultModel:  defaultModel,
		LoginLimiter:  loginLimiter,
		ChatLimiter:   chatLimiter,
	})

	log.Println("Starting the chat gateway on port ", port)
	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
