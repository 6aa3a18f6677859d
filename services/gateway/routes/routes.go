// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package routes wires the gateway's HTTP surface.
package routes

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AleutianAI/AleutianChat/services/gateway/auth"
	"github.com/AleutianAI/AleutianChat/services/gateway/handlers"
	"github.com/AleutianAI/AleutianChat/services/gateway/middleware"
	"github.com/AleutianAI/AleutianChat/services/gateway/ratelimit"
	"github.com/AleutianAI/AleutianChat/services/gateway/store"
	"github.com/AleutianAI/AleutianChat/services/llm"
)

// Dependencies carries everything SetupRoutes needs to build the
// route table.
type Dependencies struct {
	Logger        *slog.Logger
	Credentials   *auth.CredentialStore
	Tokens        *auth.TokenService
	Conversations *store.ConversationStore
	LLMClient     llm.LLMClient
	DefaultModel  string

	// LoginLimiter gates the credential endpoints; ChatLimiter gates
	// the generation endpoints. Separate instances so a burst of chat
	// traffic cannot lock a user out of refreshing their token.
	LoginLimiter *ratelimit.FixedWindowLimiter
	ChatLimiter  *ratelimit.FixedWindowLimiter
}

// SetupRoutes registers all gateway endpoints on the router.
//
// # Description
//
// The middleware pipeline runs logging, then panic recovery, then the
// per-group rate limiter, then (for protected routes) access token
// verification. Rate limiting precedes authentication so rejected
// credentials still consume the caller's window.
//
// Unauthenticated surface: /health, /metrics, /login, /refresh.
// Everything else requires a bearer access token.
func SetupRoutes(router *gin.Engine, deps Dependencies) {
	router.Use(middleware.RequestLogger(deps.Logger))
	router.Use(middleware.Recovery(deps.Logger))

	router.GET("/health", handlers.HandleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	authHandler := handlers.NewAuthHandler(deps.Credentials, deps.Tokens)
	chatHandler := handlers.NewChatHandler(deps.Conversations, deps.LLMClient, deps.DefaultModel)
	generateHandler := handlers.NewGenerateHandler(deps.LLMClient)
	conversationsHandler := handlers.NewConversationsHandler(deps.Conversations)

	// Credential endpoints: tightly limited, no auth required.
	credentialed := router.Group("/")
	credentialed.Use(middleware.RateLimit(deps.LoginLimiter, deps.Tokens, "auth"))
	{
		credentialed.POST("/login", authHandler.HandleLogin)
		credentialed.POST("/refresh", authHandler.HandleRefresh)
	}

	// Generation endpoints: looser limit, access token required.
	protected := router.Group("/")
	protected.Use(middleware.RateLimit(deps.ChatLimiter, deps.Tokens, "chat"))
	protected.Use(middleware.RequireAccessToken(deps.Tokens))
	{
		protected.POST("/chat", chatHandler.Handle)
		protected.POST("/api/generate", generateHandler.Handle)
		protected.GET("/conversations", conversationsHandler.HandleList)
		protected.GET("/conversations/:id/messages", conversationsHandler.HandleMessages)
	}
}
