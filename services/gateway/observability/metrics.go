// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for the chat
// gateway.
//
// # Description
//
// Metrics cover request outcomes, streaming behavior (active streams,
// duration, time to first token, keepalives, client disconnects),
// rate-limit rejections, and authentication failures. They are exposed
// via the /metrics endpoint for Prometheus scraping.
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal
// locking.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "aleutian"
const gatewaySubsystem = "gateway"

// Endpoint identifies a metric-labelled gateway operation.
type Endpoint string

const (
	EndpointLogin         Endpoint = "login"
	EndpointRefresh       Endpoint = "refresh"
	EndpointChat          Endpoint = "chat"
	EndpointChatStream    Endpoint = "chat_stream"
	EndpointGenerate      Endpoint = "generate"
	EndpointConversations Endpoint = "conversations"
)

// ErrorCode classifies failures for the errors counter.
type ErrorCode string

const (
	ErrorCodeValidation       ErrorCode = "validation"
	ErrorCodeAuth             ErrorCode = "auth"
	ErrorCodeRateLimited      ErrorCode = "rate_limited"
	ErrorCodeNotFound         ErrorCode = "not_found"
	ErrorCodeLLMError         ErrorCode = "llm_error"
	ErrorCodeClientDisconnect ErrorCode = "client_disconnect"
	ErrorCodeInternal         ErrorCode = "internal"
)

// GatewayMetrics holds all Prometheus metrics for the gateway.
//
// Initialize once at startup via InitMetrics(); handlers read the
// DefaultMetrics singleton and tolerate it being nil so unit tests need
// no registry.
type GatewayMetrics struct {
	// RequestsTotal counts requests by endpoint and status.
	// Labels: endpoint, status (success, error)
	RequestsTotal *prometheus.CounterVec

	// StreamDurationSeconds measures total stream duration.
	// Labels: endpoint, status
	StreamDurationSeconds *prometheus.HistogramVec

	// TimeToFirstTokenSeconds measures latency to the first fragment.
	// Labels: endpoint
	TimeToFirstTokenSeconds *prometheus.HistogramVec

	// ActiveStreams tracks currently open SSE streams.
	// Labels: endpoint
	ActiveStreams *prometheus.GaugeVec

	// ErrorsTotal counts errors by endpoint and error code.
	ErrorsTotal *prometheus.CounterVec

	// KeepAlivesTotal counts heartbeat comments sent.
	// Labels: endpoint
	KeepAlivesTotal *prometheus.CounterVec

	// ClientDisconnectsTotal counts mid-stream client disconnections.
	// Labels: endpoint
	ClientDisconnectsTotal *prometheus.CounterVec

	// RateLimitRejectionsTotal counts 429s by limiter category.
	// Labels: category (auth, chat)
	RateLimitRejectionsTotal *prometheus.CounterVec

	// AuthFailuresTotal counts 401s by reason.
	// Labels: reason (bad_credentials, invalid_token, expired, wrong_kind)
	AuthFailuresTotal *prometheus.CounterVec
}

// DefaultMetrics is the singleton instance, set by InitMetrics().
var DefaultMetrics *GatewayMetrics

// InitMetrics creates and registers all gateway metrics. Call once at
// application startup.
func InitMetrics() *GatewayMetrics {
	m := &GatewayMetrics{
		RequestsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: gatewaySubsystem,
			Name:      "requests_total",
			Help:      "Requests processed, by endpoint and status.",
		}, []string{"endpoint", "status"}),
		StreamDurationSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: gatewaySubsystem,
			Name:      "stream_duration_seconds",
			Help:      "Total SSE stream duration in seconds.",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}, []string{"endpoint", "status"}),
		TimeToFirstTokenSeconds: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: gatewaySubsystem,
			Name:      "time_to_first_token_seconds",
			Help:      "Latency from request start to the first streamed fragment.",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"endpoint"}),
		ActiveStreams: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: gatewaySubsystem,
			Name:      "active_streams",
			Help:      "Currently open SSE streams.",
		}, []string{"endpoint"}),
		ErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: gatewaySubsystem,
			Name:      "errors_total",
			Help:      "Errors by endpoint and error code.",
		}, []string{"endpoint", "error_code"}),
		KeepAlivesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: gatewaySubsystem,
			Name:      "keepalives_total",
			Help:      "Heartbeat comments sent on SSE streams.",
		}, []string{"endpoint"}),
		ClientDisconnectsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: gatewaySubsystem,
			Name:      "client_disconnects_total",
			Help:      "Client disconnections during streaming.",
		}, []string{"endpoint"}),
		RateLimitRejectionsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: gatewaySubsystem,
			Name:      "rate_limit_rejections_total",
			Help:      "Requests rejected by the fixed-window limiter.",
		}, []string{"category"}),
		AuthFailuresTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: gatewaySubsystem,
			Name:      "auth_failures_total",
			Help:      "Authentication failures by reason.",
		}, []string{"reason"}),
	}
	DefaultMetrics = m
	return m
}

// RecordRequest records one completed request.
func (m *GatewayMetrics) RecordRequest(endpoint Endpoint, success bool) {
	m.RequestsTotal.WithLabelValues(string(endpoint), statusLabel(success)).Inc()
}

// StreamStarted marks one SSE stream as open.
func (m *GatewayMetrics) StreamStarted(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Inc()
}

// StreamEnded marks one SSE stream as closed.
func (m *GatewayMetrics) StreamEnded(endpoint Endpoint) {
	m.ActiveStreams.WithLabelValues(string(endpoint)).Dec()
}

// RecordStreamDuration records the total lifetime of one stream.
func (m *GatewayMetrics) RecordStreamDuration(endpoint Endpoint, seconds float64, success bool) {
	m.StreamDurationSeconds.WithLabelValues(string(endpoint), statusLabel(success)).Observe(seconds)
}

// RecordTimeToFirstToken records the first-fragment latency.
func (m *GatewayMetrics) RecordTimeToFirstToken(endpoint Endpoint, seconds float64) {
	m.TimeToFirstTokenSeconds.WithLabelValues(string(endpoint)).Observe(seconds)
}

// RecordError records one classified failure.
func (m *GatewayMetrics) RecordError(endpoint Endpoint, code ErrorCode) {
	m.ErrorsTotal.WithLabelValues(string(endpoint), string(code)).Inc()
}

// RecordKeepAlive records one heartbeat comment.
func (m *GatewayMetrics) RecordKeepAlive(endpoint Endpoint) {
	m.KeepAlivesTotal.WithLabelValues(string(endpoint)).Inc()
}

// RecordClientDisconnect records one mid-stream disconnection.
func (m *GatewayMetrics) RecordClientDisconnect(endpoint Endpoint) {
	m.ClientDisconnectsTotal.WithLabelValues(string(endpoint)).Inc()
}

// RecordRateLimitRejection records one 429 for a limiter category.
func (m *GatewayMetrics) RecordRateLimitRejection(category string) {
	m.RateLimitRejectionsTotal.WithLabelValues(category).Inc()
}

// RecordAuthFailure records one 401 by reason.
func (m *GatewayMetrics) RecordAuthFailure(reason string) {
	m.AuthFailuresTotal.WithLabelValues(reason).Inc()
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "error"
}
