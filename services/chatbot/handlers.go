// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package chatbot

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/tneainsight/chatbot/services/chatbot/intent"
	"github.com/tneainsight/chatbot/services/chatbot/nlu"
)

// =============================================================================
// Metrics
// =============================================================================

var chatRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "chatbot_chat_requests_total",
	Help: "Chat HTTP requests by status.",
}, []string{"status"})

var chatDuration = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "chatbot_chat_duration_seconds",
	Help:    "End-to-end chat request latency.",
	Buckets: prometheus.DefBuckets,
})

// =============================================================================
// Wire types
// =============================================================================

// ChatRequest is the POST /v1/chat/message body.
type ChatRequest struct {
	// UserID identifies the end user across sessions.
	UserID string `json:"user_id" binding:"required,min=1"`

	// Message is the raw user message.
	Message string `json:"message" binding:"required,min=1,max=2000"`

	// SessionID scopes memory within a user; empty uses the default
	// session.
	SessionID string `json:"session_id"`

	// Language selects the reply language for templated responses.
	Language string `json:"language" binding:"omitempty,oneof=en ta"`
}

// ChatResponse is the chat outcome plus the request ID for correlation.
type ChatResponse struct {
	RequestID string `json:"request_id"`
	Outcome
}

// ErrorResponse is the uniform error body.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// IntentsResponse lists the intents the service can act on.
type IntentsResponse struct {
	Intents []string `json:"intents"`
}

// =============================================================================
// Handlers
// =============================================================================

// Handlers carries the HTTP surface's collaborators.
type Handlers struct {
	engine   *Engine
	resolver *intent.Resolver
	logger   *slog.Logger
}

// NewHandlers creates the chat HTTP handlers.
func NewHandlers(engine *Engine, resolver *intent.Resolver, logger *slog.Logger) *Handlers {
	return &Handlers{engine: engine, resolver: resolver, logger: logger}
}

// HandleChat handles POST /v1/chat/message.
//
// Description:
//
//	Validates the request, resolves the intent, runs the decision
//	engine, and returns the outcome. Cookie and Authorization headers
//	are forwarded to the downstream backend so it sees the end user's
//	identity. Downstream failures still return 200; the failure detail
//	rides in the outcome's downstream_error field.
//
// Response:
//
//	200 OK: ChatResponse
//	400 Bad Request: Malformed or invalid body
//
// Thread Safety: Safe for concurrent use.
func (h *Handlers) HandleChat(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := h.logger.With("request_id", requestID, "handler", "HandleChat")
	start := time.Now()

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		chatRequestsTotal.WithLabelValues("invalid").Inc()
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: bindErrorMessage(err),
			Code:  "INVALID_REQUEST",
		})
		return
	}

	message := nlu.NormalizeWhitespace(req.Message)
	resolved := h.resolver.Resolve(c.Request.Context(), message)
	logger.InfoContext(c.Request.Context(), "intent resolved",
		"intent", resolved.Intent,
		"confidence", resolved.Confidence,
		"source", resolved.Source)

	outcome := h.engine.Handle(c.Request.Context(), Request{
		UserID:    req.UserID,
		SessionID: req.SessionID,
		Message:   message,
		Language:  req.Language,
	}, resolved, downstreamHeaders(c))

	chatDuration.Observe(time.Since(start).Seconds())
	chatRequestsTotal.WithLabelValues("ok").Inc()
	c.JSON(http.StatusOK, ChatResponse{RequestID: requestID, Outcome: *outcome})
}

// HandleIntents handles GET /v1/chat/intents.
func (h *Handlers) HandleIntents(c *gin.Context) {
	c.JSON(http.StatusOK, IntentsResponse{Intents: intent.Supported()})
}

// HandleHealth handles GET /v1/chat/health.
func (h *Handlers) HandleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "tnea-chatbot"})
}

// HandleReady handles GET /v1/chat/ready. The service holds no
// persistent state and embeds its vocabularies, so readiness follows
// liveness directly.
func (h *Handlers) HandleReady(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// =============================================================================
// Helpers
// =============================================================================

// getOrCreateRequestID returns the caller's X-Request-ID, minting one
// when absent.
func getOrCreateRequestID(c *gin.Context) string {
	if id := c.GetHeader("X-Request-ID"); id != "" {
		return id
	}
	return uuid.NewString()
}

// downstreamHeaders picks out the caller headers the backend needs to
// identify the end user.
func downstreamHeaders(c *gin.Context) http.Header {
	headers := http.Header{}
	if cookie := c.GetHeader("Cookie"); cookie != "" {
		headers.Set("Cookie", cookie)
	}
	if auth := c.GetHeader("Authorization"); auth != "" {
		headers.Set("Authorization", auth)
	}
	return headers
}

// bindErrorMessage flattens validator errors into one readable line.
func bindErrorMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Sprintf("invalid request body: %v", err)
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			parts = append(parts, fmt.Sprintf("%s is required", fieldName(fe)))
		case "min":
			parts = append(parts, fmt.Sprintf("%s must be at least %s characters", fieldName(fe), fe.Param()))
		case "max":
			parts = append(parts, fmt.Sprintf("%s must be at most %s characters", fieldName(fe), fe.Param()))
		case "oneof":
			parts = append(parts, fmt.Sprintf("%s must be one of: %s", fieldName(fe), fe.Param()))
		default:
			parts = append(parts, fmt.Sprintf("%s is invalid", fieldName(fe)))
		}
	}
	return strings.Join(parts, "; ")
}

func fieldName(fe validator.FieldError) string {
	switch fe.Field() {
	case "UserID":
		return "user_id"
	case "Message":
		return "message"
	case "SessionID":
		return "session_id"
	case "Language":
		return "language"
	default:
		return strings.ToLower(fe.Field())
	}
}
