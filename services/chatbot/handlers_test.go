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
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/tneainsight/chatbot/services/chatbot/config"
	"github.com/tneainsight/chatbot/services/chatbot/intent"
)

func testLogger() *slog.Logger { return slog.Default() }

// setupTestRouter wires the full HTTP surface against the given backend
// server, with rule-only intent resolution.
func setupTestRouter(t *testing.T, server *httptest.Server) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	e := newTestEngine(t, server)
	rules, err := config.GetIntentRules()
	if err != nil {
		t.Fatalf("GetIntentRules() error = %v", err)
	}
	cfg := &config.ServiceConfig{BlendThreshold: 0.55, RuleConfidenceFloor: 0.6}
	resolver := intent.NewResolver(intent.UnavailableClassifier{}, rules, cfg, testLogger())
	handlers := NewHandlers(e, resolver, testLogger())

	router := gin.New()
	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)
	return router
}

func postChat(t *testing.T, router *gin.Engine, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/message", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestChatEndpointGreeting(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected downstream call to %s", r.URL.Path)
	}))
	defer server.Close()
	router := setupTestRouter(t, server)

	w := postChat(t, router, `{"user_id": "u1", "message": "hello"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Intent != "greeting" {
		t.Errorf("intent = %q, want greeting", resp.Intent)
	}
	if resp.Confidence != 0.6 {
		t.Errorf("confidence = %v, want rule floor 0.6", resp.Confidence)
	}
	if resp.RequestID == "" {
		t.Error("request_id is empty")
	}
	if resp.ResponseText == "" {
		t.Error("response_text is empty")
	}
}

func TestChatEndpointValidation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()
	router := setupTestRouter(t, server)

	tests := []struct {
		name string
		body string
		want string
	}{
		{"missing user_id", `{"message": "hi"}`, "user_id"},
		{"empty message", `{"user_id": "u1", "message": ""}`, "message"},
		{"bad language", `{"user_id": "u1", "message": "hi", "language": "fr"}`, "language"},
		{"malformed json", `{`, "invalid request body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := postChat(t, router, tt.body, nil)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", w.Code)
			}
			var resp ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
				t.Fatalf("decode error response: %v", err)
			}
			if resp.Code != "INVALID_REQUEST" {
				t.Errorf("code = %q, want INVALID_REQUEST", resp.Code)
			}
			if !strings.Contains(resp.Error, tt.want) {
				t.Errorf("error = %q, want mention of %q", resp.Error, tt.want)
			}
		})
	}
}

func TestChatEndpointForwardsCallerHeaders(t *testing.T) {
	var gotCookie, gotAuth string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == config.LegacyRecommendPath {
			gotCookie = r.Header.Get("Cookie")
			gotAuth = r.Header.Get("Authorization")
			w.Write([]byte(`{"results": []}`))
			return
		}
		w.Write([]byte(`[]`))
	}))
	defer server.Close()
	router := setupTestRouter(t, server)

	w := postChat(t, router, `{"user_id": "u1", "message": "178 cutoff BC, suggest colleges"}`, map[string]string{
		"Cookie":        "session=abc",
		"Authorization": "Bearer tok",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if gotCookie != "session=abc" {
		t.Errorf("downstream Cookie = %q, want session=abc", gotCookie)
	}
	if gotAuth != "Bearer tok" {
		t.Errorf("downstream Authorization = %q, want Bearer tok", gotAuth)
	}
}

func TestChatEndpointDownstreamFailureStillReturns200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("down"))
	}))
	defer server.Close()
	router := setupTestRouter(t, server)

	w := postChat(t, router, `{"user_id": "u1", "message": "178 cutoff BC, suggest colleges"}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 despite downstream failure", w.Code)
	}

	var resp ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.DownstreamError != "down" {
		t.Errorf("downstream_error = %q, want down", resp.DownstreamError)
	}
}

func TestChatEndpointEchoesRequestID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()
	router := setupTestRouter(t, server)

	w := postChat(t, router, `{"user_id": "u1", "message": "hello"}`, map[string]string{
		"X-Request-ID": "req-42",
	})
	var resp ChatResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.RequestID != "req-42" {
		t.Errorf("request_id = %q, want req-42", resp.RequestID)
	}
}

func TestIntentsEndpoint(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()
	router := setupTestRouter(t, server)

	req := httptest.NewRequest(http.MethodGet, "/v1/chat/intents", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp IntentsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Intents) != 10 {
		t.Errorf("intents = %d, want 10", len(resp.Intents))
	}
}

func TestHealthAndReadyEndpoints(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()
	router := setupTestRouter(t, server)

	for _, path := range []string{"/v1/chat/health", "/v1/chat/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		if w.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", path, w.Code)
		}
	}
}
